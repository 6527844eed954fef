package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"project-canvas-hub/internal/telemetry"
)

// instrumentationName scopes the log records this package emits.
const instrumentationName = "canvas-hub.telemetry"

// RecordEmitter is the part of an OTel Logger the adapter needs.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the event to an OTel log record: the JSON event is the body, identifying fields are attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	if body, err := json.Marshal(event); err == nil {
		rec.SetBody(otellog.BytesValue(body))
	}
	switch event.Result {
	case "error", "rejected", "dropped":
		rec.SetSeverity(otellog.SeverityWarn)
	default:
		rec.SetSeverity(otellog.SeverityInfo)
	}

	addString := func(key, v string) {
		if v != "" {
			rec.AddAttributes(otellog.String(key, v))
		}
	}
	addString("event_type", event.EventType)
	addString("source", event.Source)
	addString("project_id", event.ProjectID)
	addString("requester_id", event.RequesterID)
	addString("connection_id", event.ConnectionID)
	addString("locality", event.Locality)
	addString("result", event.Result)
	addString("method", event.Method)
	if event.SequenceNumber > 0 {
		rec.AddAttributes(otellog.Int64("sequence_number", event.SequenceNumber))
	}
	if event.DurationMs > 0 {
		rec.AddAttributes(otellog.Int64("duration_ms", event.DurationMs))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

package telemetry

import "time"

// Event types emitted by the hub and the sync service.
const (
	EventCanvasSaved     = "canvas_saved"
	EventHubConnected    = "hub_connected"
	EventHubDisconnected = "hub_disconnected"
	EventHubRejected     = "hub_rejected"
	EventGRPCRequest     = "grpc_request"
)

// Event is one telemetry record. It is serialized as JSON onto Kafka and read back by the worker.
type Event struct {
	EventType      string    `json:"eventType"`
	Source         string    `json:"source"`
	ProjectID      string    `json:"projectId,omitempty"`
	RequesterID    string    `json:"requesterId,omitempty"`
	ConnectionID   string    `json:"connectionId,omitempty"`
	SequenceNumber int64     `json:"sequenceNumber,omitempty"`
	Locality       string    `json:"locality,omitempty"`
	Result         string    `json:"result,omitempty"`
	Method         string    `json:"method,omitempty"`
	DurationMs     int64     `json:"durationMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewEvent returns an Event of eventType from source stamped with the current UTC time.
func NewEvent(eventType, source string) *Event {
	return &Event{EventType: eventType, Source: source, CreatedAt: time.Now().UTC()}
}

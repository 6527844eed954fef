// Package producer defines the interface for emitting telemetry events to a stream (Kafka).
package producer

import (
	"context"

	"project-canvas-hub/internal/telemetry"
)

// Producer emits telemetry events. Callers use it best-effort: log and ignore errors.
// A Producer is also a telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single telemetry event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}

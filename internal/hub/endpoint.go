package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrEndpointClosed is returned by Send on a closed endpoint.
	ErrEndpointClosed = errors.New("hub: endpoint closed")
	// ErrEndpointNotOpen is returned by Register for an endpoint that is still connecting or already closed.
	ErrEndpointNotOpen = errors.New("hub: endpoint is not open")
	// ErrProjectMismatch is returned by Register when the endpoint is bound to a different project.
	ErrProjectMismatch = errors.New("hub: endpoint bound to another project")
	// ErrRegistryClosed is returned by Register after Close.
	ErrRegistryClosed = errors.New("hub: registry closed")
)

// State is the lifecycle state of an endpoint.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Endpoint is a live duplex channel bound to exactly one project for its lifetime.
type Endpoint interface {
	// ID is unique among live endpoints.
	ID() string
	ProjectID() string
	// Send queues msg for delivery. It must return once ctx is done.
	Send(ctx context.Context, msg []byte) error
	// Close is idempotent.
	Close() error
	// Done is closed once the endpoint is closed, from either side.
	Done() <-chan struct{}
	State() State
}

// Lifecycle tracks connecting -> open -> closed. Transitions only move forward.
// The zero value is not usable; call NewLifecycle.
type Lifecycle struct {
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// NewLifecycle returns a Lifecycle in StateConnecting.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Open moves connecting to open. Reports false if the endpoint was already open or closed.
func (l *Lifecycle) Open() bool {
	return l.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close moves to closed from any state. Only the first call reports true.
func (l *Lifecycle) Close() bool {
	first := false
	l.once.Do(func() {
		l.state.Store(int32(StateClosed))
		close(l.done)
		first = true
	})
	return first
}

func (l *Lifecycle) State() State { return State(l.state.Load()) }

func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// DeliveryError is one endpoint's failed broadcast delivery. It never leaves the hub; the endpoint is dropped.
type DeliveryError struct {
	ProjectID  string
	EndpointID string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("hub: deliver to %s in project %s: %v", e.EndpointID, e.ProjectID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

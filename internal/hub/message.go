package hub

import (
	"encoding/json"

	historydomain "project-canvas-hub/internal/history/domain"
)

// Message types exchanged over a hub connection.
const (
	TypeVersion = "version"
	TypeHello   = "hello"
	TypeSave    = "save"
	TypeSaved   = "saved"
	TypeSync    = "sync"
	TypeLatest  = "latest"
	TypeHistory = "history"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

// Error codes carried by TypeError replies.
const (
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeBadRequest  = "bad_request"
)

// VersionEvent tells subscribers a new history entry exists. It never carries the snapshot itself;
// subscribers pull it with sync or latest.
type VersionEvent struct {
	Type           string `json:"type"`
	ProjectID      string `json:"projectId"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// NewVersionEvent returns the encoded version notification for projectID at seq.
func NewVersionEvent(projectID string, seq int64) []byte {
	b, _ := json.Marshal(VersionEvent{Type: TypeVersion, ProjectID: projectID, SequenceNumber: seq})
	return b
}

// Hello is the first message on a new connection. SequenceNumber is the project's latest (0 if none)
// so the client knows where to sync from.
type Hello struct {
	Type           string `json:"type"`
	ProjectID      string `json:"projectId"`
	ConnectionID   string `json:"connectionId"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// Command is an inbound client message. Fields are used according to Type.
type Command struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"requestId,omitempty"`
	RequesterID string          `json:"requesterId,omitempty"`
	Since       int64           `json:"since,omitempty"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
}

// Saved acknowledges a save command to its sender.
type Saved struct {
	Type           string `json:"type"`
	RequestID      string `json:"requestId,omitempty"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// History answers sync and latest commands.
type History struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"requestId,omitempty"`
	Entries   []*historydomain.Entry `json:"entries"`
}

// Pong answers ping.
type Pong struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorReply reports a failed command. EdgeID names the first offending edge of a rejected snapshot.
type ErrorReply struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	EdgeID    string `json:"edgeId,omitempty"`
}

package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

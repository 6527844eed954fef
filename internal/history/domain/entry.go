package domain

import (
	"time"

	canvasdomain "project-canvas-hub/internal/canvas/domain"
)

// Entry is one immutable, versioned canvas snapshot of a project.
// SequenceNumber is the sole ordering authority; CreatedAt is advisory.
type Entry struct {
	ID             string                `json:"id"`
	ProjectID      string                `json:"projectId"`
	SequenceNumber int64                 `json:"sequenceNumber"`
	Snapshot       canvasdomain.Snapshot `json:"snapshot"`
	CreatedBy      string                `json:"createdBy"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// Package domain holds the canvas snapshot value carried by every save and every history entry.
package domain

import (
	"encoding/json"
	"fmt"
)

// Position is a node's canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one canvas node. Data is opaque to the hub and stored as-is.
type Node struct {
	ID       string          `json:"id"`
	Type     string          `json:"type,omitempty"`
	Position Position        `json:"position"`
	Width    *float64        `json:"width,omitempty"`
	Height   *float64        `json:"height,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Edge connects two nodes of the same snapshot.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Type         string `json:"type,omitempty"`
	Label        string `json:"label,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Snapshot is the full state of a project's canvas at one point in history.
// A snapshot is never edited after it is saved; a new save produces a new snapshot.
type Snapshot struct {
	Nodes           []Node   `json:"nodes"`
	Edges           []Edge   `json:"edges"`
	SelectedNodeIDs []string `json:"selectedNodeIds"`
	SelectedEdgeID  string   `json:"selectedEdgeId,omitempty"`
}

// ValidationError describes the first problem found in a snapshot.
// EdgeID is set when the problem is a dangling edge reference.
type ValidationError struct {
	EdgeID string
	Field  string
	NodeID string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("validation: edge %q %s references unknown node %q", e.EdgeID, e.Field, e.NodeID)
	case e.Reason != "":
		return "validation: " + e.Reason
	default:
		return "validation: invalid snapshot"
	}
}

// Validate checks referential integrity: node ids are non-empty and unique, and every edge source and
// target names a node in the same snapshot. It fails closed and never drops dangling edges.
// Returns *ValidationError for the first offending node or edge.
func (s Snapshot) Validate() error {
	ids := make(map[string]struct{}, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "id", Reason: fmt.Sprintf("node at index %d has an empty id", i)}
		}
		if _, dup := ids[n.ID]; dup {
			return &ValidationError{Field: "id", NodeID: n.ID, Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		ids[n.ID] = struct{}{}
	}
	for i, e := range s.Edges {
		edgeID := e.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("#%d", i)
		}
		if _, ok := ids[e.Source]; !ok {
			return &ValidationError{EdgeID: edgeID, Field: "source", NodeID: e.Source}
		}
		if _, ok := ids[e.Target]; !ok {
			return &ValidationError{EdgeID: edgeID, Field: "target", NodeID: e.Target}
		}
	}
	return nil
}

// Clone returns a deep copy so stored history never aliases caller-owned slices.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{SelectedEdgeID: s.SelectedEdgeID}
	if s.Nodes != nil {
		out.Nodes = make([]Node, len(s.Nodes))
		for i, n := range s.Nodes {
			if n.Width != nil {
				w := *n.Width
				n.Width = &w
			}
			if n.Height != nil {
				h := *n.Height
				n.Height = &h
			}
			if n.Data != nil {
				n.Data = append(json.RawMessage(nil), n.Data...)
			}
			out.Nodes[i] = n
		}
	}
	if s.Edges != nil {
		out.Edges = append([]Edge(nil), s.Edges...)
	}
	if s.SelectedNodeIDs != nil {
		out.SelectedNodeIDs = append([]string(nil), s.SelectedNodeIDs...)
	}
	return out
}

// Normalize replaces nil slices with empty ones so the JSON form always carries arrays.
func (s Snapshot) Normalize() Snapshot {
	if s.Nodes == nil {
		s.Nodes = []Node{}
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	if s.SelectedNodeIDs == nil {
		s.SelectedNodeIDs = []string{}
	}
	return s
}

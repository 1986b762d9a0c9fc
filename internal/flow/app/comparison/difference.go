package comparison

import (
	"github.com/flowvault-go/internal/domain/flow"
)

type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeRemoved  ChangeType = "REMOVED"
	ChangeModified ChangeType = "MODIFIED"
)

// PropertyChange is the before/after pair of one changed field.
type PropertyChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type NodeChange struct {
	NodeID          string                    `json:"nodeId"`
	ChangeType      ChangeType                `json:"changeType"`
	Before          *flow.FlowNode            `json:"before,omitempty"`
	After           *flow.FlowNode            `json:"after,omitempty"`
	PropertyChanges map[string]PropertyChange `json:"propertyChanges,omitempty"`
}

type EdgeChange struct {
	EdgeID          int64                     `json:"edgeId"`
	ChangeType      ChangeType                `json:"changeType"`
	Before          *flow.FlowEdge            `json:"before,omitempty"`
	After           *flow.FlowEdge            `json:"after,omitempty"`
	PropertyChanges map[string]PropertyChange `json:"propertyChanges,omitempty"`
}

type MetadataChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// VersionDifference is the structural diff between two published versions.
// Node and edge changes are sorted by id.
type VersionDifference struct {
	FlowID          string           `json:"flowId"`
	FromVersion     int              `json:"fromVersion"`
	ToVersion       int              `json:"toVersion"`
	NodeChanges     []NodeChange     `json:"nodeChanges"`
	EdgeChanges     []EdgeChange     `json:"edgeChanges"`
	MetadataChanges []MetadataChange `json:"metadataChanges"`
}

func (d *VersionDifference) HasChanges() bool {
	return len(d.NodeChanges) > 0 || len(d.EdgeChanges) > 0 || len(d.MetadataChanges) > 0
}

// Counts returns the number of node and edge changes per change type.
func (d *VersionDifference) Counts() map[ChangeType]int {
	counts := map[ChangeType]int{
		ChangeAdded:    0,
		ChangeRemoved:  0,
		ChangeModified: 0,
	}
	for _, c := range d.NodeChanges {
		counts[c.ChangeType]++
	}
	for _, c := range d.EdgeChanges {
		counts[c.ChangeType]++
	}
	return counts
}

func (d *VersionDifference) NodesWith(change ChangeType) []string {
	var ids []string
	for _, c := range d.NodeChanges {
		if c.ChangeType == change {
			ids = append(ids, c.NodeID)
		}
	}
	return ids
}

func (d *VersionDifference) EdgesWith(change ChangeType) []int64 {
	var ids []int64
	for _, c := range d.EdgeChanges {
		if c.ChangeType == change {
			ids = append(ids, c.EdgeID)
		}
	}
	return ids
}

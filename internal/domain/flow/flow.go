package flow

import (
	"time"
)

// Flow status constants
const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
)

// Node types
const (
	NodeTypeStart     = "start"
	NodeTypeTask      = "task"
	NodeTypeCondition = "condition"
	NodeTypeParallel  = "parallel"
	NodeTypeEnd       = "end"
)

// FlowDefinition is the mutable head record of a flow.
type FlowDefinition struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	Expression  string    `json:"expression" gorm:"type:text"`
	Status      string    `json:"status" gorm:"not null;size:16;default:'DRAFT'"`
	Version     int       `json:"version" gorm:"not null;default:1"`
	CreatedBy   string    `json:"createdBy"`
	UpdatedBy   string    `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (FlowDefinition) TableName() string { return "flow_definitions" }

func (f *FlowDefinition) IsPublished() bool {
	return f.Status == StatusPublished
}

// FlowNode belongs to exactly one flow; ids are unique within the flow.
type FlowNode struct {
	FlowID    string    `json:"flowId" gorm:"primaryKey;size:64"`
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name"`
	Type      string    `json:"type" gorm:"not null;size:32"`
	Config    string    `json:"config" gorm:"type:text"`
	PositionX float64   `json:"positionX"`
	PositionY float64   `json:"positionY"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (FlowNode) TableName() string { return "flow_nodes" }

// FlowEdge connects two nodes of the same flow. Edge ids are numbered per flow.
type FlowEdge struct {
	FlowID       string    `json:"flowId" gorm:"primaryKey;size:64"`
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	SourceNodeID string    `json:"sourceNodeId" gorm:"not null;size:64"`
	TargetNodeID string    `json:"targetNodeId" gorm:"not null;size:64"`
	Condition    string    `json:"condition"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

func (FlowEdge) TableName() string { return "flow_edges" }

// VersionHistory is the immutable record of one publish. Only Active ever
// changes after insert.
type VersionHistory struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	FlowID      string    `json:"flowId" gorm:"not null;size:64;uniqueIndex:idx_flow_version"`
	Version     int       `json:"version" gorm:"not null;uniqueIndex:idx_flow_version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Expression  string    `json:"expression" gorm:"type:text"`
	Snapshot    Snapshot  `json:"snapshot" gorm:"serializer:json;type:text"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	CreatedBy   string    `json:"createdBy"`
	UpdatedBy   string    `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (VersionHistory) TableName() string { return "flow_version_histories" }

// FlowDefinitionView is the read-only representation returned by replay.
type FlowDefinitionView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Expression  string     `json:"expression"`
	Status      string     `json:"status"`
	Version     int        `json:"version"`
	Nodes       []FlowNode `json:"nodes"`
	Edges       []FlowEdge `json:"edges"`
	CreatedBy   string     `json:"createdBy"`
	PublishedAt time.Time  `json:"publishedAt"`
}

// FlowPayload is the input of a save. An empty ID creates a new flow.
type FlowPayload struct {
	ID          string        `json:"id"`
	Name        string        `json:"name" validate:"required,max=255"`
	Description string        `json:"description" validate:"max=2000"`
	Status      string        `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	Operator    string        `json:"operator"`
	Nodes       []NodePayload `json:"nodes" validate:"dive"`
	Edges       []EdgePayload `json:"edges" validate:"dive"`
}

type NodePayload struct {
	ID        string  `json:"id" validate:"required,max=64"`
	Name      string  `json:"name"`
	Type      string  `json:"type" validate:"required,max=32"`
	Config    string  `json:"config"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

// EdgePayload with ID 0 is a new edge; the next free id of the flow is assigned.
type EdgePayload struct {
	ID           int64  `json:"id" validate:"gte=0"`
	SourceNodeID string `json:"sourceNodeId" validate:"required"`
	TargetNodeID string `json:"targetNodeId" validate:"required"`
	Condition    string `json:"condition"`
}

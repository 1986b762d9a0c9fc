package flow

import (
	"time"
)

// Execution status constants
const (
	ExecutionPending = "PENDING"
	ExecutionRunning = "RUNNING"
	ExecutionSuccess = "SUCCESS"
	ExecutionFailed  = "FAILED"
)

// ExecutionLog records one execution attempt. FlowVersion is bound when the
// log is created and never rewritten afterwards.
type ExecutionLog struct {
	ID                  string     `json:"id" gorm:"primaryKey;size:64"`
	FlowID              string     `json:"flowId" gorm:"not null;size:64;index:idx_exec_flow_version"`
	FlowVersion         *int       `json:"flowVersion" gorm:"index:idx_exec_flow_version"`
	ExecutionInstanceID string     `json:"executionInstanceId" gorm:"size:64;index"`
	Status              string     `json:"status" gorm:"not null;size:16"`
	StartTime           *time.Time `json:"startTime" gorm:"index"`
	EndTime             *time.Time `json:"endTime"`
	Duration            int64      `json:"duration"` // milliseconds
	ErrorMessage        string     `json:"errorMessage" gorm:"type:text"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (ExecutionLog) TableName() string { return "flow_execution_logs" }

// DurationSeconds returns end-start in seconds when both are known.
func (l *ExecutionLog) DurationSeconds() (float64, bool) {
	if l.StartTime == nil || l.EndTime == nil {
		return 0, false
	}
	return l.EndTime.Sub(*l.StartTime).Seconds(), true
}

// NodeExecutionLog is one visited node of an execution.
type NodeExecutionLog struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:64"`
	FlowExecutionLogID string     `json:"flowExecutionLogId" gorm:"not null;size:64;index"`
	NodeID             string     `json:"nodeId" gorm:"size:64"`
	NodeName           string     `json:"nodeName"`
	NodeType           string     `json:"nodeType" gorm:"size:32"`
	Status             string     `json:"status" gorm:"size:16"`
	StartTime          *time.Time `json:"startTime"`
	EndTime            *time.Time `json:"endTime"`
	Duration           int64      `json:"duration"`
	ErrorMessage       string     `json:"errorMessage" gorm:"type:text"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func (NodeExecutionLog) TableName() string { return "flow_node_execution_logs" }

// IntPtr is a small helper for the nullable version column.
func IntPtr(v int) *int {
	return &v
}

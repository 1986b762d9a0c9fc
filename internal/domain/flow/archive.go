package flow

import (
	"time"
)

// Archive strategies
const (
	StrategyByTime  = "BY_TIME"
	StrategyByCount = "BY_COUNT"
	StrategyByUsage = "BY_USAGE"
	StrategyManual  = "MANUAL"
)

// Archive operation statuses
const (
	OperationRunning   = "RUNNING"
	OperationCompleted = "COMPLETED"
	OperationPartial   = "PARTIAL"
	OperationFailed    = "FAILED"
)

// ArchivedVersionHistory is the cold copy of a VersionHistory row.
type ArchivedVersionHistory struct {
	ID                string    `json:"id" gorm:"primaryKey;size:64"`
	OriginalHistoryID string    `json:"originalHistoryId" gorm:"size:64;index"`
	FlowID            string    `json:"flowId" gorm:"not null;size:64;index:idx_archived_flow_version"`
	Version           int       `json:"version" gorm:"not null;index:idx_archived_flow_version"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Expression        string    `json:"expression" gorm:"type:text"`
	Snapshot          Snapshot  `json:"snapshot" gorm:"serializer:json;type:text"`
	CreatedBy         string    `json:"createdBy"`
	UpdatedBy         string    `json:"updatedBy"`
	OriginalCreatedAt time.Time `json:"originalCreatedAt"`
	Strategy          string    `json:"strategy" gorm:"size:16"`
	Reason            string    `json:"reason"`
	OperationID       string    `json:"operationId" gorm:"size:64;index"`
	ArchivedBy        string    `json:"archivedBy"`
	ArchivedAt        time.Time `json:"archivedAt"`
}

func (ArchivedVersionHistory) TableName() string { return "flow_archived_version_histories" }

// ArchivedExecutionLog is the cold copy of an ExecutionLog row.
type ArchivedExecutionLog struct {
	ID                  string     `json:"id" gorm:"primaryKey;size:64"`
	FlowID              string     `json:"flowId" gorm:"not null;size:64;index"`
	FlowVersion         *int       `json:"flowVersion"`
	ExecutionInstanceID string     `json:"executionInstanceId" gorm:"size:64"`
	Status              string     `json:"status" gorm:"size:16"`
	StartTime           *time.Time `json:"startTime"`
	EndTime             *time.Time `json:"endTime"`
	Duration            int64      `json:"duration"`
	ErrorMessage        string     `json:"errorMessage" gorm:"type:text"`
	OriginalCreatedAt   time.Time  `json:"originalCreatedAt"`
	Strategy            string     `json:"strategy" gorm:"size:16"`
	OperationID         string     `json:"operationId" gorm:"size:64;index"`
	ArchivedAt          time.Time  `json:"archivedAt"`
}

func (ArchivedExecutionLog) TableName() string { return "flow_archived_execution_logs" }

func NewArchivedExecutionLog(l ExecutionLog, strategy, operationID string, at time.Time) ArchivedExecutionLog {
	return ArchivedExecutionLog{
		ID:                  l.ID,
		FlowID:              l.FlowID,
		FlowVersion:         l.FlowVersion,
		ExecutionInstanceID: l.ExecutionInstanceID,
		Status:              l.Status,
		StartTime:           l.StartTime,
		EndTime:             l.EndTime,
		Duration:            l.Duration,
		ErrorMessage:        l.ErrorMessage,
		OriginalCreatedAt:   l.CreatedAt,
		Strategy:            strategy,
		OperationID:         operationID,
		ArchivedAt:          at,
	}
}

// ArchivedNodeExecutionLog is the cold copy of a NodeExecutionLog row.
type ArchivedNodeExecutionLog struct {
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
	OperationID        string     `json:"operationId" gorm:"size:64;index"`
	ArchivedAt         time.Time  `json:"archivedAt"`
}

func (ArchivedNodeExecutionLog) TableName() string { return "flow_archived_node_execution_logs" }

func NewArchivedNodeExecutionLog(l NodeExecutionLog, operationID string, at time.Time) ArchivedNodeExecutionLog {
	return ArchivedNodeExecutionLog{
		ID:                 l.ID,
		FlowExecutionLogID: l.FlowExecutionLogID,
		NodeID:             l.NodeID,
		NodeName:           l.NodeName,
		NodeType:           l.NodeType,
		Status:             l.Status,
		StartTime:          l.StartTime,
		EndTime:            l.EndTime,
		Duration:           l.Duration,
		ErrorMessage:       l.ErrorMessage,
		OperationID:        operationID,
		ArchivedAt:         at,
	}
}

// BackupVersionHistory is a pre-archive copy of a history row.
type BackupVersionHistory struct {
	BackupID          string    `json:"backupId" gorm:"primaryKey;size:64"`
	OperationID       string    `json:"operationId" gorm:"size:64;index"`
	OriginalHistoryID string    `json:"originalHistoryId" gorm:"size:64"`
	FlowID            string    `json:"flowId" gorm:"size:64;index"`
	Version           int       `json:"version"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Expression        string    `json:"expression" gorm:"type:text"`
	Snapshot          Snapshot  `json:"snapshot" gorm:"serializer:json;type:text"`
	Active            bool      `json:"active"`
	CreatedBy         string    `json:"createdBy"`
	OriginalCreatedAt time.Time `json:"originalCreatedAt"`
	BackedUpAt        time.Time `json:"backedUpAt"`
}

func (BackupVersionHistory) TableName() string { return "flow_backup_version_histories" }

// BackupExecutionLog is a pre-archive copy of an execution row.
type BackupExecutionLog struct {
	BackupID            string     `json:"backupId" gorm:"primaryKey;size:64"`
	OperationID         string     `json:"operationId" gorm:"size:64;index"`
	OriginalID          string     `json:"originalId" gorm:"size:64"`
	FlowID              string     `json:"flowId" gorm:"size:64;index"`
	FlowVersion         *int       `json:"flowVersion"`
	ExecutionInstanceID string     `json:"executionInstanceId" gorm:"size:64"`
	Status              string     `json:"status" gorm:"size:16"`
	StartTime           *time.Time `json:"startTime"`
	EndTime             *time.Time `json:"endTime"`
	Duration            int64      `json:"duration"`
	ErrorMessage        string     `json:"errorMessage" gorm:"type:text"`
	BackedUpAt          time.Time  `json:"backedUpAt"`
}

func (BackupExecutionLog) TableName() string { return "flow_backup_execution_logs" }

// ArchiveOperationLog audits one archive run.
type ArchiveOperationLog struct {
	ID            string     `json:"id" gorm:"primaryKey;size:64"`
	FlowID        string     `json:"flowId" gorm:"not null;size:64;index"`
	Strategy      string     `json:"strategy" gorm:"size:16"`
	Status        string     `json:"status" gorm:"size:16"`
	Operator      string     `json:"operator"`
	Versions      []int      `json:"versions" gorm:"serializer:json;type:text"`
	ArchivedCount int        `json:"archivedCount"`
	SkippedCount  int        `json:"skippedCount"`
	Message       string     `json:"message" gorm:"type:text"`
	StartTime     time.Time  `json:"startTime" gorm:"index"`
	EndTime       *time.Time `json:"endTime"`
}

func (ArchiveOperationLog) TableName() string { return "flow_archive_operation_logs" }

// ArchiveBundle is everything moved out of the hot tables for one version.
type ArchiveBundle struct {
	History           ArchivedVersionHistory     `json:"history"`
	ExecutionLogs     []ArchivedExecutionLog     `json:"executionLogs"`
	NodeExecutionLogs []ArchivedNodeExecutionLog `json:"nodeExecutionLogs"`
}

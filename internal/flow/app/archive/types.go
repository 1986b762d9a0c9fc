package archive

import (
	"time"
)

// ArchiveConfig selects which versions of a flow leave the hot tables.
// Only the field matching Strategy is read.
type ArchiveConfig struct {
	Strategy      string `json:"strategy" validate:"required,oneof=BY_TIME BY_COUNT BY_USAGE MANUAL"`
	OlderThanDays int    `json:"olderThanDays" validate:"gte=0"`
	KeepVersions  int    `json:"keepVersions" validate:"gte=0"`
	MinExecutions int64  `json:"minExecutions" validate:"gte=0"`
	Versions      []int  `json:"versions" validate:"omitempty,dive,gt=0"`
	// ActiveGuardDays overrides the manager's guard window when positive.
	ActiveGuardDays     int    `json:"activeGuardDays" validate:"gte=0"`
	DryRun              bool   `json:"dryRun"`
	BackupBeforeArchive bool   `json:"backupBeforeArchive"`
	Reason              string `json:"reason" validate:"max=255"`
	Operator            string `json:"operator" validate:"max=64"`
}

type ArchiveStatistics struct {
	ActiveVersions        int           `json:"activeVersions"`
	CandidateCount        int           `json:"candidateCount"`
	ArchivedCount         int           `json:"archivedCount"`
	SkippedCount          int           `json:"skippedCount"`
	ArchivedExecutionLogs int           `json:"archivedExecutionLogs"`
	ArchivedNodeLogs      int           `json:"archivedNodeLogs"`
	EstimatedSavingsBytes int64         `json:"estimatedSavingsBytes"`
	Duration              time.Duration `json:"duration"`
}

type ArchiveResult struct {
	OperationID       string            `json:"operationId,omitempty"`
	FlowID            string            `json:"flowId"`
	Strategy          string            `json:"strategy"`
	DryRun            bool              `json:"dryRun"`
	Status            string            `json:"status"`
	CandidateVersions []int             `json:"candidateVersions"`
	GuardedVersions   []int             `json:"guardedVersions"`
	ArchivedVersions  []int             `json:"archivedVersions"`
	SkippedVersions   []int             `json:"skippedVersions"`
	Warnings          []string          `json:"warnings"`
	Statistics        ArchiveStatistics `json:"statistics"`
}

type ArchiveRecommendation struct {
	Strategy string        `json:"strategy"`
	Reason   string        `json:"reason"`
	Versions []int         `json:"versions"`
	Config   ArchiveConfig `json:"config"`
}

type ArchiveRecommendations struct {
	FlowID          string                  `json:"flowId"`
	TotalVersions   int                     `json:"totalVersions"`
	OldVersions     []int                   `json:"oldVersions"`
	UnusedVersions  []int                   `json:"unusedVersions"`
	Recommendations []ArchiveRecommendation `json:"recommendations"`
}

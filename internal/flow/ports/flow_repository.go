package ports

import (
	"context"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
)

// FlowRepository persists definitions, their graphs and version history.
// Implementations return *flow.NotFoundError for missing rows and
// *flow.StorageError for every other persistence failure.
type FlowRepository interface {
	Ping(ctx context.Context) error

	// WithinTransaction runs fn against a repository bound to one
	// transaction. An error from fn rolls everything back.
	WithinTransaction(ctx context.Context, fn func(repo FlowRepository) error) error

	CreateFlow(ctx context.Context, def *flow.FlowDefinition) error
	GetFlow(ctx context.Context, flowID string) (*flow.FlowDefinition, error)
	UpdateFlow(ctx context.Context, def *flow.FlowDefinition) error
	ListFlowIDs(ctx context.Context) ([]string, error)
	ListFlowsByStatus(ctx context.Context, status string) ([]flow.FlowDefinition, error)
	// DeleteFlow removes the definition with its nodes, edges, history,
	// execution logs and node execution logs.
	DeleteFlow(ctx context.Context, flowID string) error

	GetNodes(ctx context.Context, flowID string) ([]flow.FlowNode, error)
	GetEdges(ctx context.Context, flowID string) ([]flow.FlowEdge, error)
	// ReplaceGraph makes the stored graph equal to nodes/edges: missing ids
	// are deleted, known ids updated, new ids inserted.
	ReplaceGraph(ctx context.Context, flowID string, nodes []flow.FlowNode, edges []flow.FlowEdge) error

	CountHistory(ctx context.Context, flowID string) (int64, error)
	CreateHistory(ctx context.Context, h *flow.VersionHistory) error
	GetHistory(ctx context.Context, historyID string) (*flow.VersionHistory, error)
	GetHistoryByVersion(ctx context.Context, flowID string, version int) (*flow.VersionHistory, error)
	ListHistory(ctx context.Context, flowID string, activeOnly bool) ([]flow.VersionHistory, error)
}

type ExecutionLogFilter struct {
	FlowID  string
	Version *int
	Since   *time.Time
	Status  string
}

type ExecutionLogRepository interface {
	CreateExecutionLog(ctx context.Context, log *flow.ExecutionLog) error
	GetExecutionLog(ctx context.Context, id string) (*flow.ExecutionLog, error)
	// FinishExecutionLog updates status, timing and error. The bound flow
	// version is never rewritten.
	FinishExecutionLog(ctx context.Context, log *flow.ExecutionLog) error
	CreateNodeExecutionLog(ctx context.Context, log *flow.NodeExecutionLog) error

	ListExecutionLogs(ctx context.Context, filter ExecutionLogFilter) ([]flow.ExecutionLog, error)
	ListNodeExecutionLogs(ctx context.Context, executionLogIDs []string) ([]flow.NodeExecutionLog, error)
	CountExecutionsByVersion(ctx context.Context, flowID string) (map[int]int64, error)
	// VersionsExecutedSince returns the distinct versions with an execution
	// started at or after since.
	VersionsExecutedSince(ctx context.Context, flowID string, since time.Time) ([]int, error)
	VersionsWithStatus(ctx context.Context, flowID, status string) ([]int, error)
}

type ArchiveVersionRequest struct {
	FlowID      string
	Version     int
	Strategy    string
	Reason      string
	OperationID string
	Operator    string
}

type ArchiveRepository interface {
	// BackupVersions copies history and execution rows of the given versions
	// into the backup tables.
	BackupVersions(ctx context.Context, operationID, flowID string, versions []int) error
	// ArchiveVersion moves one version out of the hot tables in its own
	// transaction and returns what was moved.
	ArchiveVersion(ctx context.Context, req ArchiveVersionRequest) (*flow.ArchiveBundle, error)
	RestoreVersion(ctx context.Context, flowID string, version int) error
	ListArchivedVersions(ctx context.Context, flowID string) ([]flow.ArchivedVersionHistory, error)

	CreateOperationLog(ctx context.Context, op *flow.ArchiveOperationLog) error
	UpdateOperationLog(ctx context.Context, op *flow.ArchiveOperationLog) error
	ListOperationLogs(ctx context.Context, flowID string, limit int) ([]flow.ArchiveOperationLog, error)
}

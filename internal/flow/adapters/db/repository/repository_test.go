package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *database.DB {
	// Use in-memory SQLite for testing; one connection keeps one database.
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := &database.DB{DB: gormDB}
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedFlow(t *testing.T, repo *FlowRepository) *flow.FlowDefinition {
	ctx := context.Background()
	def := &flow.FlowDefinition{
		ID:      uuid.New().String(),
		Name:    "orders",
		Status:  flow.StatusDraft,
		Version: 1,
	}
	require.NoError(t, repo.CreateFlow(ctx, def))

	nodes := []flow.FlowNode{
		{ID: "start", Type: flow.NodeTypeStart},
		{ID: "task", Type: flow.NodeTypeTask, Config: `{"retries":1}`},
	}
	edges := []flow.FlowEdge{{ID: 1, SourceNodeID: "start", TargetNodeID: "task"}}
	require.NoError(t, repo.ReplaceGraph(ctx, def.ID, nodes, edges))

	return def
}

func TestFlowRepository_GetFlowNotFound(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))

	_, err := repo.GetFlow(context.Background(), "missing")
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

func TestFlowRepository_ReplaceGraph(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	nodes := []flow.FlowNode{
		{ID: "start", Type: flow.NodeTypeStart},
		{ID: "end", Type: flow.NodeTypeEnd},
	}
	edges := []flow.FlowEdge{{ID: 2, SourceNodeID: "start", TargetNodeID: "end"}}
	require.NoError(t, repo.ReplaceGraph(ctx, def.ID, nodes, edges))

	stored, err := repo.GetNodes(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "end", stored[0].ID)
	assert.Equal(t, "start", stored[1].ID)

	storedEdges, err := repo.GetEdges(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, storedEdges, 1)
	assert.Equal(t, int64(2), storedEdges[0].ID)
}

func TestFlowRepository_ReplaceGraphRejectsDanglingEdge(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	err := repo.ReplaceGraph(ctx, def.ID,
		[]flow.FlowNode{{ID: "start", Type: flow.NodeTypeStart}},
		[]flow.FlowEdge{{ID: 1, SourceNodeID: "start", TargetNodeID: "gone"}})
	assert.ErrorIs(t, err, flow.ErrValidation)

	// nothing changed
	nodes, err := repo.GetNodes(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestFlowRepository_WithinTransactionRollsBack(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	boom := errors.New("boom")
	err := repo.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		def.Status = flow.StatusPublished
		def.Version = 2
		if err := tx.UpdateFlow(ctx, def); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, flow.ErrStorage)
	assert.ErrorIs(t, err, boom)

	stored, err := repo.GetFlow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestFlowRepository_HistoryUniquePerVersion(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	h := &flow.VersionHistory{ID: uuid.New().String(), FlowID: def.ID, Version: 2, Active: true}
	require.NoError(t, repo.CreateHistory(ctx, h))

	dup := &flow.VersionHistory{ID: uuid.New().String(), FlowID: def.ID, Version: 2, Active: true}
	assert.ErrorIs(t, repo.CreateHistory(ctx, dup), flow.ErrStorage)

	count, err := repo.CountHistory(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFlowRepository_DeleteFlowCascades(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	require.NoError(t, repo.CreateHistory(ctx, &flow.VersionHistory{ID: uuid.New().String(), FlowID: def.ID, Version: 2, Active: true}))
	exec := &flow.ExecutionLog{FlowID: def.ID, FlowVersion: flow.IntPtr(2), Status: flow.ExecutionSuccess}
	require.NoError(t, repo.CreateExecutionLog(ctx, exec))
	require.NoError(t, repo.CreateNodeExecutionLog(ctx, &flow.NodeExecutionLog{FlowExecutionLogID: exec.ID, NodeID: "task"}))

	require.NoError(t, repo.DeleteFlow(ctx, def.ID))

	_, err := repo.GetFlow(ctx, def.ID)
	assert.ErrorIs(t, err, flow.ErrNotFound)
	nodes, _ := repo.GetNodes(ctx, def.ID)
	assert.Empty(t, nodes)
	histories, _ := repo.ListHistory(ctx, def.ID, false)
	assert.Empty(t, histories)
	logs, _ := repo.ListExecutionLogs(ctx, ports.ExecutionLogFilter{FlowID: def.ID})
	assert.Empty(t, logs)
	nodeLogs, _ := repo.ListNodeExecutionLogs(ctx, []string{exec.ID})
	assert.Empty(t, nodeLogs)
}

func TestFlowRepository_FinishExecutionKeepsVersion(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	start := time.Now().UTC()
	exec := &flow.ExecutionLog{FlowID: def.ID, FlowVersion: flow.IntPtr(3), Status: flow.ExecutionRunning, StartTime: &start}
	require.NoError(t, repo.CreateExecutionLog(ctx, exec))

	end := start.Add(2 * time.Second)
	exec.FlowVersion = flow.IntPtr(9)
	exec.Status = flow.ExecutionSuccess
	exec.EndTime = &end
	require.NoError(t, repo.FinishExecutionLog(ctx, exec))

	stored, err := repo.GetExecutionLog(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.ExecutionSuccess, stored.Status)
	require.NotNil(t, stored.FlowVersion)
	assert.Equal(t, 3, *stored.FlowVersion)
}

func TestFlowRepository_ExecutionAggregates(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	recent := time.Now().UTC().Add(-time.Hour)
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	for _, l := range []*flow.ExecutionLog{
		{FlowID: def.ID, FlowVersion: flow.IntPtr(1), Status: flow.ExecutionSuccess, StartTime: &old},
		{FlowID: def.ID, FlowVersion: flow.IntPtr(1), Status: flow.ExecutionFailed, StartTime: &old},
		{FlowID: def.ID, FlowVersion: flow.IntPtr(2), Status: flow.ExecutionRunning, StartTime: &recent},
	} {
		require.NoError(t, repo.CreateExecutionLog(ctx, l))
	}

	counts, err := repo.CountExecutionsByVersion(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 2, 2: 1}, counts)

	since, err := repo.VersionsExecutedSince(ctx, def.ID, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, since)

	running, err := repo.VersionsWithStatus(ctx, def.ID, flow.ExecutionRunning)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, running)
}

func TestFlowRepository_ArchiveAndRestoreVersion(t *testing.T) {
	repo := NewFlowRepository(setupTestDB(t))
	ctx := context.Background()
	def := seedFlow(t, repo)

	require.NoError(t, repo.CreateHistory(ctx, &flow.VersionHistory{ID: uuid.New().String(), FlowID: def.ID, Version: 2, Active: true}))
	exec := &flow.ExecutionLog{FlowID: def.ID, FlowVersion: flow.IntPtr(2), Status: flow.ExecutionSuccess}
	require.NoError(t, repo.CreateExecutionLog(ctx, exec))
	require.NoError(t, repo.CreateNodeExecutionLog(ctx, &flow.NodeExecutionLog{FlowExecutionLogID: exec.ID, NodeID: "task"}))

	bundle, err := repo.ArchiveVersion(ctx, ports.ArchiveVersionRequest{
		FlowID:      def.ID,
		Version:     2,
		Strategy:    flow.StrategyManual,
		Reason:      "test",
		OperationID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.History.Version)
	assert.Len(t, bundle.ExecutionLogs, 1)
	assert.Len(t, bundle.NodeExecutionLogs, 1)

	h, err := repo.GetHistoryByVersion(ctx, def.ID, 2)
	require.NoError(t, err)
	assert.False(t, h.Active)

	logs, err := repo.ListExecutionLogs(ctx, ports.ExecutionLogFilter{FlowID: def.ID})
	require.NoError(t, err)
	assert.Empty(t, logs)

	// archiving twice is refused
	_, err = repo.ArchiveVersion(ctx, ports.ArchiveVersionRequest{FlowID: def.ID, Version: 2, OperationID: "op-2"})
	assert.ErrorIs(t, err, flow.ErrIllegalState)

	require.NoError(t, repo.RestoreVersion(ctx, def.ID, 2))
	h, err = repo.GetHistoryByVersion(ctx, def.ID, 2)
	require.NoError(t, err)
	assert.True(t, h.Active)

	archived, err := repo.ListArchivedVersions(ctx, def.ID)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

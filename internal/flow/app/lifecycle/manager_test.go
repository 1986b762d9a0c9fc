package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/adapters/db/repository"
	"github.com/flowvault-go/internal/flow/adapters/engine"
	"github.com/flowvault-go/internal/flow/flowtest"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/events"
	"github.com/flowvault-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Register(ctx context.Context, chainID, expression string) error {
	args := m.Called(ctx, chainID, expression)
	return args.Error(0)
}

func (m *mockRegistry) Remove(ctx context.Context, chainID string) error {
	args := m.Called(ctx, chainID)
	return args.Error(0)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	manager  *Manager
	repo     *repository.FlowRepository
	registry *engine.ChainRegistry
	bus      *recordingBus
}

func setup(t *testing.T) *fixture {
	repo := flowtest.NewRepository(t)
	registry := engine.NewChainRegistry(logger.NewNop())
	bus := &recordingBus{}
	return &fixture{
		manager:  NewManager(repo, repo, engine.NewLevelCompiler(), registry, bus, logger.NewNop()),
		repo:     repo,
		registry: registry,
		bus:      bus,
	}
}

func basicPayload() *flow.FlowPayload {
	return &flow.FlowPayload{
		Name:     "order-intake",
		Operator: "alice",
		Nodes: []flow.NodePayload{
			{ID: "start", Name: "Start", Type: flow.NodeTypeStart},
			{ID: "task", Name: "Charge", Type: flow.NodeTypeTask, Config: `{"timeout":30}`},
		},
		Edges: []flow.EdgePayload{
			{SourceNodeID: "start", TargetNodeID: "task"},
		},
	}
}

// payloadFor re-submits the stored graph of flowID, the way an editor would.
func payloadFor(t *testing.T, f *fixture, flowID string) *flow.FlowPayload {
	view, err := f.manager.GetFlow(context.Background(), flowID)
	require.NoError(t, err)

	p := &flow.FlowPayload{ID: view.ID, Name: view.Name, Description: view.Description, Operator: "alice"}
	for _, n := range view.Nodes {
		p.Nodes = append(p.Nodes, flow.NodePayload{ID: n.ID, Name: n.Name, Type: n.Type, Config: n.Config, PositionX: n.PositionX, PositionY: n.PositionY})
	}
	for _, e := range view.Edges {
		p.Edges = append(p.Edges, flow.EdgePayload{ID: e.ID, SourceNodeID: e.SourceNodeID, TargetNodeID: e.TargetNodeID, Condition: e.Condition})
	}
	return p
}

func TestManager_LifecycleScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)

	view, err := f.manager.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Version)
	assert.Equal(t, flow.StatusDraft, view.Status)
	require.Len(t, view.Edges, 1)
	assert.Equal(t, int64(1), view.Edges[0].ID)

	version, err := f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	histories, err := f.manager.ListVersionHistory(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, 2, histories[0].Version)

	expr, ok := f.registry.Lookup(flowID)
	assert.True(t, ok)
	assert.Equal(t, "THEN(start,task)", expr)

	edit := payloadFor(t, f, flowID)
	edit.Nodes[1].Config = `{"timeout":60}`
	_, err = f.manager.SaveFlow(ctx, edit)
	require.NoError(t, err)

	view, err = f.manager.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, view.Status)
	assert.Equal(t, 2, view.Version)

	version, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	assert.Contains(t, f.bus.types(), events.FlowPublished)
}

func TestManager_UnchangedSaveKeepsPublished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	_, err = f.manager.SaveFlow(ctx, payloadFor(t, f, flowID))
	require.NoError(t, err)

	view, err := f.manager.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusPublished, view.Status)
	assert.Equal(t, 2, view.Version)
}

func TestManager_MetadataChangeRevertsToDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	edit := payloadFor(t, f, flowID)
	edit.Description = "now with retries"
	_, err = f.manager.SaveFlow(ctx, edit)
	require.NoError(t, err)

	view, err := f.manager.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, view.Status)
}

func TestManager_RepublishMintsNewVersions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)

	var versions []int
	for i := 0; i < 3; i++ {
		v, err := f.manager.PublishFlow(ctx, flowID)
		require.NoError(t, err)
		versions = append(versions, v)
	}
	assert.Equal(t, []int{2, 3, 4}, versions)
}

func TestManager_PublishPreconditions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.manager.PublishFlow(ctx, "missing")
	assert.ErrorIs(t, err, flow.ErrNotFound)

	cases := map[string]*flow.FlowPayload{
		"no nodes": {Name: "empty"},
		"no edges": {Name: "lonely", Nodes: []flow.NodePayload{{ID: "start", Type: flow.NodeTypeStart}}},
		"no start": {
			Name:  "headless",
			Nodes: []flow.NodePayload{{ID: "a", Type: flow.NodeTypeTask}, {ID: "b", Type: flow.NodeTypeTask}},
			Edges: []flow.EdgePayload{{SourceNodeID: "a", TargetNodeID: "b"}},
		},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			flowID, err := f.manager.SaveFlow(ctx, payload)
			require.NoError(t, err)

			_, err = f.manager.PublishFlow(ctx, flowID)
			assert.ErrorIs(t, err, flow.ErrNotPublishable)

			view, err := f.manager.GetFlow(ctx, flowID)
			require.NoError(t, err)
			assert.Equal(t, flow.StatusDraft, view.Status)
		})
	}
}

func TestManager_PublishRollsBackWhenRegistrationFails(t *testing.T) {
	repo := flowtest.NewRepository(t)
	registry := &mockRegistry{}
	registry.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("engine unavailable"))
	m := NewManager(repo, repo, engine.NewLevelCompiler(), registry, nil, logger.NewNop())
	ctx := context.Background()

	flowID, err := m.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)

	_, err = m.PublishFlow(ctx, flowID)
	require.Error(t, err)

	def, err := repo.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, def.Status)
	assert.Equal(t, 1, def.Version)

	count, err := repo.CountHistory(ctx, flowID)
	require.NoError(t, err)
	assert.Zero(t, count)
	registry.AssertExpectations(t)
}

func TestManager_SnapshotIsImmutable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	edit := payloadFor(t, f, flowID)
	edit.Nodes[1].Config = `{"timeout":1}`
	edit.Nodes = append(edit.Nodes, flow.NodePayload{ID: "end", Type: flow.NodeTypeEnd})
	edit.Edges = append(edit.Edges, flow.EdgePayload{SourceNodeID: "task", TargetNodeID: "end"})
	_, err = f.manager.SaveFlow(ctx, edit)
	require.NoError(t, err)

	view, err := f.manager.ReplayFlowVersion(ctx, flowID, 2)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusPublished, view.Status)
	require.Len(t, view.Nodes, 2)
	assert.Len(t, view.Edges, 1)
	for _, n := range view.Nodes {
		if n.ID == "task" {
			assert.Equal(t, `{"timeout":30}`, n.Config)
		}
	}

	_, err = f.manager.ReplayFlowVersion(ctx, flowID, 9)
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

func TestManager_CloneFromHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	payload := basicPayload()
	payload.Nodes = append(payload.Nodes, flow.NodePayload{ID: "end", Type: flow.NodeTypeEnd})
	payload.Edges = append(payload.Edges, flow.EdgePayload{SourceNodeID: "task", TargetNodeID: "end", Condition: "ok"})
	flowID, err := f.manager.SaveFlow(ctx, payload)
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	histories, err := f.manager.ListVersionHistory(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, histories, 1)

	cloneID, err := f.manager.CloneFromHistory(ctx, histories[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, flowID, cloneID)

	clone, err := f.manager.GetFlow(ctx, cloneID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, clone.Status)
	assert.Equal(t, 1, clone.Version)
	require.Len(t, clone.Nodes, 3)
	require.Len(t, clone.Edges, 2)

	ids := map[string]bool{}
	for _, n := range clone.Nodes {
		ids[n.ID] = true
		assert.NotContains(t, []string{"start", "task", "end"}, n.ID)
	}
	for _, e := range clone.Edges {
		assert.True(t, ids[e.SourceNodeID], "dangling source %s", e.SourceNodeID)
		assert.True(t, ids[e.TargetNodeID], "dangling target %s", e.TargetNodeID)
	}

	// the source flow is untouched
	source, err := f.manager.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusPublished, source.Status)

	_, err = f.manager.CloneFromHistory(ctx, "missing")
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

func TestManager_DeleteFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	err = f.manager.DeleteFlow(ctx, flowID)
	assert.ErrorIs(t, err, flow.ErrIllegalState)

	edit := payloadFor(t, f, flowID)
	edit.Name = "renamed"
	_, err = f.manager.SaveFlow(ctx, edit)
	require.NoError(t, err)

	execLog, err := f.manager.RecordExecutionStart(ctx, &flow.ExecutionLog{FlowID: flowID})
	require.NoError(t, err)
	require.NoError(t, f.manager.RecordNodeExecution(ctx, &flow.NodeExecutionLog{FlowExecutionLogID: execLog.ID, NodeID: "task"}))

	require.NoError(t, f.manager.DeleteFlow(ctx, flowID))

	_, err = f.manager.GetFlow(ctx, flowID)
	assert.ErrorIs(t, err, flow.ErrNotFound)
	_, ok := f.registry.Lookup(flowID)
	assert.False(t, ok)

	logs, err := f.repo.ListExecutionLogs(ctx, ports.ExecutionLogFilter{FlowID: flowID})
	require.NoError(t, err)
	assert.Empty(t, logs)
	histories, err := f.repo.ListHistory(ctx, flowID, false)
	require.NoError(t, err)
	assert.Empty(t, histories)
}

func TestManager_SaveFlowValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.manager.SaveFlow(ctx, nil)
	assert.ErrorIs(t, err, flow.ErrValidation)

	noName := basicPayload()
	noName.Name = ""
	_, err = f.manager.SaveFlow(ctx, noName)
	assert.ErrorIs(t, err, flow.ErrValidation)

	dangling := basicPayload()
	dangling.Edges = append(dangling.Edges, flow.EdgePayload{SourceNodeID: "task", TargetNodeID: "ghost"})
	_, err = f.manager.SaveFlow(ctx, dangling)
	assert.ErrorIs(t, err, flow.ErrValidation)

	dup := basicPayload()
	dup.Nodes = append(dup.Nodes, flow.NodePayload{ID: "task", Type: flow.NodeTypeTask})
	_, err = f.manager.SaveFlow(ctx, dup)
	assert.ErrorIs(t, err, flow.ErrValidation)

	ids, err := f.repo.ListFlowIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = f.manager.SaveFlow(ctx, &flow.FlowPayload{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

func TestManager_ExecutionBindsToVersion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	started := time.Now().UTC().Add(-1500 * time.Millisecond)
	execLog, err := f.manager.RecordExecutionStart(ctx, &flow.ExecutionLog{FlowID: flowID, StartTime: &started})
	require.NoError(t, err)
	require.NotNil(t, execLog.FlowVersion)
	assert.Equal(t, 2, *execLog.FlowVersion)
	assert.Equal(t, flow.ExecutionRunning, execLog.Status)

	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	finished, err := f.manager.RecordExecutionFinish(ctx, execLog.ID, flow.ExecutionSuccess, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, finished.Duration, int64(1500))

	stored, err := f.repo.GetExecutionLog(ctx, execLog.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *stored.FlowVersion)
	assert.Equal(t, flow.ExecutionSuccess, stored.Status)

	_, err = f.manager.RecordExecutionFinish(ctx, execLog.ID, flow.ExecutionRunning, "")
	assert.ErrorIs(t, err, flow.ErrValidation)

	err = f.manager.RecordNodeExecution(ctx, &flow.NodeExecutionLog{FlowExecutionLogID: "missing"})
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

var errCommit = errors.New("commit failed")

// commitFailingRepo aborts every transaction after fn succeeded, as a failed
// commit would.
type commitFailingRepo struct {
	*repository.FlowRepository
}

func (r *commitFailingRepo) WithinTransaction(ctx context.Context, fn func(repo ports.FlowRepository) error) error {
	return r.FlowRepository.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestManager_FailedCommitRestoresPreviousChain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	edit := payloadFor(t, f, flowID)
	edit.Nodes = append(edit.Nodes, flow.NodePayload{ID: "end", Type: flow.NodeTypeEnd})
	edit.Edges = append(edit.Edges, flow.EdgePayload{SourceNodeID: "task", TargetNodeID: "end"})
	_, err = f.manager.SaveFlow(ctx, edit)
	require.NoError(t, err)

	failing := NewManager(&commitFailingRepo{f.repo}, f.repo, engine.NewLevelCompiler(), f.registry, nil, logger.NewNop())
	_, err = failing.PublishFlow(ctx, flowID)
	require.Error(t, err)

	expr, ok := f.registry.Lookup(flowID)
	require.True(t, ok)
	assert.Equal(t, "THEN(start,task)", expr)

	count, err := f.repo.CountHistory(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestManager_FailedFirstCommitLeavesNoChain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	flowID, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)

	failing := NewManager(&commitFailingRepo{f.repo}, f.repo, engine.NewLevelCompiler(), f.registry, nil, logger.NewNop())
	_, err = failing.PublishFlow(ctx, flowID)
	require.Error(t, err)

	_, ok := f.registry.Lookup(flowID)
	assert.False(t, ok)

	def, err := f.repo.GetFlow(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusDraft, def.Status)
}

func TestManager_ReloadChains(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	published, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)
	_, err = f.manager.PublishFlow(ctx, published)
	require.NoError(t, err)

	draft, err := f.manager.SaveFlow(ctx, basicPayload())
	require.NoError(t, err)

	restarted := engine.NewChainRegistry(logger.NewNop())
	m := NewManager(f.repo, f.repo, engine.NewLevelCompiler(), restarted, nil, logger.NewNop())

	loaded, err := m.ReloadChains(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	expr, ok := restarted.Lookup(published)
	require.True(t, ok)
	assert.Equal(t, "THEN(start,task)", expr)

	_, ok = restarted.Lookup(draft)
	assert.False(t, ok)
}

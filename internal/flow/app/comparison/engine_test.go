package comparison

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/adapters/db/repository"
	"github.com/flowvault-go/internal/flow/adapters/engine"
	"github.com/flowvault-go/internal/flow/app/lifecycle"
	"github.com/flowvault-go/internal/flow/flowtest"
	"github.com/flowvault-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Engine, *lifecycle.Manager, *repository.FlowRepository) {
	repo := flowtest.NewRepository(t)
	log := logger.NewNop()
	manager := lifecycle.NewManager(repo, repo, engine.NewLevelCompiler(), engine.NewChainRegistry(log), nil, log)
	return NewEngine(repo, log), manager, repo
}

func history(version int, name string, nodes []flow.FlowNode, edges []flow.FlowEdge) *flow.VersionHistory {
	return &flow.VersionHistory{
		FlowID:   "f1",
		Version:  version,
		Name:     name,
		Snapshot: flow.NewSnapshot(nodes, edges),
	}
}

func TestEngine_CompareVersionsScenario(t *testing.T) {
	cmp, manager, _ := setup(t)
	ctx := context.Background()

	flowID, err := manager.SaveFlow(ctx, &flow.FlowPayload{
		Name: "order-intake",
		Nodes: []flow.NodePayload{
			{ID: "start", Name: "Start", Type: flow.NodeTypeStart},
			{ID: "task", Name: "Charge", Type: flow.NodeTypeTask, Config: `{"timeout":30}`},
		},
		Edges: []flow.EdgePayload{{SourceNodeID: "start", TargetNodeID: "task"}},
	})
	require.NoError(t, err)

	v, err := manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = manager.SaveFlow(ctx, &flow.FlowPayload{
		ID:   flowID,
		Name: "order-intake",
		Nodes: []flow.NodePayload{
			{ID: "start", Name: "Start", Type: flow.NodeTypeStart},
			{ID: "task", Name: "Charge", Type: flow.NodeTypeTask, Config: `{"timeout":60}`},
		},
		Edges: []flow.EdgePayload{{ID: 1, SourceNodeID: "start", TargetNodeID: "task"}},
	})
	require.NoError(t, err)

	v, err = manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)
	require.Equal(t, 3, v)

	diff, err := cmp.CompareVersions(ctx, flowID, 2, 3)
	require.NoError(t, err)

	require.Len(t, diff.NodeChanges, 1)
	change := diff.NodeChanges[0]
	assert.Equal(t, "task", change.NodeID)
	assert.Equal(t, ChangeModified, change.ChangeType)
	require.Contains(t, change.PropertyChanges, "config")
	assert.Len(t, change.PropertyChanges, 1)
	assert.Equal(t, `{"timeout":30}`, change.PropertyChanges["config"].Before)
	assert.Equal(t, `{"timeout":60}`, change.PropertyChanges["config"].After)
	assert.Empty(t, diff.EdgeChanges)
	assert.Empty(t, diff.MetadataChanges)
}

func TestEngine_CompareVersionsNotFound(t *testing.T) {
	cmp, manager, _ := setup(t)
	ctx := context.Background()

	_, err := cmp.CompareVersions(ctx, "missing", 1, 2)
	assert.True(t, errors.Is(err, flow.ErrNotFound))

	flowID, err := manager.SaveFlow(ctx, &flow.FlowPayload{
		Name:  "single",
		Nodes: []flow.NodePayload{{ID: "s", Type: flow.NodeTypeStart}, {ID: "e", Type: flow.NodeTypeEnd}},
		Edges: []flow.EdgePayload{{SourceNodeID: "s", TargetNodeID: "e"}},
	})
	require.NoError(t, err)
	_, err = manager.PublishFlow(ctx, flowID)
	require.NoError(t, err)

	_, err = cmp.CompareVersions(ctx, flowID, 2, 9)
	var nf *flow.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCompare_Classification(t *testing.T) {
	from := history(2, "orders",
		[]flow.FlowNode{
			{ID: "a", Name: "A", Type: flow.NodeTypeStart},
			{ID: "b", Name: "B", Type: flow.NodeTypeTask, PositionX: 10},
			{ID: "c", Name: "C", Type: flow.NodeTypeTask},
		},
		[]flow.FlowEdge{
			{ID: 1, SourceNodeID: "a", TargetNodeID: "b"},
			{ID: 2, SourceNodeID: "b", TargetNodeID: "c"},
		},
	)
	to := history(3, "orders-v2",
		[]flow.FlowNode{
			{ID: "a", Name: "A", Type: flow.NodeTypeStart},
			{ID: "b", Name: "B2", Type: flow.NodeTypeCondition, PositionX: 20},
			{ID: "d", Name: "D", Type: flow.NodeTypeEnd},
		},
		[]flow.FlowEdge{
			{ID: 1, SourceNodeID: "a", TargetNodeID: "d"},
			{ID: 3, SourceNodeID: "b", TargetNodeID: "d"},
		},
	)

	diff := Compare(from, to)

	assert.Equal(t, []string{"d"}, diff.NodesWith(ChangeAdded))
	assert.Equal(t, []string{"c"}, diff.NodesWith(ChangeRemoved))
	assert.Equal(t, []string{"b"}, diff.NodesWith(ChangeModified))

	var modified NodeChange
	for _, c := range diff.NodeChanges {
		if c.NodeID == "b" {
			modified = c
		}
	}
	assert.Len(t, modified.PropertyChanges, 3)
	assert.Equal(t, Position{X: 10}, modified.PropertyChanges["position"].Before)
	assert.Equal(t, Position{X: 20}, modified.PropertyChanges["position"].After)

	assert.Equal(t, []int64{3}, diff.EdgesWith(ChangeAdded))
	assert.Equal(t, []int64{2}, diff.EdgesWith(ChangeRemoved))
	assert.Equal(t, []int64{1}, diff.EdgesWith(ChangeModified))

	require.Len(t, diff.MetadataChanges, 1)
	assert.Equal(t, MetadataChange{Field: "name", Before: "orders", After: "orders-v2"}, diff.MetadataChanges[0])
}

func TestCompare_Symmetry(t *testing.T) {
	v1 := history(1, "x",
		[]flow.FlowNode{{ID: "a", Type: flow.NodeTypeStart}, {ID: "b", Type: flow.NodeTypeTask}},
		[]flow.FlowEdge{{ID: 1, SourceNodeID: "a", TargetNodeID: "b"}},
	)
	v2 := history(2, "x",
		[]flow.FlowNode{{ID: "a", Type: flow.NodeTypeStart}, {ID: "c", Type: flow.NodeTypeTask, Config: "{}"}},
		[]flow.FlowEdge{{ID: 2, SourceNodeID: "a", TargetNodeID: "c"}},
	)

	forward := Compare(v1, v2)
	backward := Compare(v2, v1)

	assert.Equal(t, forward.NodesWith(ChangeAdded), backward.NodesWith(ChangeRemoved))
	assert.Equal(t, forward.NodesWith(ChangeRemoved), backward.NodesWith(ChangeAdded))
	assert.Equal(t, forward.EdgesWith(ChangeAdded), backward.EdgesWith(ChangeRemoved))
	assert.Equal(t, forward.EdgesWith(ChangeRemoved), backward.EdgesWith(ChangeAdded))

	for i, c := range forward.NodeChanges {
		mirror := backward.NodeChanges[i]
		assert.Equal(t, c.NodeID, mirror.NodeID)
		assert.Equal(t, c.Before, mirror.After)
		assert.Equal(t, c.After, mirror.Before)
	}
}

func TestCompare_IdenticalSnapshots(t *testing.T) {
	nodes := []flow.FlowNode{{ID: "a", Type: flow.NodeTypeStart}}
	diff := Compare(history(1, "x", nodes, nil), history(2, "x", nodes, nil))

	assert.False(t, diff.HasChanges())
	assert.Contains(t, GenerateComparisonReport(diff), "No differences.")
}

func TestGenerateComparisonReport(t *testing.T) {
	from := history(2, "orders",
		[]flow.FlowNode{
			{ID: "b", Type: flow.NodeTypeTask, Config: `{"retries":1}`},
			{ID: "a", Type: flow.NodeTypeStart},
		},
		[]flow.FlowEdge{{ID: 1, SourceNodeID: "a", TargetNodeID: "b"}},
	)
	to := history(3, "orders",
		[]flow.FlowNode{
			{ID: "a", Type: flow.NodeTypeStart},
			{ID: "b", Type: flow.NodeTypeTask, Config: `{"retries":3}`, PositionY: 5},
			{ID: "z", Type: flow.NodeTypeEnd},
		},
		[]flow.FlowEdge{
			{ID: 1, SourceNodeID: "a", TargetNodeID: "b"},
			{ID: 2, SourceNodeID: "b", TargetNodeID: "z"},
		},
	)
	to.Description = "adds an end step"

	diff := Compare(from, to)
	report := GenerateComparisonReport(diff)

	assert.Equal(t, report, GenerateComparisonReport(Compare(from, to)))
	assert.True(t, strings.HasPrefix(report, "Version comparison for flow f1: v2 -> v3\n"))
	assert.Contains(t, report, "ADDED: 2\n")
	assert.Contains(t, report, "REMOVED: 0\n")
	assert.Contains(t, report, "MODIFIED: 1\n")
	assert.Contains(t, report, "METADATA: 1\n")
	assert.Contains(t, report, `description: "" -> "adds an end step"`)
	assert.Contains(t, report, `b: config "{\"retries\":1}" -> "{\"retries\":3}"; position (0,0) -> (0,5)`)
	assert.Contains(t, report, "#2 b -> z")

	assert.Less(t, strings.Index(report, "Node changes:"), strings.Index(report, "Edge changes:"))
	assert.Less(t, strings.Index(report, "MODIFIED b"), strings.Index(report, "ADDED    z"))
}

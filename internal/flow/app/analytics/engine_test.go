package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/adapters/db/repository"
	"github.com/flowvault-go/internal/flow/flowtest"
	"github.com/flowvault-go/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createFlow(t *testing.T, repo *repository.FlowRepository, versions ...int) string {
	ctx := context.Background()
	def := &flow.FlowDefinition{ID: uuid.New().String(), Name: "billing", Status: flow.StatusPublished, Version: 1}
	require.NoError(t, repo.CreateFlow(ctx, def))
	for _, v := range versions {
		require.NoError(t, repo.CreateHistory(ctx, &flow.VersionHistory{
			ID:      uuid.New().String(),
			FlowID:  def.ID,
			Version: v,
			Name:    def.Name,
			Active:  true,
		}))
		def.Version = v
	}
	require.NoError(t, repo.UpdateFlow(ctx, def))
	return def.ID
}

func addExecution(t *testing.T, repo *repository.FlowRepository, flowID string, version int, status string, start time.Time, d time.Duration, errMsg string) string {
	end := start.Add(d)
	l := &flow.ExecutionLog{
		FlowID:       flowID,
		FlowVersion:  flow.IntPtr(version),
		Status:       status,
		StartTime:    &start,
		EndTime:      &end,
		Duration:     d.Milliseconds(),
		ErrorMessage: errMsg,
	}
	require.NoError(t, repo.CreateExecutionLog(context.Background(), l))
	return l.ID
}

func addNodeFailure(t *testing.T, repo *repository.FlowRepository, execID, nodeID, msg string) {
	require.NoError(t, repo.CreateNodeExecutionLog(context.Background(), &flow.NodeExecutionLog{
		FlowExecutionLogID: execID,
		NodeID:             nodeID,
		NodeName:           nodeID,
		NodeType:           flow.NodeTypeTask,
		Status:             flow.ExecutionFailed,
		ErrorMessage:       msg,
	}))
}

// seed creates versions 2, 3 and 4. Version 2 ran 10 times successfully
// 20 days ago, version 3 ran 10 times yesterday with 2 failures, version 4
// never ran.
func seed(t *testing.T, repo *repository.FlowRepository) string {
	flowID := createFlow(t, repo, 2, 3, 4)
	now := time.Now().UTC()

	old := now.AddDate(0, 0, -20)
	for i := 0; i < 10; i++ {
		addExecution(t, repo, flowID, 2, flow.ExecutionSuccess, old.Add(time.Duration(i)*time.Minute), 10*time.Second, "")
	}

	recent := now.Add(-24 * time.Hour)
	for i := 0; i < 10; i++ {
		d := 20 * time.Second
		if i%2 == 1 {
			d = 40 * time.Second
		}
		status, msg := flow.ExecutionSuccess, ""
		if i >= 8 {
			status, msg = flow.ExecutionFailed, fmt.Sprintf("charge declined #%d", i)
		}
		id := addExecution(t, repo, flowID, 3, status, recent.Add(time.Duration(i)*time.Minute), d, msg)
		if status == flow.ExecutionFailed {
			addNodeFailure(t, repo, id, "charge", msg)
			if i == 9 {
				addNodeFailure(t, repo, id, "notify", "smtp timeout")
			}
		}
	}
	return flowID
}

func setup(t *testing.T) (*Engine, *repository.FlowRepository) {
	repo := flowtest.NewRepository(t)
	return NewEngine(repo, repo, logger.NewNop()), repo
}

func TestEngine_GetVersionPerformanceStats(t *testing.T) {
	engine, repo := setup(t)
	flowID := seed(t, repo)

	stats, err := engine.GetVersionPerformanceStats(context.Background(), flowID)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, []int{4, 3, 2}, []int{stats[0].Version, stats[1].Version, stats[2].Version})

	idle := stats[0]
	assert.Equal(t, int64(0), idle.TotalExecutions)
	assert.Equal(t, 0.0, idle.SuccessRate)
	assert.Equal(t, HealthUnknown, idle.HealthStatus)
	assert.Nil(t, idle.FirstExecution)

	v3 := stats[1]
	assert.Equal(t, int64(10), v3.TotalExecutions)
	assert.Equal(t, int64(8), v3.SuccessCount)
	assert.Equal(t, int64(2), v3.FailedCount)
	assert.Equal(t, 80.0, v3.SuccessRate)
	assert.Equal(t, HealthFair, v3.HealthStatus)
	assert.InDelta(t, 20.0, v3.MinDuration, 0.01)
	assert.InDelta(t, 30.0, v3.AvgDuration, 0.01)
	assert.InDelta(t, 40.0, v3.MaxDuration, 0.01)
	require.NotNil(t, v3.FirstExecution)
	require.NotNil(t, v3.LastExecution)
	assert.True(t, v3.LastExecution.After(*v3.FirstExecution))

	v2 := stats[2]
	assert.Equal(t, 100.0, v2.SuccessRate)
	assert.Equal(t, HealthExcellent, v2.HealthStatus)
	assert.InDelta(t, 10.0, v2.AvgDuration, 0.01)
}

func TestEngine_GetVersionPerformanceStatsNotFound(t *testing.T) {
	engine, _ := setup(t)

	_, err := engine.GetVersionPerformanceStats(context.Background(), "missing")
	assert.True(t, errors.Is(err, flow.ErrNotFound))
}

func TestEngine_AnalyzeVersionTrend(t *testing.T) {
	engine, repo := setup(t)
	flowID := seed(t, repo)

	analysis, err := engine.AnalyzeVersionTrend(context.Background(), flowID)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, analysis.VersionsAnalyzed)
	assert.InDelta(t, -20.0, analysis.Indicators[IndicatorSuccessRate], 0.01)
	assert.InDelta(t, 200.0, analysis.Indicators[IndicatorAvgDuration], 0.01)
	assert.InDelta(t, 0.0, analysis.Indicators[IndicatorExecutionVolume], 0.01)
	// v2: 0.6 + 0.02 + 0.2, v3: 0.48 + 0.02 + 0.2
	assert.InDelta(t, 76.0, analysis.StabilityScore, 0.01)

	require.Len(t, analysis.Recommendations, 2)
	assert.Contains(t, analysis.Recommendations[0], "rolling back to version 2")
	assert.Contains(t, analysis.Recommendations[1], "performance")
}

func TestEngine_AnalyzeVersionTrendInsufficientHistory(t *testing.T) {
	engine, repo := setup(t)
	flowID := createFlow(t, repo, 2, 3)
	addExecution(t, repo, flowID, 2, flow.ExecutionSuccess, time.Now().UTC(), time.Second, "")

	analysis, err := engine.AnalyzeVersionTrend(context.Background(), flowID)
	require.NoError(t, err)

	assert.Equal(t, []string{insufficientHistory}, analysis.Recommendations)
	assert.Empty(t, analysis.Indicators)
	assert.Equal(t, 0.0, analysis.StabilityScore)
}

func TestAnalyzeTrend_Stable(t *testing.T) {
	stats := []VersionPerformanceStats{
		{Version: 3, TotalExecutions: 200, SuccessRate: 99, AvgDuration: 5},
		{Version: 2, TotalExecutions: 100, SuccessRate: 98, AvgDuration: 5},
	}

	analysis := analyzeTrend("f1", stats)

	assert.Equal(t, []int{2, 3}, analysis.VersionsAnalyzed)
	assert.InDelta(t, 100.0, analysis.Indicators[IndicatorExecutionVolume], 0.01)
	assert.Equal(t, []string{"Versions are stable; no action required"}, analysis.Recommendations)
}

func TestAnalyzeTrend_ZeroBaseline(t *testing.T) {
	stats := []VersionPerformanceStats{
		{Version: 1, TotalExecutions: 4, SuccessRate: 0},
		{Version: 2, TotalExecutions: 4, SuccessRate: 50},
	}

	analysis := analyzeTrend("f1", stats)

	assert.Equal(t, 0.0, analysis.Indicators[IndicatorSuccessRate])
	assert.Equal(t, 0.0, analysis.Indicators[IndicatorAvgDuration])
}

func TestEngine_GetVersionHealthReport(t *testing.T) {
	engine, repo := setup(t)
	flowID := seed(t, repo)
	ctx := context.Background()

	report, err := engine.GetVersionHealthReport(ctx, flowID, 7)
	require.NoError(t, err)

	assert.Equal(t, 7, report.WindowDays)
	assert.Equal(t, int64(10), report.TotalExecutions)
	assert.Equal(t, 80.0, report.OverallSuccessRate)
	assert.Equal(t, HealthFair, report.OverallStatus)
	assert.Equal(t, []int{3}, report.UnhealthyVersions)
	assert.Empty(t, report.HealthyVersions)
	require.Len(t, report.Versions, 1)

	report, err = engine.GetVersionHealthReport(ctx, flowID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(20), report.TotalExecutions)
	assert.Equal(t, 90.0, report.OverallSuccessRate)
	assert.Equal(t, HealthGood, report.OverallStatus)
	assert.Equal(t, []int{2}, report.HealthyVersions)

	_, err = engine.GetVersionHealthReport(ctx, flowID, 0)
	var ve *flow.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestEngine_GetVersionExecutionSummary(t *testing.T) {
	engine, repo := setup(t)
	flowID := seed(t, repo)
	ctx := context.Background()

	summary, err := engine.GetVersionExecutionSummary(ctx, flowID, 3, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(8), summary.StatusCounts[flow.ExecutionSuccess])
	assert.Equal(t, int64(2), summary.StatusCounts[flow.ExecutionFailed])
	assert.Equal(t, []string{"charge declined #9", "charge declined #8"}, summary.RecentErrors)
	require.Len(t, summary.NodeFailures, 2)
	assert.Equal(t, "charge", summary.NodeFailures[0].NodeID)
	assert.Equal(t, int64(2), summary.NodeFailures[0].Failures)
	assert.Equal(t, "notify", summary.NodeFailures[1].NodeID)
	assert.Equal(t, "smtp timeout", summary.NodeFailures[1].LastError)

	summary, err = engine.GetVersionExecutionSummary(ctx, flowID, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Stats.TotalExecutions)
	assert.Empty(t, summary.NodeFailures)

	_, err = engine.GetVersionExecutionSummary(ctx, flowID, 99, 7)
	assert.True(t, errors.Is(err, flow.ErrNotFound))
}

func TestHealthBuckets(t *testing.T) {
	tests := []struct {
		total int64
		rate  float64
		want  HealthStatus
	}{
		{0, 0, HealthUnknown},
		{10, 95, HealthExcellent},
		{10, 94.99, HealthGood},
		{10, 85, HealthGood},
		{10, 70, HealthFair},
		{10, 69.99, HealthPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, healthFor(tt.total, tt.rate), "rate %v", tt.rate)
	}
	assert.Equal(t, 66.67, rate(2, 3))
	assert.Equal(t, 0.0, rate(0, 0))
}

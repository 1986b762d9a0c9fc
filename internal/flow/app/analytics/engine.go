package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/logger"
)

// Recommendation thresholds, in percent.
const (
	successDeclineThreshold   = -5.0
	durationIncreaseThreshold = 20.0
	lowStabilityThreshold     = 60.0
	recentErrorLimit          = 5
)

const insufficientHistory = "Insufficient version history for trend analysis: at least 2 executed versions are required"

type Engine struct {
	flows    ports.FlowRepository
	execLogs ports.ExecutionLogRepository
	logger   logger.Logger
	now      func() time.Time
}

func NewEngine(flows ports.FlowRepository, execLogs ports.ExecutionLogRepository, log logger.Logger) *Engine {
	return &Engine{
		flows:    flows,
		execLogs: execLogs,
		logger:   log.Named("analytics"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetVersionPerformanceStats returns one entry per published or executed
// version, newest first.
func (e *Engine) GetVersionPerformanceStats(ctx context.Context, flowID string) ([]VersionPerformanceStats, error) {
	if _, err := e.flows.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}
	return e.collectStats(ctx, flowID, nil, true)
}

func (e *Engine) collectStats(ctx context.Context, flowID string, since *time.Time, includeIdle bool) ([]VersionPerformanceStats, error) {
	logs, err := e.execLogs.ListExecutionLogs(ctx, ports.ExecutionLogFilter{FlowID: flowID, Since: since})
	if err != nil {
		return nil, err
	}
	grouped := groupByVersion(logs)

	if includeIdle {
		histories, err := e.flows.ListHistory(ctx, flowID, false)
		if err != nil {
			return nil, err
		}
		for _, h := range histories {
			if _, ok := grouped[h.Version]; !ok {
				grouped[h.Version] = nil
			}
		}
	}

	stats := make([]VersionPerformanceStats, 0, len(grouped))
	for version, versionLogs := range grouped {
		stats = append(stats, computeStats(flowID, version, versionLogs))
	}
	sortByVersionDesc(stats)
	return stats, nil
}

// AnalyzeVersionTrend compares the first and last executed versions.
func (e *Engine) AnalyzeVersionTrend(ctx context.Context, flowID string) (*VersionTrendAnalysis, error) {
	stats, err := e.GetVersionPerformanceStats(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return analyzeTrend(flowID, stats), nil
}

func analyzeTrend(flowID string, stats []VersionPerformanceStats) *VersionTrendAnalysis {
	executed := make([]VersionPerformanceStats, 0, len(stats))
	for _, s := range stats {
		if s.TotalExecutions > 0 {
			executed = append(executed, s)
		}
	}
	sort.Slice(executed, func(i, j int) bool { return executed[i].Version < executed[j].Version })

	analysis := &VersionTrendAnalysis{
		FlowID:     flowID,
		Indicators: map[string]float64{},
	}
	for _, s := range executed {
		analysis.VersionsAnalyzed = append(analysis.VersionsAnalyzed, s.Version)
	}

	if len(executed) < 2 {
		analysis.Recommendations = []string{insufficientHistory}
		return analysis
	}

	first, last := executed[0], executed[len(executed)-1]
	successTrend := percentChange(first.SuccessRate, last.SuccessRate)
	durationTrend := percentChange(first.AvgDuration, last.AvgDuration)
	volumeTrend := percentChange(float64(first.TotalExecutions), float64(last.TotalExecutions))

	analysis.Indicators[IndicatorSuccessRate] = successTrend
	analysis.Indicators[IndicatorAvgDuration] = durationTrend
	analysis.Indicators[IndicatorExecutionVolume] = volumeTrend

	var total float64
	for _, s := range executed {
		total += stability(s)
	}
	analysis.StabilityScore = round2(total / float64(len(executed)) * 100)

	if successTrend < successDeclineThreshold {
		best := executed[0]
		for _, s := range executed[1:] {
			if s.SuccessRate > best.SuccessRate {
				best = s
			}
		}
		analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(
			"Success rate declined by %.2f%% from version %d to version %d; consider rolling back to version %d",
			-successTrend, first.Version, last.Version, best.Version))
	}
	if durationTrend > durationIncreaseThreshold {
		analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(
			"Average duration increased by %.2f%% from version %d to version %d; review recent changes for performance regressions",
			durationTrend, first.Version, last.Version))
	}
	if analysis.StabilityScore < lowStabilityThreshold {
		analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(
			"Stability score %.2f is low; investigate failing nodes before publishing further versions",
			analysis.StabilityScore))
	}
	if len(analysis.Recommendations) == 0 {
		analysis.Recommendations = []string{"Versions are stable; no action required"}
	}
	return analysis
}

// GetVersionHealthReport aggregates executions started in the last days.
func (e *Engine) GetVersionHealthReport(ctx context.Context, flowID string, days int) (*VersionHealthReport, error) {
	if days <= 0 {
		return nil, flow.NewValidationError("days", "must be positive")
	}
	if _, err := e.flows.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}

	now := e.now()
	since := now.AddDate(0, 0, -days)
	stats, err := e.collectStats(ctx, flowID, &since, false)
	if err != nil {
		return nil, err
	}

	report := &VersionHealthReport{
		FlowID:      flowID,
		WindowDays:  days,
		GeneratedAt: now,
		Versions:    stats,
	}

	var successes int64
	for _, s := range stats {
		report.TotalExecutions += s.TotalExecutions
		successes += s.SuccessCount
		switch s.HealthStatus {
		case HealthExcellent, HealthGood:
			report.HealthyVersions = append(report.HealthyVersions, s.Version)
		case HealthFair, HealthPoor:
			report.UnhealthyVersions = append(report.UnhealthyVersions, s.Version)
		}
	}
	report.OverallSuccessRate = rate(successes, report.TotalExecutions)
	report.OverallStatus = healthFor(report.TotalExecutions, report.OverallSuccessRate)

	e.logger.Debug("Health report generated",
		"flow_id", flowID,
		"days", days,
		"executions", report.TotalExecutions,
		"status", report.OverallStatus,
	)
	return report, nil
}

// GetVersionExecutionSummary details one version over the last days,
// including the nodes that fail most often.
func (e *Engine) GetVersionExecutionSummary(ctx context.Context, flowID string, version, days int) (*VersionExecutionSummary, error) {
	if days <= 0 {
		return nil, flow.NewValidationError("days", "must be positive")
	}
	if _, err := e.flows.GetHistoryByVersion(ctx, flowID, version); err != nil {
		return nil, err
	}

	since := e.now().AddDate(0, 0, -days)
	logs, err := e.execLogs.ListExecutionLogs(ctx, ports.ExecutionLogFilter{
		FlowID:  flowID,
		Version: flow.IntPtr(version),
		Since:   &since,
	})
	if err != nil {
		return nil, err
	}

	summary := &VersionExecutionSummary{
		FlowID:       flowID,
		Version:      version,
		WindowDays:   days,
		Stats:        computeStats(flowID, version, logs),
		StatusCounts: map[string]int64{},
	}

	ids := make([]string, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		summary.StatusCounts[l.Status]++
		ids = append(ids, l.ID)
		if l.ErrorMessage != "" && len(summary.RecentErrors) < recentErrorLimit {
			summary.RecentErrors = append(summary.RecentErrors, l.ErrorMessage)
		}
	}

	nodeLogs, err := e.execLogs.ListNodeExecutionLogs(ctx, ids)
	if err != nil {
		return nil, err
	}
	summary.NodeFailures = nodeFailures(nodeLogs)
	return summary, nil
}

func nodeFailures(logs []flow.NodeExecutionLog) []NodeFailureStat {
	byNode := map[string]*NodeFailureStat{}
	for _, l := range logs {
		if l.Status != flow.ExecutionFailed {
			continue
		}
		stat, ok := byNode[l.NodeID]
		if !ok {
			stat = &NodeFailureStat{NodeID: l.NodeID, NodeName: l.NodeName, NodeType: l.NodeType}
			byNode[l.NodeID] = stat
		}
		stat.Failures++
		if l.ErrorMessage != "" {
			stat.LastError = l.ErrorMessage
		}
	}

	out := make([]NodeFailureStat, 0, len(byNode))
	for _, stat := range byNode {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

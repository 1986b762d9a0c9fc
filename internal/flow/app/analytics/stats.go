package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
)

type HealthStatus string

const (
	HealthExcellent HealthStatus = "EXCELLENT"
	HealthGood      HealthStatus = "GOOD"
	HealthFair      HealthStatus = "FAIR"
	HealthPoor      HealthStatus = "POOR"
	HealthUnknown   HealthStatus = "UNKNOWN"
)

// Trend indicator keys
const (
	IndicatorSuccessRate     = "successRate"
	IndicatorAvgDuration     = "avgDuration"
	IndicatorExecutionVolume = "executionVolume"
)

// VersionPerformanceStats aggregates the executions bound to one version.
// Durations are in seconds and only count records with both timestamps.
type VersionPerformanceStats struct {
	FlowID          string       `json:"flowId"`
	Version         int          `json:"version"`
	TotalExecutions int64        `json:"totalExecutions"`
	SuccessCount    int64        `json:"successCount"`
	FailedCount     int64        `json:"failedCount"`
	SuccessRate     float64      `json:"successRate"`
	MinDuration     float64      `json:"minDuration"`
	AvgDuration     float64      `json:"avgDuration"`
	MaxDuration     float64      `json:"maxDuration"`
	FirstExecution  *time.Time   `json:"firstExecution,omitempty"`
	LastExecution   *time.Time   `json:"lastExecution,omitempty"`
	HealthStatus    HealthStatus `json:"healthStatus"`
}

type VersionTrendAnalysis struct {
	FlowID           string             `json:"flowId"`
	VersionsAnalyzed []int              `json:"versionsAnalyzed"`
	Indicators       map[string]float64 `json:"indicators"`
	StabilityScore   float64            `json:"stabilityScore"`
	Recommendations  []string           `json:"recommendations"`
}

type VersionHealthReport struct {
	FlowID             string                    `json:"flowId"`
	WindowDays         int                       `json:"windowDays"`
	GeneratedAt        time.Time                 `json:"generatedAt"`
	TotalExecutions    int64                     `json:"totalExecutions"`
	OverallSuccessRate float64                   `json:"overallSuccessRate"`
	OverallStatus      HealthStatus              `json:"overallStatus"`
	HealthyVersions    []int                     `json:"healthyVersions"`
	UnhealthyVersions  []int                     `json:"unhealthyVersions"`
	Versions           []VersionPerformanceStats `json:"versions"`
}

type NodeFailureStat struct {
	NodeID    string `json:"nodeId"`
	NodeName  string `json:"nodeName"`
	NodeType  string `json:"nodeType"`
	Failures  int64  `json:"failures"`
	LastError string `json:"lastError"`
}

type VersionExecutionSummary struct {
	FlowID       string                  `json:"flowId"`
	Version      int                     `json:"version"`
	WindowDays   int                     `json:"windowDays"`
	Stats        VersionPerformanceStats `json:"stats"`
	StatusCounts map[string]int64        `json:"statusCounts"`
	RecentErrors []string                `json:"recentErrors"`
	NodeFailures []NodeFailureStat       `json:"nodeFailures"`
}

func healthFor(total int64, successRate float64) HealthStatus {
	switch {
	case total == 0:
		return HealthUnknown
	case successRate >= 95:
		return HealthExcellent
	case successRate >= 85:
		return HealthGood
	case successRate >= 70:
		return HealthFair
	default:
		return HealthPoor
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// computeStats folds the logs of one version. logs may be empty.
func computeStats(flowID string, version int, logs []flow.ExecutionLog) VersionPerformanceStats {
	stats := VersionPerformanceStats{FlowID: flowID, Version: version}

	var timed int
	var sum float64
	for i := range logs {
		l := &logs[i]
		stats.TotalExecutions++
		switch l.Status {
		case flow.ExecutionSuccess:
			stats.SuccessCount++
		case flow.ExecutionFailed:
			stats.FailedCount++
		}

		if l.StartTime != nil {
			if stats.FirstExecution == nil || l.StartTime.Before(*stats.FirstExecution) {
				t := *l.StartTime
				stats.FirstExecution = &t
			}
			if stats.LastExecution == nil || l.StartTime.After(*stats.LastExecution) {
				t := *l.StartTime
				stats.LastExecution = &t
			}
		}

		d, ok := l.DurationSeconds()
		if !ok {
			continue
		}
		if timed == 0 || d < stats.MinDuration {
			stats.MinDuration = d
		}
		if d > stats.MaxDuration {
			stats.MaxDuration = d
		}
		sum += d
		timed++
	}

	if timed > 0 {
		stats.AvgDuration = round2(sum / float64(timed))
		stats.MinDuration = round2(stats.MinDuration)
		stats.MaxDuration = round2(stats.MaxDuration)
	}
	stats.SuccessRate = rate(stats.SuccessCount, stats.TotalExecutions)
	stats.HealthStatus = healthFor(stats.TotalExecutions, stats.SuccessRate)
	return stats
}

// groupByVersion buckets logs by their bound version; unbound logs are dropped.
func groupByVersion(logs []flow.ExecutionLog) map[int][]flow.ExecutionLog {
	grouped := make(map[int][]flow.ExecutionLog)
	for _, l := range logs {
		if l.FlowVersion == nil {
			continue
		}
		grouped[*l.FlowVersion] = append(grouped[*l.FlowVersion], l)
	}
	return grouped
}

func sortByVersionDesc(stats []VersionPerformanceStats) {
	sort.Slice(stats, func(i, j int) bool { return stats[i].Version > stats[j].Version })
}

// percentChange is (last-first)/first*100, or 0 when first is 0.
func percentChange(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return round2((last - first) / first * 100)
}

// stability scores one version in [0,1]. An unknown average duration
// counts as fully fast.
func stability(s VersionPerformanceStats) float64 {
	volume := math.Min(float64(s.TotalExecutions)/100, 1)
	speed := 1.0
	if s.AvgDuration > 0 {
		speed = math.Min(60/s.AvgDuration, 1)
	}
	return 0.6*(s.SuccessRate/100) + 0.2*volume + 0.2*speed
}

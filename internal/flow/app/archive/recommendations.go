package archive

import (
	"context"
	"fmt"

	"github.com/flowvault-go/internal/domain/flow"
)

// Recommendation thresholds
const (
	recommendedKeepVersions = 10
	oldVersionDays          = 90
)

// GetArchiveRecommendations suggests archive configs for flowID without
// changing anything.
func (m *Manager) GetArchiveRecommendations(ctx context.Context, flowID string) (*ArchiveRecommendations, error) {
	def, err := m.flows.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	histories, err := m.flows.ListHistory(ctx, flowID, true)
	if err != nil {
		return nil, err
	}
	counts, err := m.execLogs.CountExecutionsByVersion(ctx, flowID)
	if err != nil {
		return nil, err
	}

	recs := &ArchiveRecommendations{
		FlowID:          flowID,
		TotalVersions:   len(histories),
		OldVersions:     []int{},
		UnusedVersions:  []int{},
		Recommendations: []ArchiveRecommendation{},
	}

	latest := def.Version
	for _, h := range histories {
		if h.Version > latest {
			latest = h.Version
		}
	}

	cutoff := m.now().AddDate(0, 0, -oldVersionDays)
	for _, h := range histories {
		if h.CreatedAt.Before(cutoff) {
			recs.OldVersions = append(recs.OldVersions, h.Version)
		}
		if counts[h.Version] == 0 && h.Version != latest {
			recs.UnusedVersions = append(recs.UnusedVersions, h.Version)
		}
	}

	if excess := len(histories) - recommendedKeepVersions; excess > 0 {
		versions := make([]int, 0, excess)
		for _, h := range histories[:excess] {
			versions = append(versions, h.Version)
		}
		recs.Recommendations = append(recs.Recommendations, ArchiveRecommendation{
			Strategy: flow.StrategyByCount,
			Reason:   fmt.Sprintf("%d active versions; keep the newest %d", len(histories), recommendedKeepVersions),
			Versions: versions,
			Config:   ArchiveConfig{Strategy: flow.StrategyByCount, KeepVersions: recommendedKeepVersions, BackupBeforeArchive: true},
		})
	}
	if len(recs.OldVersions) > 0 {
		recs.Recommendations = append(recs.Recommendations, ArchiveRecommendation{
			Strategy: flow.StrategyByTime,
			Reason:   fmt.Sprintf("%d versions are older than %d days", len(recs.OldVersions), oldVersionDays),
			Versions: recs.OldVersions,
			Config:   ArchiveConfig{Strategy: flow.StrategyByTime, OlderThanDays: oldVersionDays, BackupBeforeArchive: true},
		})
	}
	if len(recs.UnusedVersions) > 0 {
		recs.Recommendations = append(recs.Recommendations, ArchiveRecommendation{
			Strategy: flow.StrategyByUsage,
			Reason:   fmt.Sprintf("%d versions were never executed", len(recs.UnusedVersions)),
			Versions: recs.UnusedVersions,
			Config:   ArchiveConfig{Strategy: flow.StrategyByUsage, MinExecutions: 1, BackupBeforeArchive: true},
		})
	}

	return recs, nil
}

package comparison

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/logger"
)

type Engine struct {
	repo   ports.FlowRepository
	logger logger.Logger
}

func NewEngine(repo ports.FlowRepository, log logger.Logger) *Engine {
	return &Engine{
		repo:   repo,
		logger: log.Named("comparison"),
	}
}

// CompareVersions diffs the snapshots of two versions of a flow.
func (e *Engine) CompareVersions(ctx context.Context, flowID string, fromVersion, toVersion int) (*VersionDifference, error) {
	from, err := e.repo.GetHistoryByVersion(ctx, flowID, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := e.repo.GetHistoryByVersion(ctx, flowID, toVersion)
	if err != nil {
		return nil, err
	}

	diff := Compare(from, to)
	e.logger.Debug("Versions compared",
		"flow_id", flowID,
		"from", fromVersion,
		"to", toVersion,
		"node_changes", len(diff.NodeChanges),
		"edge_changes", len(diff.EdgeChanges),
	)
	return diff, nil
}

func (e *Engine) GenerateComparisonReport(diff *VersionDifference) string {
	return GenerateComparisonReport(diff)
}

// Compare diffs two history rows without touching storage.
func Compare(from, to *flow.VersionHistory) *VersionDifference {
	diff := &VersionDifference{
		FlowID:      to.FlowID,
		FromVersion: from.Version,
		ToVersion:   to.Version,
	}

	if from.Name != to.Name {
		diff.MetadataChanges = append(diff.MetadataChanges, MetadataChange{Field: "name", Before: from.Name, After: to.Name})
	}
	if from.Description != to.Description {
		diff.MetadataChanges = append(diff.MetadataChanges, MetadataChange{Field: "description", Before: from.Description, After: to.Description})
	}

	diff.NodeChanges = diffNodes(from.Snapshot.NodeIndex(), to.Snapshot.NodeIndex())
	diff.EdgeChanges = diffEdges(from.Snapshot.EdgeIndex(), to.Snapshot.EdgeIndex())
	return diff
}

func diffNodes(before, after map[string]flow.FlowNode) []NodeChange {
	ids := make([]string, 0, len(before)+len(after))
	for id := range before {
		ids = append(ids, id)
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var changes []NodeChange
	for _, id := range ids {
		b, inBefore := before[id]
		a, inAfter := after[id]
		switch {
		case !inBefore:
			changes = append(changes, NodeChange{NodeID: id, ChangeType: ChangeAdded, After: &a})
		case !inAfter:
			changes = append(changes, NodeChange{NodeID: id, ChangeType: ChangeRemoved, Before: &b})
		default:
			props := nodeProperties(b, a)
			if len(props) > 0 {
				changes = append(changes, NodeChange{NodeID: id, ChangeType: ChangeModified, Before: &b, After: &a, PropertyChanges: props})
			}
		}
	}
	return changes
}

func nodeProperties(b, a flow.FlowNode) map[string]PropertyChange {
	props := map[string]PropertyChange{}
	if b.Name != a.Name {
		props["name"] = PropertyChange{Before: b.Name, After: a.Name}
	}
	if b.Type != a.Type {
		props["type"] = PropertyChange{Before: b.Type, After: a.Type}
	}
	if b.Config != a.Config {
		props["config"] = PropertyChange{Before: b.Config, After: a.Config}
	}
	if b.PositionX != a.PositionX || b.PositionY != a.PositionY {
		props["position"] = PropertyChange{
			Before: Position{X: b.PositionX, Y: b.PositionY},
			After:  Position{X: a.PositionX, Y: a.PositionY},
		}
	}
	return props
}

func diffEdges(before, after map[int64]flow.FlowEdge) []EdgeChange {
	ids := make([]int64, 0, len(before)+len(after))
	for id := range before {
		ids = append(ids, id)
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var changes []EdgeChange
	for _, id := range ids {
		b, inBefore := before[id]
		a, inAfter := after[id]
		switch {
		case !inBefore:
			changes = append(changes, EdgeChange{EdgeID: id, ChangeType: ChangeAdded, After: &a})
		case !inAfter:
			changes = append(changes, EdgeChange{EdgeID: id, ChangeType: ChangeRemoved, Before: &b})
		default:
			props := map[string]PropertyChange{}
			if b.SourceNodeID != a.SourceNodeID {
				props["source"] = PropertyChange{Before: b.SourceNodeID, After: a.SourceNodeID}
			}
			if b.TargetNodeID != a.TargetNodeID {
				props["target"] = PropertyChange{Before: b.TargetNodeID, After: a.TargetNodeID}
			}
			if len(props) > 0 {
				changes = append(changes, EdgeChange{EdgeID: id, ChangeType: ChangeModified, Before: &b, After: &a, PropertyChanges: props})
			}
		}
	}
	return changes
}

// GenerateComparisonReport renders diff as plain text: totals per change
// type first, then every change in id order. Equal input yields equal output.
func GenerateComparisonReport(diff *VersionDifference) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Version comparison for flow %s: v%d -> v%d\n", diff.FlowID, diff.FromVersion, diff.ToVersion)
	if !diff.HasChanges() {
		sb.WriteString("No differences.\n")
		return sb.String()
	}

	counts := diff.Counts()
	fmt.Fprintf(&sb, "%s: %d\n", ChangeAdded, counts[ChangeAdded])
	fmt.Fprintf(&sb, "%s: %d\n", ChangeRemoved, counts[ChangeRemoved])
	fmt.Fprintf(&sb, "%s: %d\n", ChangeModified, counts[ChangeModified])
	fmt.Fprintf(&sb, "METADATA: %d\n", len(diff.MetadataChanges))

	if len(diff.MetadataChanges) > 0 {
		sb.WriteString("\nMetadata changes:\n")
		for _, c := range diff.MetadataChanges {
			fmt.Fprintf(&sb, "  %s: %q -> %q\n", c.Field, c.Before, c.After)
		}
	}

	if len(diff.NodeChanges) > 0 {
		sb.WriteString("\nNode changes:\n")
		for _, c := range diff.NodeChanges {
			switch c.ChangeType {
			case ChangeAdded:
				fmt.Fprintf(&sb, "  %-8s %s (type=%s)\n", c.ChangeType, c.NodeID, c.After.Type)
			case ChangeRemoved:
				fmt.Fprintf(&sb, "  %-8s %s (type=%s)\n", c.ChangeType, c.NodeID, c.Before.Type)
			default:
				fmt.Fprintf(&sb, "  %-8s %s: %s\n", c.ChangeType, c.NodeID, renderProperties(c.PropertyChanges))
			}
		}
	}

	if len(diff.EdgeChanges) > 0 {
		sb.WriteString("\nEdge changes:\n")
		for _, c := range diff.EdgeChanges {
			switch c.ChangeType {
			case ChangeAdded:
				fmt.Fprintf(&sb, "  %-8s #%d %s -> %s\n", c.ChangeType, c.EdgeID, c.After.SourceNodeID, c.After.TargetNodeID)
			case ChangeRemoved:
				fmt.Fprintf(&sb, "  %-8s #%d %s -> %s\n", c.ChangeType, c.EdgeID, c.Before.SourceNodeID, c.Before.TargetNodeID)
			default:
				fmt.Fprintf(&sb, "  %-8s #%d: %s\n", c.ChangeType, c.EdgeID, renderProperties(c.PropertyChanges))
			}
		}
	}

	return sb.String()
}

func renderProperties(props map[string]PropertyChange) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		p := props[k]
		parts = append(parts, fmt.Sprintf("%s %s -> %s", k, renderValue(p.Before), renderValue(p.After)))
	}
	return strings.Join(parts, "; ")
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case Position:
		return fmt.Sprintf("(%g,%g)", t.X, t.Y)
	default:
		return fmt.Sprint(t)
	}
}

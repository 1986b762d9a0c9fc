package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
)

func (r *FlowRepository) CreateFlow(ctx context.Context, def *flow.FlowDefinition) error {
	return storageErr("create flow", r.db.WithContext(ctx).Create(def).Error)
}

func (r *FlowRepository) GetFlow(ctx context.Context, flowID string) (*flow.FlowDefinition, error) {
	var def flow.FlowDefinition
	err := r.db.WithContext(ctx).
		Where("id = ?", flowID).
		First(&def).Error
	if err != nil {
		return nil, notFoundOr("get flow", "flow", flowID, err)
	}

	return &def, nil
}

func (r *FlowRepository) UpdateFlow(ctx context.Context, def *flow.FlowDefinition) error {
	result := r.db.WithContext(ctx).
		Model(&flow.FlowDefinition{}).
		Where("id = ?", def.ID).
		Updates(map[string]interface{}{
			"name":        def.Name,
			"description": def.Description,
			"expression":  def.Expression,
			"status":      def.Status,
			"version":     def.Version,
			"updated_by":  def.UpdatedBy,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return storageErr("update flow", result.Error)
	}
	if result.RowsAffected == 0 {
		return flow.NewNotFoundError("flow", def.ID)
	}

	return nil
}

func (r *FlowRepository) ListFlowIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&flow.FlowDefinition{}).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storageErr("list flows", err)
	}

	return ids, nil
}

func (r *FlowRepository) ListFlowsByStatus(ctx context.Context, status string) ([]flow.FlowDefinition, error) {
	var defs []flow.FlowDefinition
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id").
		Find(&defs).Error
	if err != nil {
		return nil, storageErr("list flows by status", err)
	}

	return defs, nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, flowID string) error {
	db := r.db.WithContext(ctx)

	executionIDs := r.db.WithContext(ctx).
		Model(&flow.ExecutionLog{}).
		Select("id").
		Where("flow_id = ?", flowID)
	if err := db.Where("flow_execution_log_id IN (?)", executionIDs).Delete(&flow.NodeExecutionLog{}).Error; err != nil {
		return storageErr("delete node execution logs", err)
	}

	steps := []struct {
		name   string
		column string
		model  interface{}
	}{
		{"execution logs", "flow_id", &flow.ExecutionLog{}},
		{"version history", "flow_id", &flow.VersionHistory{}},
		{"edges", "flow_id", &flow.FlowEdge{}},
		{"nodes", "flow_id", &flow.FlowNode{}},
		{"flow", "id", &flow.FlowDefinition{}},
	}
	for _, step := range steps {
		err := r.db.WithContext(ctx).
			Where(step.column+" = ?", flowID).
			Delete(step.model).Error
		if err != nil {
			return storageErr("delete "+step.name, err)
		}
	}

	return nil
}

func (r *FlowRepository) GetNodes(ctx context.Context, flowID string) ([]flow.FlowNode, error) {
	var nodes []flow.FlowNode
	err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("id").
		Find(&nodes).Error
	if err != nil {
		return nil, storageErr("get nodes", err)
	}

	return nodes, nil
}

func (r *FlowRepository) GetEdges(ctx context.Context, flowID string) ([]flow.FlowEdge, error) {
	var edges []flow.FlowEdge
	err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("id").
		Find(&edges).Error
	if err != nil {
		return nil, storageErr("get edges", err)
	}

	return edges, nil
}

func (r *FlowRepository) ReplaceGraph(ctx context.Context, flowID string, nodes []flow.FlowNode, edges []flow.FlowEdge) error {
	if err := flow.NewGraph(nodes, edges).ValidateEdges(); err != nil {
		return err
	}

	var storedNodeIDs []string
	if err := r.db.WithContext(ctx).Model(&flow.FlowNode{}).
		Where("flow_id = ?", flowID).
		Pluck("id", &storedNodeIDs).Error; err != nil {
		return storageErr("load node ids", err)
	}
	var storedEdgeIDs []int64
	if err := r.db.WithContext(ctx).Model(&flow.FlowEdge{}).
		Where("flow_id = ?", flowID).
		Pluck("id", &storedEdgeIDs).Error; err != nil {
		return storageErr("load edge ids", err)
	}

	keepNodes := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keepNodes[n.ID] = true
	}
	keepEdges := make(map[int64]bool, len(edges))
	for _, e := range edges {
		keepEdges[e.ID] = true
	}

	var dropEdges []int64
	existingEdges := make(map[int64]bool, len(storedEdgeIDs))
	for _, id := range storedEdgeIDs {
		existingEdges[id] = true
		if !keepEdges[id] {
			dropEdges = append(dropEdges, id)
		}
	}
	var dropNodes []string
	existingNodes := make(map[string]bool, len(storedNodeIDs))
	for _, id := range storedNodeIDs {
		existingNodes[id] = true
		if !keepNodes[id] {
			dropNodes = append(dropNodes, id)
		}
	}

	if len(dropEdges) > 0 {
		if err := r.db.WithContext(ctx).
			Where("flow_id = ? AND id IN ?", flowID, dropEdges).
			Delete(&flow.FlowEdge{}).Error; err != nil {
			return storageErr("delete edges", err)
		}
	}
	if len(dropNodes) > 0 {
		if err := r.db.WithContext(ctx).
			Where("flow_id = ? AND id IN ?", flowID, dropNodes).
			Delete(&flow.FlowNode{}).Error; err != nil {
			return storageErr("delete nodes", err)
		}
	}

	now := time.Now().UTC()
	for i := range nodes {
		n := nodes[i]
		n.FlowID = flowID
		if existingNodes[n.ID] {
			err := r.db.WithContext(ctx).Model(&flow.FlowNode{}).
				Where("flow_id = ? AND id = ?", flowID, n.ID).
				Updates(map[string]interface{}{
					"name":       n.Name,
					"type":       n.Type,
					"config":     n.Config,
					"position_x": n.PositionX,
					"position_y": n.PositionY,
					"updated_at": now,
				}).Error
			if err != nil {
				return storageErr(fmt.Sprintf("update node %s", n.ID), err)
			}
			continue
		}
		if err := r.db.WithContext(ctx).Create(&n).Error; err != nil {
			return storageErr(fmt.Sprintf("insert node %s", n.ID), err)
		}
	}

	for i := range edges {
		e := edges[i]
		e.FlowID = flowID
		if existingEdges[e.ID] {
			err := r.db.WithContext(ctx).Model(&flow.FlowEdge{}).
				Where("flow_id = ? AND id = ?", flowID, e.ID).
				Updates(map[string]interface{}{
					"source_node_id": e.SourceNodeID,
					"target_node_id": e.TargetNodeID,
					"condition":      e.Condition,
					"updated_at":     now,
				}).Error
			if err != nil {
				return storageErr(fmt.Sprintf("update edge %d", e.ID), err)
			}
			continue
		}
		if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
			return storageErr(fmt.Sprintf("insert edge %d", e.ID), err)
		}
	}

	return nil
}

func (r *FlowRepository) CountHistory(ctx context.Context, flowID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&flow.VersionHistory{}).
		Where("flow_id = ?", flowID).
		Count(&count).Error
	if err != nil {
		return 0, storageErr("count history", err)
	}

	return count, nil
}

func (r *FlowRepository) CreateHistory(ctx context.Context, h *flow.VersionHistory) error {
	return storageErr("create history", r.db.WithContext(ctx).Create(h).Error)
}

func (r *FlowRepository) GetHistory(ctx context.Context, historyID string) (*flow.VersionHistory, error) {
	var h flow.VersionHistory
	err := r.db.WithContext(ctx).
		Where("id = ?", historyID).
		First(&h).Error
	if err != nil {
		return nil, notFoundOr("get history", "version history", historyID, err)
	}

	return &h, nil
}

func (r *FlowRepository) GetHistoryByVersion(ctx context.Context, flowID string, version int) (*flow.VersionHistory, error) {
	var h flow.VersionHistory
	err := r.db.WithContext(ctx).
		Where("flow_id = ? AND version = ?", flowID, version).
		First(&h).Error
	if err != nil {
		return nil, notFoundOr("get history", "version history", fmt.Sprintf("%s@v%d", flowID, version), err)
	}

	return &h, nil
}

// ListHistory returns history rows ordered by version ascending.
func (r *FlowRepository) ListHistory(ctx context.Context, flowID string, activeOnly bool) ([]flow.VersionHistory, error) {
	query := r.db.WithContext(ctx).Where("flow_id = ?", flowID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var histories []flow.VersionHistory
	if err := query.Order("version ASC").Find(&histories).Error; err != nil {
		return nil, storageErr("list history", err)
	}

	return histories, nil
}

package repository

import (
	"context"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/google/uuid"
)

func (r *FlowRepository) CreateExecutionLog(ctx context.Context, log *flow.ExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return storageErr("create execution log", r.db.WithContext(ctx).Create(log).Error)
}

func (r *FlowRepository) GetExecutionLog(ctx context.Context, id string) (*flow.ExecutionLog, error) {
	var log flow.ExecutionLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, notFoundOr("get execution log", "execution log", id, err)
	}
	return &log, nil
}

func (r *FlowRepository) FinishExecutionLog(ctx context.Context, log *flow.ExecutionLog) error {
	result := r.db.WithContext(ctx).
		Model(&flow.ExecutionLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"status":        log.Status,
			"start_time":    log.StartTime,
			"end_time":      log.EndTime,
			"duration":      log.Duration,
			"error_message": log.ErrorMessage,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return storageErr("finish execution log", result.Error)
	}
	if result.RowsAffected == 0 {
		return flow.NewNotFoundError("execution log", log.ID)
	}
	return nil
}

func (r *FlowRepository) CreateNodeExecutionLog(ctx context.Context, log *flow.NodeExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return storageErr("create node execution log", r.db.WithContext(ctx).Create(log).Error)
}

func (r *FlowRepository) ListExecutionLogs(ctx context.Context, filter ports.ExecutionLogFilter) ([]flow.ExecutionLog, error) {
	query := r.db.WithContext(ctx).Where("flow_id = ?", filter.FlowID)
	if filter.Version != nil {
		query = query.Where("flow_version = ?", *filter.Version)
	}
	if filter.Since != nil {
		query = query.Where("start_time >= ?", *filter.Since)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var logs []flow.ExecutionLog
	if err := query.Order("start_time ASC").Find(&logs).Error; err != nil {
		return nil, storageErr("list execution logs", err)
	}
	return logs, nil
}

func (r *FlowRepository) ListNodeExecutionLogs(ctx context.Context, executionLogIDs []string) ([]flow.NodeExecutionLog, error) {
	if len(executionLogIDs) == 0 {
		return nil, nil
	}

	var logs []flow.NodeExecutionLog
	err := r.db.WithContext(ctx).
		Where("flow_execution_log_id IN ?", executionLogIDs).
		Order("start_time ASC").
		Find(&logs).Error
	if err != nil {
		return nil, storageErr("list node execution logs", err)
	}
	return logs, nil
}

func (r *FlowRepository) CountExecutionsByVersion(ctx context.Context, flowID string) (map[int]int64, error) {
	var rows []struct {
		FlowVersion int
		Total       int64
	}
	err := r.db.WithContext(ctx).
		Model(&flow.ExecutionLog{}).
		Select("flow_version, COUNT(*) AS total").
		Where("flow_id = ? AND flow_version IS NOT NULL", flowID).
		Group("flow_version").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("count executions", err)
	}

	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		counts[row.FlowVersion] = row.Total
	}
	return counts, nil
}

func (r *FlowRepository) VersionsExecutedSince(ctx context.Context, flowID string, since time.Time) ([]int, error) {
	var versions []int
	err := r.db.WithContext(ctx).
		Model(&flow.ExecutionLog{}).
		Where("flow_id = ? AND flow_version IS NOT NULL AND start_time >= ?", flowID, since).
		Distinct().
		Pluck("flow_version", &versions).Error
	if err != nil {
		return nil, storageErr("recent versions", err)
	}
	return versions, nil
}

func (r *FlowRepository) VersionsWithStatus(ctx context.Context, flowID, status string) ([]int, error) {
	var versions []int
	err := r.db.WithContext(ctx).
		Model(&flow.ExecutionLog{}).
		Where("flow_id = ? AND flow_version IS NOT NULL AND status = ?", flowID, status).
		Distinct().
		Pluck("flow_version", &versions).Error
	if err != nil {
		return nil, storageErr("versions by status", err)
	}
	return versions, nil
}

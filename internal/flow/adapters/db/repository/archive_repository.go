package repository

import (
	"context"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/google/uuid"
)

func (r *FlowRepository) BackupVersions(ctx context.Context, operationID, flowID string, versions []int) error {
	if len(versions) == 0 {
		return nil
	}

	return r.transaction(ctx, func(tx *FlowRepository) error {
		now := time.Now().UTC()

		var histories []flow.VersionHistory
		if err := tx.db.WithContext(ctx).
			Where("flow_id = ? AND version IN ?", flowID, versions).
			Find(&histories).Error; err != nil {
			return storageErr("load histories for backup", err)
		}
		for _, h := range histories {
			backup := flow.BackupVersionHistory{
				BackupID:          uuid.New().String(),
				OperationID:       operationID,
				OriginalHistoryID: h.ID,
				FlowID:            h.FlowID,
				Version:           h.Version,
				Name:              h.Name,
				Description:       h.Description,
				Expression:        h.Expression,
				Snapshot:          h.Snapshot,
				Active:            h.Active,
				CreatedBy:         h.CreatedBy,
				OriginalCreatedAt: h.CreatedAt,
				BackedUpAt:        now,
			}
			if err := tx.db.WithContext(ctx).Create(&backup).Error; err != nil {
				return storageErr("backup history", err)
			}
		}

		var logs []flow.ExecutionLog
		if err := tx.db.WithContext(ctx).
			Where("flow_id = ? AND flow_version IN ?", flowID, versions).
			Find(&logs).Error; err != nil {
			return storageErr("load execution logs for backup", err)
		}
		for _, l := range logs {
			backup := flow.BackupExecutionLog{
				BackupID:            uuid.New().String(),
				OperationID:         operationID,
				OriginalID:          l.ID,
				FlowID:              l.FlowID,
				FlowVersion:         l.FlowVersion,
				ExecutionInstanceID: l.ExecutionInstanceID,
				Status:              l.Status,
				StartTime:           l.StartTime,
				EndTime:             l.EndTime,
				Duration:            l.Duration,
				ErrorMessage:        l.ErrorMessage,
				BackedUpAt:          now,
			}
			if err := tx.db.WithContext(ctx).Create(&backup).Error; err != nil {
				return storageErr("backup execution log", err)
			}
		}
		return nil
	})
}

// ArchiveVersion copies the history row into the archive table and marks the
// original inactive, then moves the version's execution and node logs.
func (r *FlowRepository) ArchiveVersion(ctx context.Context, req ports.ArchiveVersionRequest) (*flow.ArchiveBundle, error) {
	bundle := &flow.ArchiveBundle{}

	err := r.transaction(ctx, func(tx *FlowRepository) error {
		now := time.Now().UTC()

		h, err := tx.GetHistoryByVersion(ctx, req.FlowID, req.Version)
		if err != nil {
			return err
		}
		if !h.Active {
			return &flow.IllegalStateError{
				FlowID:    req.FlowID,
				Status:    "ARCHIVED",
				Operation: "archive version",
			}
		}

		bundle.History = flow.ArchivedVersionHistory{
			ID:                uuid.New().String(),
			OriginalHistoryID: h.ID,
			FlowID:            h.FlowID,
			Version:           h.Version,
			Name:              h.Name,
			Description:       h.Description,
			Expression:        h.Expression,
			Snapshot:          h.Snapshot,
			CreatedBy:         h.CreatedBy,
			UpdatedBy:         h.UpdatedBy,
			OriginalCreatedAt: h.CreatedAt,
			Strategy:          req.Strategy,
			Reason:            req.Reason,
			OperationID:       req.OperationID,
			ArchivedBy:        req.Operator,
			ArchivedAt:        now,
		}
		if err := tx.db.WithContext(ctx).Create(&bundle.History).Error; err != nil {
			return storageErr("insert archived history", err)
		}
		if err := tx.db.WithContext(ctx).
			Model(&flow.VersionHistory{}).
			Where("id = ?", h.ID).
			Update("active", false).Error; err != nil {
			return storageErr("deactivate history", err)
		}

		var logs []flow.ExecutionLog
		if err := tx.db.WithContext(ctx).
			Where("flow_id = ? AND flow_version = ?", req.FlowID, req.Version).
			Find(&logs).Error; err != nil {
			return storageErr("load execution logs", err)
		}
		if len(logs) == 0 {
			return nil
		}

		logIDs := make([]string, 0, len(logs))
		for _, l := range logs {
			logIDs = append(logIDs, l.ID)
			bundle.ExecutionLogs = append(bundle.ExecutionLogs,
				flow.NewArchivedExecutionLog(l, req.Strategy, req.OperationID, now))
		}

		var nodeLogs []flow.NodeExecutionLog
		if err := tx.db.WithContext(ctx).
			Where("flow_execution_log_id IN ?", logIDs).
			Find(&nodeLogs).Error; err != nil {
			return storageErr("load node execution logs", err)
		}
		for _, nl := range nodeLogs {
			bundle.NodeExecutionLogs = append(bundle.NodeExecutionLogs,
				flow.NewArchivedNodeExecutionLog(nl, req.OperationID, now))
		}

		if err := tx.db.WithContext(ctx).CreateInBatches(bundle.ExecutionLogs, 100).Error; err != nil {
			return storageErr("insert archived execution logs", err)
		}
		if len(bundle.NodeExecutionLogs) > 0 {
			if err := tx.db.WithContext(ctx).CreateInBatches(bundle.NodeExecutionLogs, 100).Error; err != nil {
				return storageErr("insert archived node execution logs", err)
			}
			if err := tx.db.WithContext(ctx).
				Where("flow_execution_log_id IN ?", logIDs).
				Delete(&flow.NodeExecutionLog{}).Error; err != nil {
				return storageErr("delete node execution logs", err)
			}
		}
		if err := tx.db.WithContext(ctx).
			Where("id IN ?", logIDs).
			Delete(&flow.ExecutionLog{}).Error; err != nil {
			return storageErr("delete execution logs", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

// RestoreVersion reactivates an archived history row and drops its archive
// copy. Archived execution logs stay in the archive tables.
func (r *FlowRepository) RestoreVersion(ctx context.Context, flowID string, version int) error {
	return r.transaction(ctx, func(tx *FlowRepository) error {
		h, err := tx.GetHistoryByVersion(ctx, flowID, version)
		if err != nil {
			return err
		}
		if h.Active {
			return &flow.IllegalStateError{FlowID: flowID, Status: "ACTIVE", Operation: "restore version"}
		}

		if err := tx.db.WithContext(ctx).
			Model(&flow.VersionHistory{}).
			Where("id = ?", h.ID).
			Update("active", true).Error; err != nil {
			return storageErr("reactivate history", err)
		}
		if err := tx.db.WithContext(ctx).
			Where("original_history_id = ?", h.ID).
			Delete(&flow.ArchivedVersionHistory{}).Error; err != nil {
			return storageErr("delete archived history", err)
		}
		return nil
	})
}

func (r *FlowRepository) ListArchivedVersions(ctx context.Context, flowID string) ([]flow.ArchivedVersionHistory, error) {
	var archived []flow.ArchivedVersionHistory
	err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("version ASC").
		Find(&archived).Error
	if err != nil {
		return nil, storageErr("list archived versions", err)
	}
	return archived, nil
}

func (r *FlowRepository) CreateOperationLog(ctx context.Context, op *flow.ArchiveOperationLog) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	return storageErr("create archive operation", r.db.WithContext(ctx).Create(op).Error)
}

func (r *FlowRepository) UpdateOperationLog(ctx context.Context, op *flow.ArchiveOperationLog) error {
	return storageErr("update archive operation", r.db.WithContext(ctx).Save(op).Error)
}

func (r *FlowRepository) ListOperationLogs(ctx context.Context, flowID string, limit int) ([]flow.ArchiveOperationLog, error) {
	query := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ops []flow.ArchiveOperationLog
	if err := query.Find(&ops).Error; err != nil {
		return nil, storageErr("list archive operations", err)
	}
	return ops, nil
}

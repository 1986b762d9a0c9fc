package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
)

// RecordExecutionStart persists a new execution log. An unset FlowVersion is
// bound to the flow's current version and never changes afterwards.
func (m *Manager) RecordExecutionStart(ctx context.Context, log *flow.ExecutionLog) (*flow.ExecutionLog, error) {
	if log == nil || log.FlowID == "" {
		return nil, flow.NewValidationError("flowId", "execution log requires a flow id")
	}

	if log.FlowVersion == nil {
		def, err := m.repo.GetFlow(ctx, log.FlowID)
		if err != nil {
			return nil, err
		}
		log.FlowVersion = flow.IntPtr(def.Version)
	}
	if log.Status == "" {
		log.Status = flow.ExecutionRunning
	}
	if log.StartTime == nil {
		now := time.Now().UTC()
		log.StartTime = &now
	}

	if err := m.execLogs.CreateExecutionLog(ctx, log); err != nil {
		return nil, err
	}

	m.logger.Debug("Execution started",
		"flow_id", log.FlowID,
		"version", *log.FlowVersion,
		"execution_log_id", log.ID,
	)
	return log, nil
}

// RecordExecutionFinish closes an execution with SUCCESS or FAILED.
func (m *Manager) RecordExecutionFinish(ctx context.Context, executionLogID, status, errorMessage string) (*flow.ExecutionLog, error) {
	if status != flow.ExecutionSuccess && status != flow.ExecutionFailed {
		return nil, flow.NewValidationError("status", fmt.Sprintf("cannot finish an execution as %q", status))
	}

	log, err := m.execLogs.GetExecutionLog(ctx, executionLogID)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	log.Status = status
	log.ErrorMessage = errorMessage
	log.EndTime = &end
	if log.StartTime != nil {
		log.Duration = end.Sub(*log.StartTime).Milliseconds()
	}

	if err := m.execLogs.FinishExecutionLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// RecordNodeExecution appends a visited node to an existing execution.
func (m *Manager) RecordNodeExecution(ctx context.Context, log *flow.NodeExecutionLog) error {
	if log == nil || log.FlowExecutionLogID == "" {
		return flow.NewValidationError("flowExecutionLogId", "node execution log requires an execution log id")
	}
	if _, err := m.execLogs.GetExecutionLog(ctx, log.FlowExecutionLogID); err != nil {
		return err
	}

	if log.StartTime != nil && log.EndTime != nil && log.Duration == 0 {
		log.Duration = log.EndTime.Sub(*log.StartTime).Milliseconds()
	}
	return m.execLogs.CreateNodeExecutionLog(ctx, log)
}

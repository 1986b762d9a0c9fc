package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/events"
	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/metrics"
	"github.com/flowvault-go/pkg/ratelimit"
	"github.com/flowvault-go/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const tracerName = "flowvault/archive"

const (
	DefaultActiveGuardDays = 7
	defaultOperator        = "system"
)

type Options struct {
	// ActiveGuardDays protects versions executed within this many days.
	ActiveGuardDays int
	// VersionsPerSecond paces per-version moves. Zero or less is unlimited.
	VersionsPerSecond float64
}

func DefaultOptions() Options {
	return Options{
		ActiveGuardDays:   DefaultActiveGuardDays,
		VersionsPerSecond: 20,
	}
}

// Manager retires old flow versions into the archive tables.
type Manager struct {
	flows    ports.FlowRepository
	execLogs ports.ExecutionLogRepository
	archives ports.ArchiveRepository
	cold     ports.ColdStorage
	eventBus events.EventBus
	validate *validator.Validate
	limiter  ratelimit.RateLimiter
	opts     Options
	logger   logger.Logger
	now      func() time.Time
}

// NewManager builds an archive manager. cold and eventBus may be nil.
func NewManager(
	flows ports.FlowRepository,
	execLogs ports.ExecutionLogRepository,
	archives ports.ArchiveRepository,
	cold ports.ColdStorage,
	eventBus events.EventBus,
	opts Options,
	log logger.Logger,
) *Manager {
	if eventBus == nil {
		eventBus = events.NopEventBus{}
	}
	if opts.ActiveGuardDays <= 0 {
		opts.ActiveGuardDays = DefaultActiveGuardDays
	}

	return &Manager{
		flows:    flows,
		execLogs: execLogs,
		archives: archives,
		cold:     cold,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  ratelimit.NewTokenBucketLimiter(opts.VersionsPerSecond, 1),
		opts:     opts,
		logger:   log.Named("archive"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveVersions runs one archive pass over flowID. Safety findings are
// reported as warnings and never abort the pass. Each version is archived in
// its own transaction; a failed version is listed in SkippedVersions.
func (m *Manager) ArchiveVersions(ctx context.Context, flowID string, cfg ArchiveConfig) (result *ArchiveResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "archive.ArchiveVersions",
		telemetry.FlowIDAttribute(flowID),
		telemetry.StrategyAttribute(cfg.Strategy),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := m.validateConfig(cfg); err != nil {
		return nil, err
	}
	started := m.now()

	def, err := m.flows.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	histories, err := m.flows.ListHistory(ctx, flowID, true)
	if err != nil {
		return nil, err
	}

	result = &ArchiveResult{
		FlowID:   flowID,
		Strategy: cfg.Strategy,
		DryRun:   cfg.DryRun,
	}
	result.Statistics.ActiveVersions = len(histories)

	candidates, err := m.selectCandidates(ctx, flowID, cfg, histories, result)
	if err != nil {
		return nil, err
	}

	guardDays := m.opts.ActiveGuardDays
	if cfg.ActiveGuardDays > 0 {
		guardDays = cfg.ActiveGuardDays
	}
	recent, err := m.execLogs.VersionsExecutedSince(ctx, flowID, started.AddDate(0, 0, -guardDays))
	if err != nil {
		return nil, err
	}
	candidates, result.GuardedVersions = subtract(candidates, recent)
	for _, v := range result.GuardedVersions {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("version %d executed within the last %d days and is excluded", v, guardDays))
	}
	result.CandidateVersions = candidates
	result.Statistics.CandidateCount = len(candidates)

	if err := m.safetyChecks(ctx, flowID, def, histories, result); err != nil {
		return nil, err
	}

	if cfg.DryRun {
		result.Status = flow.OperationCompleted
		result.Statistics.Duration = m.now().Sub(started)
		m.logger.Info("Archive dry run",
			"flow_id", flowID,
			"strategy", cfg.Strategy,
			"candidates", candidates,
			"warnings", len(result.Warnings),
		)
		return result, nil
	}

	operator := cfg.Operator
	if operator == "" {
		operator = defaultOperator
	}
	op := &flow.ArchiveOperationLog{
		ID:        uuid.New().String(),
		FlowID:    flowID,
		Strategy:  cfg.Strategy,
		Status:    flow.OperationRunning,
		Operator:  operator,
		Versions:  candidates,
		StartTime: started,
	}
	if err := m.archives.CreateOperationLog(ctx, op); err != nil {
		return nil, err
	}
	result.OperationID = op.ID

	if cfg.BackupBeforeArchive && len(candidates) > 0 {
		if err := m.archives.BackupVersions(ctx, op.ID, flowID, candidates); err != nil {
			m.logger.Warn("Backup before archive failed", "flow_id", flowID, "operation_id", op.ID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("backup failed: %v", err))
		}
	}

	reason := cfg.Reason
	if reason == "" {
		reason = defaultReason(cfg)
	}
	for _, version := range candidates {
		m.archiveOne(ctx, ports.ArchiveVersionRequest{
			FlowID:      flowID,
			Version:     version,
			Strategy:    cfg.Strategy,
			Reason:      reason,
			OperationID: op.ID,
			Operator:    operator,
		}, result)
	}

	result.Status = operationStatus(len(result.ArchivedVersions), len(result.SkippedVersions))
	result.Statistics.ArchivedCount = len(result.ArchivedVersions)
	result.Statistics.SkippedCount = len(result.SkippedVersions)
	result.Statistics.Duration = m.now().Sub(started)

	m.finishOperation(ctx, op, result)
	m.recordMetrics(cfg.Strategy, result)

	if len(result.ArchivedVersions) > 0 {
		m.publish(ctx, events.NewEventBuilder(events.FlowVersionsArchived).
			WithAggregateID(flowID).
			WithAggregateType("flow").
			WithUserID(operator).
			WithPayload("operationId", op.ID).
			WithPayload("strategy", cfg.Strategy).
			WithPayload("versions", result.ArchivedVersions).
			Build())
	}

	m.logger.Info("Archive finished",
		"flow_id", flowID,
		"operation_id", op.ID,
		"strategy", cfg.Strategy,
		"status", result.Status,
		"archived", result.ArchivedVersions,
		"skipped", result.SkippedVersions,
	)
	return result, nil
}

func (m *Manager) validateConfig(cfg ArchiveConfig) error {
	if err := m.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return flow.NewValidationError(fe.Field(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()))
		}
		return flow.NewValidationError("config", err.Error())
	}
	if cfg.Strategy == flow.StrategyManual && len(cfg.Versions) == 0 {
		return flow.NewValidationError("Versions", "manual archive needs at least one version")
	}
	return nil
}

// selectCandidates applies the strategy to the active histories, which are
// ordered by version.
func (m *Manager) selectCandidates(ctx context.Context, flowID string, cfg ArchiveConfig, histories []flow.VersionHistory, result *ArchiveResult) ([]int, error) {
	var candidates []int

	switch cfg.Strategy {
	case flow.StrategyByTime:
		cutoff := m.now().AddDate(0, 0, -cfg.OlderThanDays)
		for _, h := range histories {
			if h.CreatedAt.Before(cutoff) {
				candidates = append(candidates, h.Version)
			}
		}

	case flow.StrategyByCount:
		for i := 0; i < len(histories)-cfg.KeepVersions; i++ {
			candidates = append(candidates, histories[i].Version)
		}

	case flow.StrategyByUsage:
		counts, err := m.execLogs.CountExecutionsByVersion(ctx, flowID)
		if err != nil {
			return nil, err
		}
		for _, h := range histories {
			if counts[h.Version] < cfg.MinExecutions {
				candidates = append(candidates, h.Version)
			}
		}

	case flow.StrategyManual:
		active := make(map[int]bool, len(histories))
		for _, h := range histories {
			active[h.Version] = true
		}
		seen := make(map[int]bool, len(cfg.Versions))
		for _, v := range cfg.Versions {
			if seen[v] {
				continue
			}
			seen[v] = true
			if !active[v] {
				result.Warnings = append(result.Warnings, fmt.Sprintf("version %d does not exist or is already archived", v))
				continue
			}
			candidates = append(candidates, v)
		}
		sort.Ints(candidates)
	}

	return candidates, nil
}

func (m *Manager) safetyChecks(ctx context.Context, flowID string, def *flow.FlowDefinition, histories []flow.VersionHistory, result *ArchiveResult) error {
	candidates := result.CandidateVersions
	if len(candidates) == 0 {
		return nil
	}

	if len(candidates) == len(histories) {
		result.Warnings = append(result.Warnings, "all active versions of the flow are selected for archiving")
	}

	latest := def.Version
	for _, h := range histories {
		if h.Version > latest {
			latest = h.Version
		}
	}
	if contains(candidates, latest) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("the latest version %d is selected for archiving", latest))
	}

	running, err := m.execLogs.VersionsWithStatus(ctx, flowID, flow.ExecutionRunning)
	if err != nil {
		return err
	}
	sort.Ints(running)
	for _, v := range running {
		if contains(candidates, v) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("version %d has running executions", v))
		}
	}
	return nil
}

// archiveOne moves a single version. Failures only affect that version.
func (m *Manager) archiveOne(ctx context.Context, req ports.ArchiveVersionRequest, result *ArchiveResult) {
	skip := func(err error) {
		m.logger.Warn("Failed to archive version",
			"flow_id", req.FlowID,
			"version", req.Version,
			"operation_id", req.OperationID,
			"error", err,
		)
		result.SkippedVersions = append(result.SkippedVersions, req.Version)
		result.Warnings = append(result.Warnings, fmt.Sprintf("version %d skipped: %v", req.Version, err))
	}

	if err := m.limiter.Wait(ctx); err != nil {
		skip(err)
		return
	}

	bundle, err := m.archives.ArchiveVersion(ctx, req)
	if err != nil {
		skip(err)
		return
	}

	result.ArchivedVersions = append(result.ArchivedVersions, req.Version)
	result.Statistics.ArchivedExecutionLogs += len(bundle.ExecutionLogs)
	result.Statistics.ArchivedNodeLogs += len(bundle.NodeExecutionLogs)

	data, err := json.Marshal(bundle)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("version %d could not be encoded: %v", req.Version, err))
		return
	}
	result.Statistics.EstimatedSavingsBytes += int64(len(data))

	if m.cold == nil {
		return
	}
	key := ColdStorageKey(req.FlowID, req.Version, req.OperationID)
	if err := m.cold.Put(ctx, key, data); err != nil {
		m.logger.Warn("Cold storage export failed", "flow_id", req.FlowID, "version", req.Version, "key", key, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("version %d was not exported to cold storage: %v", req.Version, err))
	}
}

// ColdStorageKey is the object key of one archived version bundle.
func ColdStorageKey(flowID string, version int, operationID string) string {
	return fmt.Sprintf("flows/%s/v%d/%s.json.gz", flowID, version, operationID)
}

func (m *Manager) finishOperation(ctx context.Context, op *flow.ArchiveOperationLog, result *ArchiveResult) {
	end := m.now()
	op.Status = result.Status
	op.ArchivedCount = len(result.ArchivedVersions)
	op.SkippedCount = len(result.SkippedVersions)
	op.EndTime = &end
	if len(result.Warnings) > 0 {
		op.Message = fmt.Sprintf("%d warning(s); first: %s", len(result.Warnings), result.Warnings[0])
	}

	if err := m.archives.UpdateOperationLog(ctx, op); err != nil {
		m.logger.Warn("Failed to update archive operation log", "operation_id", op.ID, "error", err)
	}
}

func (m *Manager) recordMetrics(strategy string, result *ArchiveResult) {
	metrics.ArchivedVersionsTotal.WithLabelValues(strategy).Add(float64(len(result.ArchivedVersions)))
	metrics.ArchiveSkippedVersionsTotal.WithLabelValues(strategy).Add(float64(len(result.SkippedVersions)))
	metrics.ArchiveRunDuration.WithLabelValues(strategy).Observe(result.Statistics.Duration.Seconds())
}

// GetArchiveHistory returns the latest archive operations of a flow. A
// failed read degrades to an empty list.
func (m *Manager) GetArchiveHistory(ctx context.Context, flowID string, limit int) []flow.ArchiveOperationLog {
	ops, err := m.archives.ListOperationLogs(ctx, flowID, limit)
	if err != nil {
		m.logger.Warn("Failed to read archive history", "flow_id", flowID, "error", err)
		return []flow.ArchiveOperationLog{}
	}
	if ops == nil {
		return []flow.ArchiveOperationLog{}
	}
	return ops
}

func (m *Manager) ListArchivedVersions(ctx context.Context, flowID string) ([]flow.ArchivedVersionHistory, error) {
	return m.archives.ListArchivedVersions(ctx, flowID)
}

// RestoreArchivedVersion reactivates an archived version history.
func (m *Manager) RestoreArchivedVersion(ctx context.Context, flowID string, version int) error {
	if err := m.archives.RestoreVersion(ctx, flowID, version); err != nil {
		return err
	}

	m.publish(ctx, events.NewEventBuilder(events.FlowVersionRestored).
		WithAggregateID(flowID).
		WithAggregateType("flow").
		WithPayload("version", version).
		Build())
	m.logger.Info("Archived version restored", "flow_id", flowID, "version", version)
	return nil
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if err := m.eventBus.Publish(ctx, event); err != nil {
		m.logger.Warn("Failed to publish event", "type", event.Type, "flow_id", event.AggregateID, "error", err)
	}
}

func defaultReason(cfg ArchiveConfig) string {
	switch cfg.Strategy {
	case flow.StrategyByTime:
		return fmt.Sprintf("older than %d days", cfg.OlderThanDays)
	case flow.StrategyByCount:
		return fmt.Sprintf("outside the newest %d versions", cfg.KeepVersions)
	case flow.StrategyByUsage:
		return fmt.Sprintf("fewer than %d executions", cfg.MinExecutions)
	default:
		return "manual archive"
	}
}

func operationStatus(archived, skipped int) string {
	switch {
	case skipped == 0:
		return flow.OperationCompleted
	case archived == 0:
		return flow.OperationFailed
	default:
		return flow.OperationPartial
	}
}

// subtract splits versions into those not in excluded and those in it.
func subtract(versions, excluded []int) (kept, removed []int) {
	skip := make(map[int]bool, len(excluded))
	for _, v := range excluded {
		skip[v] = true
	}
	for _, v := range versions {
		if skip[v] {
			removed = append(removed, v)
		} else {
			kept = append(kept, v)
		}
	}
	return kept, removed
}

func contains(versions []int, v int) bool {
	for _, x := range versions {
		if x == v {
			return true
		}
	}
	return false
}

package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/logger"
	"github.com/robfig/cron/v3"
)

type SchedulerConfig struct {
	// Schedule is a standard five-field cron expression, evaluated in UTC.
	Schedule     string
	KeepVersions int
	Backup       bool
	RunTimeout   time.Duration
}

// Scheduler periodically applies BY_COUNT retention to every flow.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	flows   ports.FlowRepository
	config  SchedulerConfig
	logger  logger.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(manager *Manager, flows ports.FlowRepository, cfg SchedulerConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		manager: manager,
		flows:   flows,
		config:  cfg,
		logger:  log.Named("archive-scheduler"),
	}
}

func (s *Scheduler) Start() error {
	if s.config.KeepVersions <= 0 {
		return fmt.Errorf("invalid keep versions: %d", s.config.KeepVersions)
	}
	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if _, err := s.cron.AddFunc(s.config.Schedule, s.tick); err != nil {
		return fmt.Errorf("failed to schedule archive run: %w", err)
	}

	s.logger.Info("Starting archive scheduler", "schedule", s.config.Schedule, "keep_versions", s.config.KeepVersions)
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.logger.Info("Stopping archive scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled archive run failed", "error", err)
	}
}

// RunOnce archives every flow once and returns the number of archived
// versions. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Archive run already in progress, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	flowIDs, err := s.flows.ListFlowIDs(ctx)
	if err != nil {
		return 0, err
	}

	cfg := ArchiveConfig{
		Strategy:            flow.StrategyByCount,
		KeepVersions:        s.config.KeepVersions,
		BackupBeforeArchive: s.config.Backup,
		Operator:            "scheduler",
		Reason:              fmt.Sprintf("scheduled retention of the newest %d versions", s.config.KeepVersions),
	}

	archived := 0
	for _, flowID := range flowIDs {
		result, err := s.manager.ArchiveVersions(ctx, flowID, cfg)
		if err != nil {
			s.logger.Warn("Archive run failed for flow", "flow_id", flowID, "error", err)
			continue
		}
		archived += len(result.ArchivedVersions)
	}

	s.logger.Info("Archive run finished", "flows", len(flowIDs), "archived", archived)
	return archived, nil
}

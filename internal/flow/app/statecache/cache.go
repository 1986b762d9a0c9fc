package statecache

import (
	"context"
	"errors"
	"time"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/pkg/cache"
	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/metrics"
	"github.com/flowvault-go/pkg/resilience"
)

const keyNamespace = "flow"

type Options struct {
	// WriteRetry bounds each distributed write, including per-attempt timeout.
	WriteRetry resilience.RetryConfig
	// Breaker short-circuits distributed writes while the tier is failing.
	Breaker resilience.CircuitBreakerConfig
}

func DefaultOptions() Options {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 20 * time.Millisecond
	retry.MaxDelay = 200 * time.Millisecond
	retry.AttemptTimeout = 200 * time.Millisecond
	return Options{
		WriteRetry: retry,
		Breaker:    resilience.DefaultCircuitBreakerConfig("state-cache-distributed"),
	}
}

// ExecutionStateCache keeps execution contexts in a process-local tier and
// replicates them to a shared distributed tier for cross-process recovery.
type ExecutionStateCache struct {
	local       cache.Tier
	distributed cache.Tier
	codec       *Codec
	keys        *cache.CacheKeyBuilder
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	logger      logger.Logger
}

// New builds the cache. distributed may be nil, leaving a local-only cache.
func New(local, distributed cache.Tier, opts Options, log logger.Logger) *ExecutionStateCache {
	log = log.Named("state-cache")
	retry := opts.WriteRetry
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, resilience.ErrTooManyRequests)
	}

	return &ExecutionStateCache{
		local:       local,
		distributed: distributed,
		codec:       NewCodec(log),
		keys:        cache.NewCacheKeyBuilder(keyNamespace),
		retry:       retry,
		breaker:     resilience.NewCircuitBreaker(opts.Breaker),
		logger:      log,
	}
}

// GenerateCacheKey returns flow:exec:<flowID>:<executionID> with ':' and '%'
// escaped inside each id.
func (c *ExecutionStateCache) GenerateCacheKey(flowID, executionID string) string {
	return c.keys.Build("exec", flowID, executionID)
}

// SaveState writes ctx to the local tier and then, best effort, to the
// distributed tier. Only encoding and local failures reach the caller.
func (c *ExecutionStateCache) SaveState(ctx context.Context, state *flow.CachedExecutionContext) error {
	if state == nil {
		return flow.NewValidationError("state", "execution context is required")
	}
	if state.FlowID == "" || state.ExecutionID == "" {
		return flow.NewValidationError("state", "flow id and execution id are required")
	}

	key := c.GenerateCacheKey(state.FlowID, state.ExecutionID)
	data, err := c.codec.Encode(key, state)
	if err != nil {
		return err
	}

	if err := c.local.Put(ctx, key, data); err != nil {
		return flow.NewStorageError("local cache put", err)
	}

	c.replicate(ctx, key, data)
	return nil
}

func (c *ExecutionStateCache) replicate(ctx context.Context, key string, data []byte) {
	if c.distributed == nil {
		return
	}

	err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Do(ctx, func(ctx context.Context) error {
			return c.distributed.Put(ctx, key, data)
		})
	})
	if err != nil {
		metrics.StateCacheDistributedWriteFailures.Inc()
		c.logger.Warn("Distributed state write failed",
			"key", key,
			"breaker_state", c.breaker.State().String(),
			"error", err,
		)
	}
}

// LoadState reads the local tier, then the distributed tier, backfilling the
// local tier on a distributed hit.
func (c *ExecutionStateCache) LoadState(ctx context.Context, flowID, executionID string) (*flow.CachedExecutionContext, error) {
	key := c.GenerateCacheKey(flowID, executionID)

	data, err := c.local.Get(ctx, key)
	if err == nil {
		metrics.RecordCacheLookup(c.local.Name(), metrics.ResultHit)
		state, err := c.codec.Decode(key, data)
		if err != nil {
			return nil, err
		}
		return c.owned(key, state, flowID, executionID)
	}
	metrics.RecordCacheLookup(c.local.Name(), metrics.ResultMiss)

	if c.distributed == nil {
		return nil, &flow.StateNotFoundError{FlowID: flowID, ExecutionID: executionID}
	}

	data, err = c.distributed.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.RecordCacheLookup(c.distributed.Name(), metrics.ResultMiss)
			return nil, &flow.StateNotFoundError{FlowID: flowID, ExecutionID: executionID}
		}
		metrics.RecordCacheLookup(c.distributed.Name(), metrics.ResultError)
		return nil, flow.NewStorageError("distributed cache get", err)
	}
	metrics.RecordCacheLookup(c.distributed.Name(), metrics.ResultHit)

	state, err := c.codec.Decode(key, data)
	if err != nil {
		return nil, err
	}
	if state, err = c.owned(key, state, flowID, executionID); err != nil {
		return nil, err
	}

	if err := c.local.Put(ctx, key, data); err != nil {
		c.logger.Warn("Local backfill failed", "key", key, "error", err)
	} else {
		metrics.StateCacheBackfillsTotal.Inc()
	}
	return state, nil
}

// owned rejects a stored context that belongs to another execution.
func (c *ExecutionStateCache) owned(key string, state *flow.CachedExecutionContext, flowID, executionID string) (*flow.CachedExecutionContext, error) {
	if state.FlowID == flowID && state.ExecutionID == executionID {
		return state, nil
	}
	c.logger.Warn("Cached state belongs to another execution",
		"key", key,
		"flow_id", flowID,
		"execution_id", executionID,
		"stored_flow_id", state.FlowID,
		"stored_execution_id", state.ExecutionID,
	)
	return nil, &flow.StateNotFoundError{FlowID: flowID, ExecutionID: executionID}
}

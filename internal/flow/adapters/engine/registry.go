package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowvault-go/pkg/logger"
)

// ChainRegistry keeps compiled chains in memory, keyed by flow id. It stands
// in for the execution engine inside this service.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[string]string
	logger logger.Logger
}

func NewChainRegistry(log logger.Logger) *ChainRegistry {
	return &ChainRegistry{
		chains: make(map[string]string),
		logger: log,
	}
}

func (r *ChainRegistry) Register(ctx context.Context, chainID, expression string) error {
	if chainID == "" {
		return fmt.Errorf("chain id is required")
	}
	if expression == "" {
		return fmt.Errorf("chain %s has an empty expression", chainID)
	}

	r.mu.Lock()
	r.chains[chainID] = expression
	r.mu.Unlock()

	r.logger.Debug("Chain registered", "chain_id", chainID, "expression", expression)
	return nil
}

// Remove is idempotent.
func (r *ChainRegistry) Remove(ctx context.Context, chainID string) error {
	r.mu.Lock()
	delete(r.chains, chainID)
	r.mu.Unlock()

	r.logger.Debug("Chain removed", "chain_id", chainID)
	return nil
}

func (r *ChainRegistry) Lookup(chainID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expr, ok := r.chains[chainID]
	return expr, ok
}

package ports

import (
	"context"

	"github.com/flowvault-go/internal/domain/flow"
)

// ExpressionCompiler turns a node/edge graph into an executable expression.
// Equal graphs must compile to equal strings.
type ExpressionCompiler interface {
	Compile(nodes []flow.FlowNode, edges []flow.FlowEdge) (string, error)
}

// ChainRegistry is the execution engine's registration surface.
type ChainRegistry interface {
	Register(ctx context.Context, chainID, expression string) error
	Remove(ctx context.Context, chainID string) error
}

// ColdStorage receives archived bundles that leave the database.
type ColdStorage interface {
	Put(ctx context.Context, key string, data []byte) error
}

package engine

import (
	"strings"

	"github.com/flowvault-go/internal/domain/flow"
)

// LevelCompiler renders a graph as THEN over its breadth-first levels, with
// WHEN grouping the nodes of a level that run side by side:
//
//	start -> {a, b} -> end   =>   THEN(start,WHEN(a,b),end)
type LevelCompiler struct{}

func NewLevelCompiler() *LevelCompiler {
	return &LevelCompiler{}
}

func (c *LevelCompiler) Compile(nodes []flow.FlowNode, edges []flow.FlowEdge) (string, error) {
	graph := flow.NewGraph(nodes, edges)
	if err := graph.ValidateEdges(); err != nil {
		return "", err
	}

	levels := graph.Levels()
	if len(levels) == 0 {
		return "", nil
	}

	steps := make([]string, 0, len(levels))
	for _, level := range levels {
		if len(level) == 1 {
			steps = append(steps, level[0].ID)
			continue
		}
		ids := make([]string, 0, len(level))
		for _, n := range level {
			ids = append(ids, n.ID)
		}
		steps = append(steps, "WHEN("+strings.Join(ids, ",")+")")
	}

	if len(steps) == 1 {
		return steps[0], nil
	}
	return "THEN(" + strings.Join(steps, ",") + ")", nil
}

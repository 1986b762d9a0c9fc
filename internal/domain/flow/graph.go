package flow

import (
	"fmt"
	"sort"
)

// Graph is an id-indexed view over a node/edge set. Nodes and edges live in
// slices; adjacency is kept as slice indexes so lookups never walk the list.
type Graph struct {
	nodes    []FlowNode
	edges    []FlowEdge
	index    map[string]int
	incoming map[int][]int
	outgoing map[int][]int
}

// NewGraph indexes the given nodes and edges. Edges whose endpoints are not
// among the nodes are ignored here; ValidateEdges reports them.
func NewGraph(nodes []FlowNode, edges []FlowEdge) *Graph {
	g := &Graph{
		nodes:    nodes,
		edges:    edges,
		index:    make(map[string]int, len(nodes)),
		incoming: make(map[int][]int),
		outgoing: make(map[int][]int),
	}
	for i, n := range nodes {
		g.index[n.ID] = i
	}
	for _, e := range edges {
		src, ok := g.index[e.SourceNodeID]
		if !ok {
			continue
		}
		dst, ok := g.index[e.TargetNodeID]
		if !ok {
			continue
		}
		g.outgoing[src] = append(g.outgoing[src], dst)
		g.incoming[dst] = append(g.incoming[dst], src)
	}
	return g
}

func (g *Graph) Node(id string) (FlowNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return FlowNode{}, false
	}
	return g.nodes[i], true
}

// PreviousNodes returns every node from which nodeID is reachable, nearest
// first. Cycles terminate through the visited set.
func (g *Graph) PreviousNodes(nodeID string) []FlowNode {
	start, ok := g.index[nodeID]
	if !ok {
		return nil
	}

	visited := map[int]bool{start: true}
	queue := []int{start}
	var result []FlowNode

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range g.incoming[cur] {
			if visited[prev] {
				continue
			}
			visited[prev] = true
			result = append(result, g.nodes[prev])
			queue = append(queue, prev)
		}
	}
	return result
}

// ValidateEdges fails on the first edge with an unknown endpoint.
func (g *Graph) ValidateEdges() error {
	for _, e := range g.edges {
		if _, ok := g.index[e.SourceNodeID]; !ok {
			return NewValidationError("edges", fmt.Sprintf("edge %d references unknown source node %q", e.ID, e.SourceNodeID))
		}
		if _, ok := g.index[e.TargetNodeID]; !ok {
			return NewValidationError("edges", fmt.Sprintf("edge %d references unknown target node %q", e.ID, e.TargetNodeID))
		}
	}
	return nil
}

func (g *Graph) HasStartNode() bool {
	for _, n := range g.nodes {
		if n.Type == NodeTypeStart {
			return true
		}
	}
	return false
}

// Levels groups nodes by breadth-first distance from the roots (start nodes,
// or nodes without incoming edges when there is no start node). Nodes not
// reachable from any root are appended as a final level. Ids within a level
// are sorted.
func (g *Graph) Levels() [][]FlowNode {
	if len(g.nodes) == 0 {
		return nil
	}

	var roots []int
	for i, n := range g.nodes {
		if n.Type == NodeTypeStart {
			roots = append(roots, i)
		}
	}
	if len(roots) == 0 {
		for i := range g.nodes {
			if len(g.incoming[i]) == 0 {
				roots = append(roots, i)
			}
		}
	}

	visited := make(map[int]bool, len(g.nodes))
	var levels [][]FlowNode
	frontier := roots
	for _, r := range roots {
		visited[r] = true
	}
	for len(frontier) > 0 {
		level := make([]FlowNode, 0, len(frontier))
		var next []int
		for _, i := range frontier {
			level = append(level, g.nodes[i])
			for _, o := range g.outgoing[i] {
				if !visited[o] {
					visited[o] = true
					next = append(next, o)
				}
			}
		}
		sortNodes(level)
		levels = append(levels, level)
		frontier = next
	}

	var rest []FlowNode
	for i, n := range g.nodes {
		if !visited[i] {
			rest = append(rest, n)
		}
	}
	if len(rest) > 0 {
		sortNodes(rest)
		levels = append(levels, rest)
	}
	return levels
}

func sortNodes(nodes []FlowNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

package flow

import (
	"sort"
)

// Snapshot is a point-in-time copy of a flow's graph taken at publish. Node
// and edge order carry no meaning; NewSnapshot sorts them so that equal
// graphs serialize identically.
type Snapshot struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// NewSnapshot copies nodes and edges into a detached snapshot.
func NewSnapshot(nodes []FlowNode, edges []FlowEdge) Snapshot {
	s := Snapshot{
		Nodes: make([]FlowNode, len(nodes)),
		Edges: make([]FlowEdge, len(edges)),
	}
	copy(s.Nodes, nodes)
	copy(s.Edges, edges)

	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })
	sort.Slice(s.Edges, func(i, j int) bool { return s.Edges[i].ID < s.Edges[j].ID })
	return s
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.Nodes, s.Edges)
}

func (s Snapshot) NodeIndex() map[string]FlowNode {
	index := make(map[string]FlowNode, len(s.Nodes))
	for _, n := range s.Nodes {
		index[n.ID] = n
	}
	return index
}

func (s Snapshot) EdgeIndex() map[int64]FlowEdge {
	index := make(map[int64]FlowEdge, len(s.Edges))
	for _, e := range s.Edges {
		index[e.ID] = e
	}
	return index
}

// SameContent reports whether two graphs carry the same nodes and edges,
// ignoring ordering, flow ownership and bookkeeping timestamps.
func SameContent(aNodes []FlowNode, aEdges []FlowEdge, bNodes []FlowNode, bEdges []FlowEdge) bool {
	if len(aNodes) != len(bNodes) || len(aEdges) != len(bEdges) {
		return false
	}

	nodes := make(map[string]FlowNode, len(aNodes))
	for _, n := range aNodes {
		nodes[n.ID] = n
	}
	for _, n := range bNodes {
		other, ok := nodes[n.ID]
		if !ok || !sameNode(n, other) {
			return false
		}
	}

	edges := make(map[int64]FlowEdge, len(aEdges))
	for _, e := range aEdges {
		edges[e.ID] = e
	}
	for _, e := range bEdges {
		other, ok := edges[e.ID]
		if !ok || e.SourceNodeID != other.SourceNodeID ||
			e.TargetNodeID != other.TargetNodeID || e.Condition != other.Condition {
			return false
		}
	}
	return true
}

func sameNode(a, b FlowNode) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		a.Config == b.Config &&
		a.PositionX == b.PositionX &&
		a.PositionY == b.PositionY
}

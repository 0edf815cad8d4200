package graph

import "context"

// NodeFunc is a single graph node. resume is nil on a fresh entry and holds
// the user's reply when the runtime is resuming a previously-suspended
// interactive node.
type NodeFunc func(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error)

// Graph is the named, directed graph of nodes. Routing between Ready steps
// is not declared per-edge here — it is computed uniformly by the runtime
// per the post-tools and pending-tool-call rules — so Graph only needs to
// hold the node catalogue and the entry point.
type Graph struct {
	nodes map[string]NodeFunc
	start string
}

func NewGraph(start string) *Graph {
	return &Graph{nodes: make(map[string]NodeFunc), start: start}
}

func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

func (g *Graph) node(name string) (NodeFunc, bool) {
	fn, ok := g.nodes[name]
	return fn, ok
}

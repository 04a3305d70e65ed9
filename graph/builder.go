package graph

import "sort"

// End is the sentinel edge target meaning "this branch terminates".
const End = "__end__"

// Builder assembles a workflow graph: a state schema, named nodes, static
// edges, and conditional (router) edges. Compile validates the whole
// topology and freezes it into a CompiledGraph.
//
// Example:
//
//	b := graph.NewBuilder(schema)
//	_ = b.AddNode("plan", planNode)
//	_ = b.AddNode("collect", collectNode)
//	_ = b.AddEdge("collect", graph.End)
//	_ = b.AddConditionalEdge("plan", planRouter, "collect")
//	_ = b.SetStart("plan")
//	g, err := b.Compile()
type Builder struct {
	schema  *Schema
	nodes   map[string]NodeFunc
	edges   []staticEdge
	routers map[string]routerEdge
	start   string
}

type staticEdge struct {
	from string
	to   string
}

type routerEdge struct {
	router  Router
	targets []string // declared targets; empty means "any node"
}

// NewBuilder creates a builder over the given state schema.
func NewBuilder(schema *Schema) *Builder {
	return &Builder{
		schema:  schema,
		nodes:   make(map[string]NodeFunc),
		routers: make(map[string]routerEdge),
	}
}

// AddNode registers a named node. Names must be unique and must not collide
// with the End sentinel.
func (b *Builder) AddNode(name string, fn NodeFunc) error {
	if name == "" {
		return &CompileError{Message: "node name cannot be empty"}
	}
	if name == End {
		return &CompileError{Node: name, Message: "node name collides with End sentinel"}
	}
	if fn == nil {
		return &CompileError{Node: name, Message: "node function cannot be nil"}
	}
	if _, exists := b.nodes[name]; exists {
		return &CompileError{Node: name, Message: "duplicate node"}
	}
	b.nodes[name] = fn
	return nil
}

// AddEdge adds a static edge. After every superstep in which from ran, to is
// scheduled unconditionally. to may be End to terminate the branch.
func (b *Builder) AddEdge(from, to string) error {
	if from == "" || to == "" {
		return &CompileError{Message: "edge endpoints cannot be empty"}
	}
	if from == End {
		return &CompileError{Message: "edge cannot originate at End"}
	}
	b.edges = append(b.edges, staticEdge{from: from, to: to})
	return nil
}

// AddConditionalEdge attaches a router to from. After each superstep in
// which from ran, the router inspects the committed state and returns the
// next hop(s).
//
// targets optionally declares the router's possible destinations. Declared
// targets are validated at compile time, count toward reachability, and let
// Compile prove the graph acyclic; a router without declared targets makes
// the graph possibly-cyclic, requiring WithMaxSupersteps on the runner.
func (b *Builder) AddConditionalEdge(from string, router Router, targets ...string) error {
	if from == "" {
		return &CompileError{Message: "conditional edge source cannot be empty"}
	}
	if router == nil {
		return &CompileError{Node: from, Message: "router cannot be nil"}
	}
	if _, exists := b.routers[from]; exists {
		return &CompileError{Node: from, Message: "node already has a conditional edge"}
	}
	b.routers[from] = routerEdge{router: router, targets: targets}
	return nil
}

// SetStart names the node the first superstep dispatches.
func (b *Builder) SetStart(name string) error {
	if name == "" {
		return &CompileError{Message: "start node cannot be empty"}
	}
	b.start = name
	return nil
}

// Compile validates the topology and returns an immutable CompiledGraph,
// safe for concurrent runs across thread IDs.
//
// Validation rejects: a missing or unknown start node, edges referencing
// unknown nodes, declared router targets referencing unknown nodes, and
// nodes unreachable from the start.
func (b *Builder) Compile() (*CompiledGraph, error) {
	if len(b.nodes) == 0 {
		return nil, &CompileError{Message: "graph has no nodes"}
	}
	if b.start == "" {
		return nil, &CompileError{Message: "start node not set"}
	}
	if _, exists := b.nodes[b.start]; !exists {
		return nil, &CompileError{Node: b.start, Message: "start node does not exist"}
	}

	for _, e := range b.edges {
		if _, exists := b.nodes[e.from]; !exists {
			return nil, &CompileError{Node: e.from, Message: "edge source does not exist"}
		}
		if e.to != End {
			if _, exists := b.nodes[e.to]; !exists {
				return nil, &CompileError{Node: e.to, Message: "edge target does not exist"}
			}
		}
	}
	staticSources := make(map[string]bool)
	for _, e := range b.edges {
		staticSources[e.from] = true
	}
	for from, re := range b.routers {
		if _, exists := b.nodes[from]; !exists {
			return nil, &CompileError{Node: from, Message: "conditional edge source does not exist"}
		}
		if staticSources[from] {
			return nil, &CompileError{Node: from, Message: "node has both static and conditional edges"}
		}
		for _, target := range re.targets {
			if target == End {
				continue
			}
			if _, exists := b.nodes[target]; !exists {
				return nil, &CompileError{Node: target, Message: "router target does not exist"}
			}
		}
	}

	adjacency := b.adjacency()
	if unreachable := b.unreachableFrom(b.start, adjacency); len(unreachable) > 0 {
		return nil, &CompileError{Node: unreachable[0], Message: "node unreachable from start"}
	}

	nodes := make(map[string]NodeFunc, len(b.nodes))
	for name, fn := range b.nodes {
		nodes[name] = fn
	}
	edgesByFrom := make(map[string][]string)
	for _, e := range b.edges {
		edgesByFrom[e.from] = append(edgesByFrom[e.from], e.to)
	}
	routers := make(map[string]routerEdge, len(b.routers))
	for from, re := range b.routers {
		routers[from] = re
	}

	return &CompiledGraph{
		schema:      b.schema,
		nodes:       nodes,
		edgesByFrom: edgesByFrom,
		routers:     routers,
		start:       b.start,
	}, nil
}

// adjacency builds the static successor map: static edges plus declared
// router targets. Routers without declared targets contribute edges to every
// node, since they may route anywhere.
func (b *Builder) adjacency() map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range b.edges {
		if e.to != End {
			adjacency[e.from] = append(adjacency[e.from], e.to)
		}
	}
	for from, re := range b.routers {
		if len(re.targets) == 0 {
			for name := range b.nodes {
				adjacency[from] = append(adjacency[from], name)
			}
			continue
		}
		for _, target := range re.targets {
			if target != End {
				adjacency[from] = append(adjacency[from], target)
			}
		}
	}
	return adjacency
}

func (b *Builder) unreachableFrom(start string, adjacency map[string][]string) []string {
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[node] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}

	var unreachable []string
	for name := range b.nodes {
		if !visited[name] {
			unreachable = append(unreachable, name)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}

// CompiledGraph is a validated, immutable graph. One CompiledGraph can back
// any number of concurrent runs.
type CompiledGraph struct {
	schema      *Schema
	nodes       map[string]NodeFunc
	edgesByFrom map[string][]string
	routers     map[string]routerEdge
	start       string
}

// Start returns the entry node's name.
func (g *CompiledGraph) Start() string {
	return g.start
}

// Nodes returns the node names in sorted order.
func (g *CompiledGraph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// provablyAcyclic reports whether the static topology (static edges plus
// declared router targets) contains no cycle. A router without declared
// targets may route anywhere, so the graph cannot be proven acyclic.
func (g *CompiledGraph) provablyAcyclic() bool {
	for _, re := range g.routers {
		if len(re.targets) == 0 {
			return false
		}
	}

	adjacency := make(map[string][]string)
	for from, targets := range g.edgesByFrom {
		for _, to := range targets {
			if to != End {
				adjacency[from] = append(adjacency[from], to)
			}
		}
	}
	for from, re := range g.routers {
		for _, target := range re.targets {
			if target != End {
				adjacency[from] = append(adjacency[from], target)
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	color := make(map[string]int, len(g.nodes))

	var visit func(node string) bool // true when a cycle is found
	visit = func(node string) bool {
		color[node] = inStack
		for _, next := range adjacency[node] {
			switch color[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = done
		return false
	}

	for name := range g.nodes {
		if color[name] == unvisited && visit(name) {
			return false
		}
	}
	return true
}

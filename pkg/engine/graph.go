package engine

import (
	"fmt"

	"github.com/korora-tech/dhd/pkg/atoms"
	"github.com/korora-tech/dhd/pkg/modules"
)

// Node is one atom in the execution graph, tagged with the module and
// action it was lowered from.
type Node struct {
	ID     int
	Module string
	Action string
	Kind   modules.Kind
	Atom   atoms.Atom
}

// Graph is the immutable atom DAG produced by planning. Nodes are held
// in an arena indexed by ID; edges are adjacency lists over IDs. The
// executor only reads it.
type Graph struct {
	nodes []*Node
	succ  [][]int
	pred  [][]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a node to the arena and returns its ID.
func (g *Graph) AddNode(module, action string, kind modules.Kind, atom atoms.Atom) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, &Node{ID: id, Module: module, Action: action, Kind: kind, Atom: atom})
	g.succ = append(g.succ, nil)
	g.pred = append(g.pred, nil)
	return id
}

// AddEdge records that from must finish before to starts.
func (g *Graph) AddEdge(from, to int) {
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID.
func (g *Graph) Node(id int) *Node { return g.nodes[id] }

// Successors returns the IDs that depend on id.
func (g *Graph) Successors(id int) []int { return g.succ[id] }

// Predecessors returns the IDs that id depends on.
func (g *Graph) Predecessors(id int) []int { return g.pred[id] }

// TopoOrder returns node IDs in a valid execution order using Kahn's
// algorithm. Planning guarantees acyclicity at the module level, so a
// cycle here is an internal invariant violation.
func (g *Graph) TopoOrder() ([]int, error) {
	indegree := make([]int, len(g.nodes))
	for _, targets := range g.succ {
		for _, to := range targets {
			indegree[to]++
		}
	}

	queue := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, to := range g.succ[id] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("atom graph contains a cycle (%d of %d nodes ordered)", len(order), len(g.nodes))
	}
	return order, nil
}

// moduleCycle finds a dependency cycle among modules using iterative
// DFS, returning the names along one cycle. deps maps a module to its
// dependencies; every name must be present as a key.
func moduleCycle(deps map[string][]string, order []string) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(deps))
	parent := make(map[string]string, len(deps))

	var cycle []string
	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = visiting
		for _, dep := range deps[name] {
			switch state[dep] {
			case unvisited:
				parent[dep] = name
				if visit(dep) {
					return true
				}
			case visiting:
				// Walk parents back from name to dep to recover the loop.
				cycle = []string{dep}
				for at := name; at != dep; at = parent[at] {
					cycle = append(cycle, at)
				}
				cycle = append(cycle, dep)
				reverse(cycle)
				return true
			}
		}
		state[name] = done
		return false
	}

	for _, name := range order {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

package engine

import (
	"testing"

	"github.com/korora-tech/dhd/pkg/modules"
)

func TestGraph_TopoOrder(t *testing.T) {
	g := NewGraph()
	a := g.AddNode("m", "a", modules.KindDirectory, nil)
	b := g.AddNode("m", "b", modules.KindDirectory, nil)
	c := g.AddNode("m", "c", modules.KindDirectory, nil)
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(a, c)

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	pos := make(map[int]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[a] > pos[b] || pos[b] > pos[c] || pos[a] > pos[c] {
		t.Errorf("Order violates edges: %v", order)
	}
}

func TestGraph_TopoOrderDetectsCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode("m", "a", modules.KindDirectory, nil)
	b := g.AddNode("m", "b", modules.KindDirectory, nil)
	g.AddEdge(a, b)
	g.AddEdge(b, a)

	if _, err := g.TopoOrder(); err == nil {
		t.Error("Expected an error for a cyclic graph")
	}
}

func TestModuleCycle_FindsCycle(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": nil,
	}
	cycle := moduleCycle(deps, []string{"d", "a", "b", "c"})
	if cycle == nil {
		t.Fatal("Expected a cycle")
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("Expected a closed cycle, got %v", cycle)
	}
}

func TestModuleCycle_NoneInDAG(t *testing.T) {
	deps := map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	}
	if cycle := moduleCycle(deps, []string{"a", "b", "c"}); cycle != nil {
		t.Errorf("Expected no cycle, got %v", cycle)
	}
}

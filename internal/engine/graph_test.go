package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Flowline/internal/domain"
)

func mustFlow(t *testing.T, doc string) *domain.Flow {
	t.Helper()
	f, err := domain.ParseFlow([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFlow: %v", err)
	}
	return f
}

const loopFlowDoc = `{
  "id": "f1",
  "nodes": [
    {"id": "start", "type": "log", "data": {"message": "start"}},
    {"id": "loop1", "type": "loop", "data": {"loopType": "forEach", "arrayPath": "vars.items"}},
    {"id": "body1", "type": "log", "data": {"message": "{{loop.item}}"}},
    {"id": "body2", "type": "setVariable", "data": {"variableKey": "last", "value": "{{loop.item}}"}},
    {"id": "done", "type": "log", "data": {"message": "done"}}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "loop1"},
    {"id": "e2", "source": "loop1", "sourceHandle": "body", "target": "body1"},
    {"id": "e3", "source": "body1", "target": "body2"},
    {"id": "e4", "source": "body2", "target": "loop1"},
    {"id": "e5", "source": "loop1", "sourceHandle": "complete", "target": "done"}
  ]
}`

func TestBuildGraph_Linear(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [
	    {"id": "a", "type": "log", "data": {"message": "a"}},
	    {"id": "b", "type": "log", "data": {"message": "b"}},
	    {"id": "c", "type": "log", "data": {"message": "c"}}
	  ],
	  "edges": [
	    {"id": "e1", "source": "a", "target": "b"},
	    {"id": "e2", "source": "b", "target": "c"}
	  ]
	}`)

	g, err := BuildGraph(f)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size() = %d, want 3", g.Size())
	}

	entries := g.Entries()
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("entries = %v, want [a]", entries)
	}

	if next, ok := g.Next("a", ""); !ok || next != "b" {
		t.Errorf("Next(a) = %q, %v", next, ok)
	}
	if _, ok := g.Next("c", ""); ok {
		t.Error("c should have no next node")
	}
}

func TestBuildGraph_EntriesInNodeOrder(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [
	    {"id": "z", "type": "log", "data": {"message": "z"}},
	    {"id": "m", "type": "log", "data": {"message": "m"}},
	    {"id": "a", "type": "log", "data": {"message": "a"}}
	  ],
	  "edges": [{"id": "e1", "source": "z", "target": "a"}]
	}`)

	g, err := BuildGraph(f)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	entries := g.Entries()
	if len(entries) != 2 || entries[0].ID != "z" || entries[1].ID != "m" {
		t.Errorf("entries order wrong: %v", entries)
	}
}

func TestBuildGraph_HandleSelection(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [
	    {"id": "if1", "type": "ifElse", "data": {"comparison": {"left": "1", "operator": "==", "right": "1"}}},
	    {"id": "yes", "type": "log", "data": {"message": "yes"}},
	    {"id": "yes2", "type": "log", "data": {"message": "yes2"}},
	    {"id": "no", "type": "log", "data": {"message": "no"}}
	  ],
	  "edges": [
	    {"id": "e1", "source": "if1", "sourceHandle": "false", "target": "no"},
	    {"id": "e2", "source": "if1", "sourceHandle": "true", "target": "yes"},
	    {"id": "e3", "source": "if1", "sourceHandle": "true", "target": "yes2"}
	  ]
	}`)

	g, err := BuildGraph(f)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	// Первое объявленное ребро с handle побеждает
	if next, _ := g.Next("if1", "true"); next != "yes" {
		t.Errorf("Next(true) = %q, want yes", next)
	}
	if next, _ := g.Next("if1", "false"); next != "no" {
		t.Errorf("Next(false) = %q, want no", next)
	}
	// Пустой handle — первое ребро вообще
	if next, _ := g.Next("if1", ""); next != "no" {
		t.Errorf("Next(\"\") = %q, want no", next)
	}
}

func TestBuildGraph_LoopBody(t *testing.T) {
	g, err := BuildGraph(mustFlow(t, loopFlowDoc))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	// Обратное ребро body2 → loop1 не учитывается: entry только start
	entries := g.Entries()
	if len(entries) != 1 || entries[0].ID != "start" {
		t.Errorf("entries = %v, want [start]", entries)
	}

	if !g.InBody("loop1", "body1") || !g.InBody("loop1", "body2") {
		t.Error("body1 and body2 must be in loop1 body")
	}
	if g.InBody("loop1", "done") || g.InBody("loop1", "loop1") {
		t.Error("done and loop1 must not be in loop1 body")
	}
	if g.BodySize("loop1") != 2 {
		t.Errorf("BodySize = %d, want 2", g.BodySize("loop1"))
	}
}

func TestBuildGraph_LoopAsEntry(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [
	    {"id": "loop1", "type": "loop", "data": {"loopType": "while", "conditionExpression": "false"}},
	    {"id": "b", "type": "log", "data": {"message": "b"}}
	  ],
	  "edges": [
	    {"id": "e1", "source": "loop1", "sourceHandle": "body", "target": "b"},
	    {"id": "e2", "source": "b", "target": "loop1"}
	  ]
	}`)

	g, err := BuildGraph(f)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	entries := g.Entries()
	if len(entries) != 1 || entries[0].ID != "loop1" {
		t.Errorf("entries = %v, want [loop1]", entries)
	}
}

func TestBuildGraph_CycleOutsideLoop(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [
	    {"id": "s", "type": "log", "data": {"message": "s"}},
	    {"id": "a", "type": "log", "data": {"message": "a"}},
	    {"id": "b", "type": "log", "data": {"message": "b"}}
	  ],
	  "edges": [
	    {"id": "e0", "source": "s", "target": "a"},
	    {"id": "e1", "source": "a", "target": "b"},
	    {"id": "e2", "source": "b", "target": "a"}
	  ]
	}`)

	_, err := BuildGraph(f)
	if !errors.Is(err, ErrCyclicGraph) {
		t.Errorf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestBuildGraph_DanglingEdge(t *testing.T) {
	f := mustFlow(t, `{
	  "id": "f",
	  "nodes": [{"id": "a", "type": "log", "data": {"message": "a"}}],
	  "edges": [{"id": "e1", "source": "a", "target": "ghost"}]
	}`)

	_, err := BuildGraph(f)
	if !errors.Is(err, ErrDanglingEdge) {
		t.Errorf("expected ErrDanglingEdge, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.EdgeID != "e1" {
		t.Errorf("expected ValidationError for edge e1, got %v", err)
	}
}

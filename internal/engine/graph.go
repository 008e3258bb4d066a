package engine

import (
	"fmt"

	"github.com/shaiso/Flowline/internal/domain"
)

// Graph — индексированное представление flow для обхода.
//
// Рёбра хранятся в порядке объявления: при нескольких рёбрах
// с одним handle побеждает первое.
type Graph struct {
	nodes map[string]*domain.Node
	order []*domain.Node

	// out — исходящие рёбра узла (nodeID → рёбра).
	out map[string][]domain.Edge

	// inDegree — входящие рёбра без обратных рёбер тел loop.
	inDegree map[string]int

	// bodies — тело каждого loop (loopID → множество ID узлов).
	bodies map[string]map[string]bool

	entries []*domain.Node
}

// BuildGraph строит граф и проверяет его структуру:
// висячие рёбра, циклы вне тел loop, наличие entry-узлов.
//
// Ожидается, что ID узлов уникальны (проверяется в Validate).
func BuildGraph(flow *domain.Flow) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*domain.Node, len(flow.Nodes)),
		order:    make([]*domain.Node, 0, len(flow.Nodes)),
		out:      make(map[string][]domain.Edge),
		inDegree: make(map[string]int, len(flow.Nodes)),
		bodies:   make(map[string]map[string]bool),
	}

	// Первый проход: узлы в порядке объявления
	for i := range flow.Nodes {
		n := &flow.Nodes[i]
		g.nodes[n.ID] = n
		g.order = append(g.order, n)
		g.inDegree[n.ID] = 0
	}

	// Второй проход: рёбра
	for _, e := range flow.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, newEdgeError(e.ID, "source",
				fmt.Sprintf("source %q does not exist", e.Source), ErrDanglingEdge)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, newEdgeError(e.ID, "target",
				fmt.Sprintf("target %q does not exist", e.Target), ErrDanglingEdge)
		}
		g.out[e.Source] = append(g.out[e.Source], e)
	}

	// Тела loop: всё, что достижимо по ребру body до возврата в loop
	for _, n := range g.order {
		if n.Kind == domain.KindLoop {
			g.bodies[n.ID] = g.collectBody(n.ID)
		}
	}

	// Входящие степени без обратных рёбер в loop
	for _, e := range flow.Edges {
		if g.isBackEdge(e) {
			continue
		}
		g.inDegree[e.Target]++
	}

	if err := g.checkCycles(flow.Edges); err != nil {
		return nil, err
	}

	for _, n := range g.order {
		if g.inDegree[n.ID] == 0 {
			g.entries = append(g.entries, n)
		}
	}
	if len(g.entries) == 0 && len(g.order) > 0 {
		return nil, &ValidationError{Message: "every node has an incoming edge", Err: ErrNoEntryNode}
	}

	return g, nil
}

// collectBody обходит в ширину от целей рёбер body, не заходя в сам loop.
func (g *Graph) collectBody(loopID string) map[string]bool {
	body := make(map[string]bool)
	var queue []string
	for _, e := range g.out[loopID] {
		if e.SourceHandle == domain.HandleBody && e.Target != loopID {
			queue = append(queue, e.Target)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if body[id] {
			continue
		}
		body[id] = true
		for _, e := range g.out[id] {
			if e.Target != loopID && !body[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}
	return body
}

// isBackEdge — ребро из тела loop обратно в этот loop.
func (g *Graph) isBackEdge(e domain.Edge) bool {
	body, ok := g.bodies[e.Target]
	return ok && (body[e.Source] || e.Source == e.Target)
}

// checkCycles выполняет алгоритм Кана без рёбер body.
// Если обработаны не все узлы — цикл вне тела loop.
func (g *Graph) checkCycles(edges []domain.Edge) error {
	inDegree := make(map[string]int, len(g.order))
	adj := make(map[string][]string)
	for _, n := range g.order {
		inDegree[n.ID] = 0
	}
	for _, e := range edges {
		if g.isLoopBodyEdge(e) {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		inDegree[e.Target]++
	}

	// Очередь узлов с inDegree = 0
	var queue []string
	for _, n := range g.order {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(g.order) {
		var stuck []string
		for _, n := range g.order {
			if inDegree[n.ID] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return &ValidationError{
			Message: fmt.Sprintf("cycle outside loop body through %v", stuck),
			Err:     ErrCyclicGraph,
		}
	}
	return nil
}

func (g *Graph) isLoopBodyEdge(e domain.Edge) bool {
	n, ok := g.nodes[e.Source]
	return ok && n.Kind == domain.KindLoop && e.SourceHandle == domain.HandleBody
}

// Entries возвращает узлы без входящих рёбер в порядке объявления.
func (g *Graph) Entries() []*domain.Node {
	return g.entries
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) (*domain.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes возвращает узлы в порядке объявления.
func (g *Graph) Nodes() []*domain.Node {
	return g.order
}

// Outgoing возвращает исходящие рёбра узла.
func (g *Graph) Outgoing(id string) []domain.Edge {
	return g.out[id]
}

// Next выбирает следующий узел по handle.
//
// Пустой handle — первое исходящее ребро независимо от его handle.
// Иначе — первое ребро с совпадающим sourceHandle.
func (g *Graph) Next(id, handle string) (string, bool) {
	for _, e := range g.out[id] {
		if handle == "" || e.SourceHandle == handle {
			return e.Target, true
		}
	}
	return "", false
}

// InBody проверяет, входит ли узел в тело loop.
func (g *Graph) InBody(loopID, nodeID string) bool {
	return g.bodies[loopID][nodeID]
}

// BodySize возвращает количество узлов в теле loop.
func (g *Graph) BodySize(loopID string) int {
	return len(g.bodies[loopID])
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.order)
}

package runner

import (
	"context"
	"fmt"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/steps"
)

// TestNode выполняет один узел вне графа ("Test This Node").
//
// Хранилище заполняется из upstream — снимка результатов ранее
// протестированных узлов. Рёбра не обходятся, тело loop не выполняется.
// Побочные эффекты узла (HTTP-запрос) происходят как обычно.
//
// Outcome возвращается и вместе с ошибкой узла, если исполнитель его вернул.
func (r *Runner) TestNode(ctx context.Context, node *domain.Node, upstream map[string]any) (*steps.Outcome, error) {
	// 1. Валидация конфигурации
	if err := engine.ValidateNode(node); err != nil {
		return nil, err
	}

	step, err := r.registry.Get(node.Kind)
	if err != nil {
		return nil, err
	}

	// 2. Хранилище из upstream
	store, err := engine.NewStoreFrom(upstream)
	if err != nil {
		return nil, fmt.Errorf("load upstream: %w", err)
	}

	// 3. Выполнение
	out, err := step.Execute(ctx, &steps.Request{
		Node:      node,
		Vars:      store,
		Evaluator: r.evaluator,
		Now:       r.now,
	})
	if out != nil {
		now := r.now()
		for i := range out.Log {
			out.Log[i].Timestamp = now
		}
	}
	if err != nil {
		return out, engine.NewNodeError(node, err)
	}
	return out, nil
}

// TestFlowNode находит узел во flow и выполняет его через TestNode.
func (r *Runner) TestFlowNode(ctx context.Context, flow *domain.Flow, nodeID string, upstream map[string]any) (*steps.Outcome, error) {
	node, ok := flow.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return r.TestNode(ctx, node, upstream)
}

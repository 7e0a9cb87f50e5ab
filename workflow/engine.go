package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// Dispatcher routes one event to a team. The solution orchestrator
// satisfies it.
type Dispatcher interface {
	HandleEvent(ctx context.Context, team string, ev types.Event) (types.Result, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, team string, ev types.Event) (types.Result, error)

func (f DispatcherFunc) HandleEvent(ctx context.Context, team string, ev types.Event) (types.Result, error) {
	return f(ctx, team, ev)
}

// NodeResult records one dispatched node.
type NodeResult struct {
	Node   string       `json:"node"`
	Team   string       `json:"team"`
	Result types.Result `json:"result"`
}

// Result is the outcome of a run. Skipped lists nodes that never became
// ready, in declaration order.
type Result struct {
	Status  types.Status `json:"status"`
	Results []NodeResult `json:"results"`
	Skipped []string     `json:"skipped,omitempty"`
}

// Engine executes a validated graph one node at a time in topological
// order. An Engine holds no run state and may be run repeatedly.
type Engine struct {
	def      *Definition
	index    map[string]int
	outgoing [][]int
	inDegree []int
	entry    []int
	strict   bool
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict rejects graphs containing nodes that can never become ready.
func WithStrict() Option {
	return func(e *Engine) { e.strict = true }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine validates def and precomputes in-degrees and the entry set.
func NewEngine(def *Definition, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		def:      def,
		index:    make(map[string]int, len(def.Nodes)),
		outgoing: make([][]int, len(def.Nodes)),
		inDegree: make([]int, len(def.Nodes)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"), zap.String("workflow", def.Name))

	for i, n := range def.Nodes {
		e.index[n.ID] = i
	}
	for _, edge := range def.Edges {
		src, dst := e.index[edge.Source], e.index[edge.Target]
		e.outgoing[src] = append(e.outgoing[src], dst)
		e.inDegree[dst]++
	}
	for i, d := range e.inDegree {
		if d == 0 {
			e.entry = append(e.entry, i)
		}
	}
	if len(e.entry) == 0 {
		return nil, ErrNoEntryPoint
	}

	if e.strict {
		if unreachable := e.unreachable(); len(unreachable) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(unreachable, ", "))
		}
	}
	return e, nil
}

// Definition returns the graph being executed.
func (e *Engine) Definition() *Definition { return e.def }

// Order returns node ids in the order Run visits them.
func (e *Engine) Order() []string {
	order, _ := e.walk(func(int) error { return nil })
	ids := make([]string, len(order))
	for i, idx := range order {
		ids[i] = e.def.Nodes[idx].ID
	}
	return ids
}

// Run visits ready nodes FIFO, dispatching the ones that carry a team and
// event. A dispatch error aborts the run. ctx is checked between nodes.
func (e *Engine) Run(ctx context.Context, d Dispatcher) (Result, error) {
	res := Result{Status: types.StatusComplete, Results: []NodeResult{}}

	visited, err := e.walk(func(idx int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		node := e.def.Nodes[idx]
		team, ev, ok := dispatchTarget(node)
		if !ok {
			e.logger.Debug("node has no dispatch target", zap.String("node", node.ID))
			return nil
		}
		out, err := d.HandleEvent(ctx, team, ev)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
		res.Results = append(res.Results, NodeResult{Node: node.ID, Team: team, Result: out})
		return nil
	})
	if err != nil {
		return res, err
	}

	if len(visited) < len(e.def.Nodes) {
		seen := make([]bool, len(e.def.Nodes))
		for _, idx := range visited {
			seen[idx] = true
		}
		for i, n := range e.def.Nodes {
			if !seen[i] {
				res.Skipped = append(res.Skipped, n.ID)
			}
		}
		e.logger.Warn("workflow finished with unreachable nodes", zap.Strings("skipped", res.Skipped))
	}
	return res, nil
}

// walk 执行 Kahn 算法：就绪队列先进先出，visit 返回错误即停止
func (e *Engine) walk(visit func(idx int) error) ([]int, error) {
	remaining := make([]int, len(e.inDegree))
	copy(remaining, e.inDegree)

	queue := make([]int, len(e.entry), len(e.def.Nodes))
	copy(queue, e.entry)
	order := make([]int, 0, len(e.def.Nodes))

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		if err := visit(idx); err != nil {
			return order, err
		}
		order = append(order, idx)

		for _, next := range e.outgoing[idx] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, nil
}

func (e *Engine) unreachable() []string {
	order, _ := e.walk(func(int) error { return nil })
	seen := make([]bool, len(e.def.Nodes))
	for _, idx := range order {
		seen[idx] = true
	}
	var ids []string
	for i, n := range e.def.Nodes {
		if !seen[i] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// dispatchTarget extracts {team, event} from a node config. event may be an
// object {"type", "payload"} or a bare event type string.
func dispatchTarget(n Node) (string, types.Event, bool) {
	team, _ := n.Config["team"].(string)
	if team == "" {
		return "", types.Event{}, false
	}
	switch ev := n.Config["event"].(type) {
	case string:
		if ev == "" {
			return "", types.Event{}, false
		}
		return team, types.NewEvent(ev, nil), true
	case map[string]any:
		typ, _ := ev["type"].(string)
		payload, _ := ev["payload"].(map[string]any)
		return team, types.NewEvent(typ, payload), true
	default:
		return "", types.Event{}, false
	}
}

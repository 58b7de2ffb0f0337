package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Applier provisions a resolved descriptor through the node's provider and
// returns the live object.
type Applier interface {
	Apply(ctx context.Context, node *Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
}

// ReadinessChecker evaluates a node's ReadyWhen predicates.
type ReadinessChecker interface {
	Check(ctx context.Context, node *Node, live *unstructured.Unstructured) (bool, error)
}

// Ledger is the record of earlier runs.
type Ledger interface {
	// Lookup returns the recorded live object if node was last provisioned
	// with exactly this resolved descriptor.
	Lookup(node *Node, resolved *unstructured.Unstructured) (*unstructured.Unstructured, bool)
	Record(node *Node, resolved, live *unstructured.Unstructured) error
}

// ExecutorConfig bounds concurrency and readiness polling. Zero values
// take the defaults.
type ExecutorConfig struct {
	MaxConcurrency int
	// ReadinessTimeout applies unless a predicate asks for longer.
	ReadinessTimeout time.Duration
	// Polling starts at ReadinessPollInterval and grows by half each
	// attempt up to ReadinessPollMax.
	ReadinessPollInterval time.Duration
	ReadinessPollMax      time.Duration
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrency:        10,
		ReadinessTimeout:      5 * time.Minute,
		ReadinessPollInterval: time.Second,
		ReadinessPollMax:      30 * time.Second,
	}
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	def := DefaultExecutorConfig()
	pick := func(v, d time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return d
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	c.ReadinessTimeout = pick(c.ReadinessTimeout, def.ReadinessTimeout)
	c.ReadinessPollInterval = pick(c.ReadinessPollInterval, def.ReadinessPollInterval)
	c.ReadinessPollMax = pick(c.ReadinessPollMax, def.ReadinessPollMax)
	return c
}

// Executor provisions a DAG, starting each node as soon as all of its
// dependencies are ready. After the first failure no new node starts;
// nodes already in flight run to completion.
type Executor struct {
	config  ExecutorConfig
	applier Applier
	checker ReadinessChecker
	ledger  Ledger
}

// NewExecutor accepts a nil ledger, in which case every node is provisioned.
func NewExecutor(applier Applier, checker ReadinessChecker, ledger Ledger, config ExecutorConfig) *Executor {
	return &Executor{
		config:  config.withDefaults(),
		applier: applier,
		checker: checker,
		ledger:  ledger,
	}
}

type nodeDone struct {
	id  string
	err error
}

// Execute runs the DAG. The returned state is valid even when err is not
// nil and tells which nodes failed and which never started.
func (e *Executor) Execute(ctx context.Context, dag *DAG) (*ExecutionState, error) {
	if dag == nil {
		return nil, fmt.Errorf("DAG cannot be nil")
	}
	log := logf.FromContext(ctx)
	state := NewExecutionState(dag.GetOrder())

	workers := pool.New().WithMaxGoroutines(e.config.MaxConcurrency)
	done := make(chan nodeDone, dag.Size())
	started := make(map[string]bool, dag.Size())
	var failures []error

	for running := 0; ; running-- {
		if len(failures) == 0 && ctx.Err() == nil {
			for _, id := range runnable(dag, state, started) {
				started[id] = true
				running++
				workers.Go(func() {
					done <- nodeDone{id: id, err: e.provision(ctx, dag, state, id)}
				})
			}
		}
		if running == 0 {
			break
		}

		d := <-done
		if d.err != nil {
			log.Error(d.err, "node failed", "node", d.id)
			failures = append(failures, fmt.Errorf("node %s: %w", d.id, d.err))
		}
	}
	workers.Wait()
	state.MarkComplete()

	if len(failures) > 0 {
		return state, errors.Join(failures...)
	}
	return state, ctx.Err()
}

// runnable lists, in execution order, the pending nodes not yet started
// whose dependencies are all ready.
func runnable(dag *DAG, state *ExecutionState, started map[string]bool) []string {
	var ids []string
next:
	for _, id := range dag.GetOrder() {
		if s, _ := state.GetState(id); started[id] || s != NodeStatePending {
			continue
		}
		deps, _ := dag.GetDependencies(id)
		for _, dep := range deps {
			if s, _ := state.GetState(dep); s != NodeStateReady {
				continue next
			}
		}
		ids = append(ids, id)
	}
	return ids
}

// provision takes one node from Pending to Ready or Error.
func (e *Executor) provision(ctx context.Context, dag *DAG, state *ExecutionState, id string) (err error) {
	log := logf.FromContext(ctx).WithValues("node", id)
	defer func() {
		if err != nil {
			_ = state.SetError(id, err)
		}
	}()

	node, ok := dag.GetNode(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	resolved, err := state.Outputs().Resolve(&node.Object)
	if err != nil {
		return fmt.Errorf("resolving outputs: %w", err)
	}

	if e.ledger != nil && !node.ApplyPolicy.AlwaysApply {
		if live, same := e.ledger.Lookup(node, resolved); same {
			if err := state.Outputs().Record(id, live); err != nil {
				return err
			}
			log.V(1).Info("unchanged")
			return state.MarkUnchanged(id)
		}
	}

	if err := state.SetState(id, NodeStateApplying); err != nil {
		return err
	}
	log.Info("provisioning", "kind", node.Object.GetKind(), "name", node.Object.GetName())

	live, err := e.applier.Apply(ctx, node, resolved)
	switch {
	case err != nil:
		return fmt.Errorf("apply: %w", err)
	case live == nil:
		return fmt.Errorf("apply: provider returned no live object")
	}

	if len(node.ReadyWhen) > 0 {
		if err := state.SetState(id, NodeStateWaitingReady); err != nil {
			return err
		}
		if err := e.awaitReady(ctx, node, live); err != nil {
			return err
		}
	}

	if err := state.Outputs().Record(id, live); err != nil {
		return err
	}
	if e.ledger != nil {
		if err := e.ledger.Record(node, resolved, live); err != nil {
			return fmt.Errorf("recording state: %w", err)
		}
	}
	if err := state.SetState(id, NodeStateReady); err != nil {
		return err
	}
	log.Info("ready")
	return nil
}

// readinessTimeout is the configured timeout or the longest predicate
// timeout, whichever is larger.
func (e *Executor) readinessTimeout(node *Node) time.Duration {
	timeout := e.config.ReadinessTimeout
	for _, pred := range node.ReadyWhen {
		if d := time.Duration(pred.Timeout) * time.Second; d > timeout {
			timeout = d
		}
	}
	return timeout
}

func (e *Executor) awaitReady(ctx context.Context, node *Node, live *unstructured.Unstructured) error {
	timeout := e.readinessTimeout(node)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := e.config.ReadinessPollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("readiness timeout after %v", timeout)
		case <-timer.C:
		}

		ready, err := e.checker.Check(ctx, node, live)
		if err != nil {
			return fmt.Errorf("readiness: %w", err)
		}
		if ready {
			return nil
		}

		timer.Reset(delay)
		delay = min(delay+delay/2, e.config.ReadinessPollMax)
	}
}

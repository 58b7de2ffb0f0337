package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/authzed/controller-idioms/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/clustergraph/pkg/apply"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/metrics"
	"github.com/chazu/clustergraph/pkg/topology"
)

// Handler IDs for the run pipeline
const (
	LoadStateID      handler.Key = "load-state"
	DeclareGraphID   handler.Key = "declare-graph"
	PlanID           handler.Key = "plan"
	ExecuteDAGID     handler.Key = "execute-dag"
	PruneOrphanedID  handler.Key = "prune-orphaned"
	ResolveExportsID handler.Key = "resolve-exports"
	RecordStateID    handler.Key = "record-state"
	FinishID         handler.Key = "finish"
)

// Handlers contains all handlers of the run pipeline
type Handlers struct {
	store   inventory.Store
	applier graph.Applier
	checker graph.ReadinessChecker
	pruner  *apply.Pruner
	opts    Options
}

// NewHandlers creates a new handler collection
func NewHandlers(
	store inventory.Store,
	applier graph.Applier,
	checker graph.ReadinessChecker,
	pruner *apply.Pruner,
	opts Options,
) *Handlers {
	return &Handlers{
		store:   store,
		applier: applier,
		checker: checker,
		pruner:  pruner,
		opts:    opts,
	}
}

// LoadStateHandler loads the inventory of previous runs
type LoadStateHandler struct {
	store inventory.Store
	next  handler.Handler
}

func (h *LoadStateHandler) Handle(ctx context.Context) {
	inv, err := h.store.Load(ctx)
	if err != nil {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("failed to load state: %w", err))
		return
	}

	tracker := inventory.NewTrackerFromInventory(inv)
	log.FromContext(ctx).V(1).Info("state loaded", "items", tracker.Size(), "previousRun", inv.RunID)

	ctx = CtxTracker.WithValue(ctx, tracker)
	h.next.Handle(ctx)
}

// LoadState returns a handler builder for loading state
func (r *Handlers) LoadState() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&LoadStateHandler{
				store: r.store,
				next:  handler.Handlers(next).MustOne(),
			},
			LoadStateID,
		)
	}
}

// DeclareGraphHandler declares the topology from the configuration
type DeclareGraphHandler struct {
	next handler.Handler
}

func (h *DeclareGraphHandler) Handle(ctx context.Context) {
	logger := log.FromContext(ctx)
	run := CtxRun.MustValue(ctx)

	g, err := topology.Declare(CtxConfig.MustValue(ctx))
	if err != nil {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("failed to declare graph: %w", err))
		return
	}
	g.SetHash()
	run.Graph = g

	for _, v := range g.Violations {
		logger.Info("policy violation", "path", v.Path, "severity", v.Severity, "message", v.Message)
	}
	if g.HasErrors() {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("graph %s has policy errors", g.Metadata.Name))
		return
	}

	dag, err := graph.BuildDAG(g)
	if err != nil {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("invalid graph: %w", err))
		return
	}
	metrics.SetDAGNodes(g.Metadata.Name, dag.Size())

	logger.Info("graph declared",
		"graph", g.Metadata.Name,
		"hash", g.Metadata.RenderHash,
		"nodes", len(g.Nodes))

	ctx = CtxGraph.WithValue(ctx, g)
	ctx = CtxDAG.WithValue(ctx, dag)
	h.next.Handle(ctx)
}

// DeclareGraph returns a handler builder for declaring the graph
func (r *Handlers) DeclareGraph() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&DeclareGraphHandler{
				next: handler.Handlers(next).MustOne(),
			},
			DeclareGraphID,
		)
	}
}

// PlanHandler compares the graph against the inventory
type PlanHandler struct {
	next handler.Handler
}

func (h *PlanHandler) Handle(ctx context.Context) {
	tracker := CtxTracker.MustValue(ctx)
	g := CtxGraph.MustValue(ctx)

	plan := tracker.Plan(g)
	CtxRun.MustValue(ctx).Plan = plan

	counts := plan.Counts()
	for action, count := range counts {
		metrics.SetPlanActions(string(action), count)
	}
	log.FromContext(ctx).Info("plan computed",
		"create", counts[inventory.ActionCreate],
		"update", counts[inventory.ActionUpdate],
		"same", counts[inventory.ActionSame],
		"delete", counts[inventory.ActionDelete])

	ctx = CtxPlan.WithValue(ctx, plan)
	h.next.Handle(ctx)
}

// Plan returns a handler builder for planning
func (r *Handlers) Plan() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&PlanHandler{
				next: handler.Handlers(next).MustOne(),
			},
			PlanID,
		)
	}
}

// ExecuteDAGHandler provisions the graph. A failed execution does not stop
// the pipeline: the inventory is still recorded before the run fails.
type ExecuteDAGHandler struct {
	applier graph.Applier
	checker graph.ReadinessChecker
	config  graph.ExecutorConfig
	next    handler.Handler
}

func (h *ExecuteDAGHandler) Handle(ctx context.Context) {
	run := CtxRun.MustValue(ctx)
	tracker := CtxTracker.MustValue(ctx)
	g := CtxGraph.MustValue(ctx)
	dag := CtxDAG.MustValue(ctx)

	executor := graph.NewExecutor(h.applier, h.checker, tracker, h.config)

	start := time.Now()
	state, err := executor.Execute(ctx, dag)
	if state == nil {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("failed to execute graph: %w", err))
		return
	}
	run.State = state

	result := "success"
	if err != nil {
		result = "failure"
		run.err = fmt.Errorf("failed to execute graph: %w", err)
	}
	metrics.RecordDAGExecution(g.Metadata.Name, result, time.Since(start).Seconds())

	counts := make(map[string]int)
	for nodeID, s := range state.GetAllStates() {
		counts[string(s)]++
		if s == graph.NodeStateError {
			if node, ok := dag.GetNode(nodeID); ok {
				tracker.RecordFailed(node)
			}
		}
	}
	metrics.SetNodeStates(g.Metadata.Name, counts)

	summary := state.GetSummary()
	log.FromContext(ctx).Info("graph executed",
		"ready", summary.Ready,
		"unchanged", summary.Unchanged,
		"failed", summary.Error,
		"pending", summary.Pending)

	ctx = CtxExecutionState.WithValue(ctx, state)
	h.next.Handle(ctx)
}

// Execute returns a handler builder for executing the DAG
func (r *Handlers) Execute() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&ExecuteDAGHandler{
				applier: r.applier,
				checker: r.checker,
				config:  r.opts.Executor,
				next:    handler.Handlers(next).MustOne(),
			},
			ExecuteDAGID,
		)
	}
}

// PruneOrphanedHandler removes resources that are no longer declared
type PruneOrphanedHandler struct {
	pruner  *apply.Pruner
	enabled bool
	opts    apply.PruneOptions
	next    handler.Handler
}

func (h *PruneOrphanedHandler) Handle(ctx context.Context) {
	logger := log.FromContext(ctx)
	run := CtxRun.MustValue(ctx)

	switch {
	case !h.enabled || h.pruner == nil:
		logger.V(1).Info("pruning disabled")
	case run.err != nil:
		logger.Info("skipping prune after failed execution")
	default:
		result, err := h.pruner.Prune(ctx, CtxTracker.MustValue(ctx), CtxGraph.MustValue(ctx).NodeIDs(), h.opts)
		if err != nil {
			run.err = fmt.Errorf("failed to prune: %w", err)
			break
		}
		run.Pruned = result
		if err := result.Err(); err != nil {
			run.err = err
		}
		logger.Info("prune finished",
			"pruned", len(result.Pruned),
			"protected", len(result.Protected),
			"reported", len(result.Reported),
			"errors", len(result.Errors))
	}

	h.next.Handle(ctx)
}

// Prune returns a handler builder for pruning orphaned resources
func (r *Handlers) Prune() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&PruneOrphanedHandler{
				pruner:  r.pruner,
				enabled: r.opts.Prune,
				opts:    r.opts.PruneOptions,
				next:    handler.Handlers(next).MustOne(),
			},
			PruneOrphanedID,
		)
	}
}

// ResolveExportsHandler resolves the graph exports from the live objects.
// After a failed execution the exports of the previous run are kept.
type ResolveExportsHandler struct {
	next handler.Handler
}

func (h *ResolveExportsHandler) Handle(ctx context.Context) {
	run := CtxRun.MustValue(ctx)
	tracker := CtxTracker.MustValue(ctx)

	if run.err == nil {
		state := CtxExecutionState.MustValue(ctx)
		exports, err := resolveExports(CtxGraph.MustValue(ctx), state.Outputs())
		if err != nil {
			run.err = err
		} else {
			tracker.SetExports(exports)
		}
	}
	run.Exports = tracker.Exports()

	h.next.Handle(ctx)
}

// ResolveExports returns a handler builder for resolving exports
func (r *Handlers) ResolveExports() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&ResolveExportsHandler{
				next: handler.Handlers(next).MustOne(),
			},
			ResolveExportsID,
		)
	}
}

func resolveExports(g *graph.Graph, outputs *graph.OutputStore) (map[string]inventory.ExportValue, error) {
	exports := make(map[string]inventory.ExportValue, len(g.Exports))
	for _, e := range g.Exports {
		val, err := outputs.Value(e.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve export %s: %w", e.Name, err)
		}
		exports[e.Name] = inventory.ExportValue{Value: val, Secret: e.Output.IsSecret()}
	}
	return exports, nil
}

// RecordStateHandler persists the inventory and ends the run
type RecordStateHandler struct {
	store inventory.Store
}

func (h *RecordStateHandler) Handle(ctx context.Context) {
	run := CtxRun.MustValue(ctx)
	tracker := CtxTracker.MustValue(ctx)
	g := CtxGraph.MustValue(ctx)

	tracker.SetRun(g.Metadata.Name, run.ID, g.Metadata.RenderHash)
	recordManaged(tracker)

	if err := h.store.Save(ctx, tracker.GetInventory()); err != nil {
		CtxQueue.RequeueErr(ctx, fmt.Errorf("failed to record state: %w", err))
		return
	}
	log.FromContext(ctx).V(1).Info("state recorded", "items", tracker.Size())

	if run.err != nil {
		CtxQueue.RequeueErr(ctx, run.err)
		return
	}
	CtxQueue.Done(ctx)
}

// RecordState returns a handler builder for recording state
func (r *Handlers) RecordState() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&RecordStateHandler{
				store: r.store,
			},
			RecordStateID,
		)
	}
}

// recordManaged publishes the number of applied resources per kind
func recordManaged(tracker *inventory.Tracker) {
	counts := make(map[string]int)
	for _, item := range tracker.GetAll() {
		if item.Status == inventory.ItemStatusApplied {
			counts[item.GVK.Kind]++
		}
	}
	for kind, count := range counts {
		metrics.SetManagedResources(kind, count)
	}
}

// FinishHandler ends a run that provisions nothing
type FinishHandler struct{}

func (h *FinishHandler) Handle(ctx context.Context) {
	CtxQueue.Done(ctx)
}

// Finish returns a handler builder that ends the pipeline
func (r *Handlers) Finish() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(&FinishHandler{}, FinishID)
	}
}

package reconcile

import (
	"context"
	"time"

	"github.com/authzed/controller-idioms/handler"
	"github.com/authzed/controller-idioms/queue"
	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/clustergraph/pkg/apply"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/metrics"
)

// Commands recorded in run metrics
const (
	CommandPreview = "preview"
	CommandUp      = "up"
)

// Options configure the run pipeline
type Options struct {
	// Executor configures DAG execution
	Executor graph.ExecutorConfig

	// Prune deletes orphaned Kubernetes resources after a successful run
	Prune bool

	// PruneOptions configure pruning
	PruneOptions apply.PruneOptions
}

// DefaultOptions returns the default run options
func DefaultOptions() Options {
	return Options{
		Executor:     graph.DefaultExecutorConfig(),
		PruneOptions: apply.DefaultPruneOptions(),
	}
}

// Run holds the results of one pipeline run. Fields are filled as the
// pipeline progresses, so a failed run carries everything computed before
// the failure.
type Run struct {
	ID      string
	Command string

	Graph   *graph.Graph
	Plan    *inventory.Plan
	State   *graph.ExecutionState
	Pruned  *apply.PruneResult
	Exports map[string]inventory.ExportValue

	// err is the failure that RecordState persists before stopping
	err error
}

// Reconciler runs the topology against the providers
type Reconciler struct {
	handlers *Handlers
	preview  handler.Handler
	up       handler.Handler
}

// NewReconciler creates a handler-based reconciler
func NewReconciler(
	store inventory.Store,
	applier graph.Applier,
	checker graph.ReadinessChecker,
	pruner *apply.Pruner,
	opts Options,
) *Reconciler {
	handlers := NewHandlers(store, applier, checker, pruner, opts)

	preview := handler.Chain(
		handlers.LoadState(),
		handlers.DeclareGraph(),
		handlers.Plan(),
		handlers.Finish(),
	).Handler("preview")

	up := handler.Chain(
		handlers.LoadState(),
		handlers.DeclareGraph(),
		handlers.Plan(),
		handlers.Execute(),
		handlers.Prune(),
		handlers.ResolveExports(),
		handlers.RecordState(),
	).Handler("up")

	return &Reconciler{
		handlers: handlers,
		preview:  preview,
		up:       up,
	}
}

// Preview declares the graph and plans it against the stored inventory
// without provisioning anything
func (r *Reconciler) Preview(ctx context.Context, cfg *config.Config) (*Run, error) {
	return r.run(ctx, CommandPreview, cfg, r.preview)
}

// Up provisions the graph and records the resulting state
func (r *Reconciler) Up(ctx context.Context, cfg *config.Config) (*Run, error) {
	return r.run(ctx, CommandUp, cfg, r.up)
}

func (r *Reconciler) run(ctx context.Context, command string, cfg *config.Config, pipeline handler.Handler) (*Run, error) {
	start := time.Now()
	run := &Run{ID: uuid.NewString(), Command: command}

	logger := log.FromContext(ctx).WithValues("run", run.ID, "command", command)
	ctx = log.IntoContext(ctx, logger)
	logger.Info("starting run")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queueOps := queue.NewOperations(func() {}, func(time.Duration) {}, cancel)

	ctx = CtxQueue.WithValue(ctx, queueOps)
	ctx = CtxConfig.WithValue(ctx, cfg)
	ctx = CtxRun.WithValue(ctx, run)

	pipeline.Handle(ctx)

	err := queueOps.Error()
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RecordRun(command, result, time.Since(start).Seconds())
	logger.Info("run finished", "result", result, "duration", time.Since(start).Round(time.Millisecond))

	return run, err
}

package reconcile

import (
	"github.com/authzed/controller-idioms/queue"
	"github.com/authzed/controller-idioms/typedctx"

	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
)

// Context keys for the run pipeline
//
// These typed context keys provide type-safe access to values passed between
// handlers in the run pipeline.
var (
	// CtxQueue stops the pipeline, successfully or with an error
	CtxQueue = queue.NewQueueOperationsCtx()

	// CtxRun collects the results of the run
	CtxRun = typedctx.NewKey[*Run]()

	// CtxConfig is the loaded configuration
	CtxConfig = typedctx.NewKey[*config.Config]()

	// CtxTracker is the inventory loaded from the state store
	CtxTracker = typedctx.NewKey[*inventory.Tracker]()

	// CtxGraph is the declared topology graph
	CtxGraph = typedctx.NewKey[*graph.Graph]()

	// CtxDAG is the DAG built from the graph
	CtxDAG = typedctx.NewKey[*graph.DAG]()

	// CtxPlan is the plan computed against the inventory
	CtxPlan = typedctx.NewKey[*inventory.Plan]()

	// CtxExecutionState tracks DAG execution
	CtxExecutionState = typedctx.NewKey[*graph.ExecutionState]()
)

package apply

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/clustergraph/pkg/graph"
)

// ClientSource resolves the Kubernetes client of an access context node.
type ClientSource interface {
	Client(providerID string) (client.Client, error)
}

// Applier writes Kubernetes descriptors through the client of the access
// context they are scoped to.
type Applier struct {
	clients ClientSource
	dryRun  bool
}

func NewApplier(clients ClientSource) *Applier {
	return &Applier{clients: clients}
}

// WithDryRun returns a copy that sends every write with dryRun=All.
func (a *Applier) WithDryRun(dryRun bool) *Applier {
	cp := *a
	cp.dryRun = dryRun
	return &cp
}

// write is one descriptor on its way to the API server.
type write struct {
	c      client.Client
	obj    *unstructured.Unstructured
	policy graph.ApplyPolicy
	dryRun bool
	log    logr.Logger
}

// Apply provisions obj per the node's ApplyPolicy. obj is not modified;
// the returned copy carries what the API server stored.
func (a *Applier) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, fmt.Errorf("node %s: nil object", node.ID)
	}
	policy := node.ApplyPolicy
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}
	c, err := a.clients.Client(node.Provider)
	if err != nil {
		return nil, err
	}

	w := &write{c: c, obj: obj.DeepCopy(), policy: policy, dryRun: a.dryRun}
	w.log = log.FromContext(ctx).WithValues(
		"node", node.ID,
		"kind", obj.GetKind(),
		"object", w.key(),
		"mode", policy.Mode,
	)

	switch policy.Mode {
	case graph.ApplyModeCreate:
		err = w.create(ctx)
	case graph.ApplyModeAdopt:
		err = w.adopt(ctx)
	default:
		err = w.serverSideApply(ctx, policy.ConflictPolicy == graph.ConflictPolicyForce)
	}
	if err != nil {
		w.log.Error(err, "apply failed")
		return nil, err
	}

	w.log.V(1).Info("applied")
	return w.obj, nil
}

func (w *write) key() string {
	return client.ObjectKeyFromObject(w.obj).String()
}

func (w *write) patchOptions(force bool) []client.PatchOption {
	opts := []client.PatchOption{client.FieldOwner(w.policy.FieldManager)}
	if force {
		opts = append(opts, client.ForceOwnership)
	}
	if w.dryRun {
		opts = append(opts, client.DryRunAll)
	}
	return opts
}

func (w *write) serverSideApply(ctx context.Context, force bool) error {
	err := w.c.Patch(ctx, w.obj, client.Apply, w.patchOptions(force)...)
	switch {
	case err == nil:
		return nil
	case apierrors.IsConflict(err):
		return &ConflictError{Resource: w.key(), FieldManager: w.policy.FieldManager, Err: err}
	default:
		return fmt.Errorf("apply %s: %w", w.key(), err)
	}
}

// create leaves an existing object as it is and reads it back.
func (w *write) create(ctx context.Context) error {
	var opts []client.CreateOption
	if w.dryRun {
		opts = append(opts, client.DryRunAll)
	}

	err := w.c.Create(ctx, w.obj, opts...)
	if apierrors.IsAlreadyExists(err) {
		w.log.V(1).Info("already exists, keeping it")
		err = w.c.Get(ctx, client.ObjectKeyFromObject(w.obj), w.obj)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", w.key(), err)
	}
	return nil
}

// adopt force-applies over an existing object, or creates it when absent.
func (w *write) adopt(ctx context.Context) error {
	current := &unstructured.Unstructured{}
	current.SetGroupVersionKind(w.obj.GroupVersionKind())

	err := w.c.Get(ctx, client.ObjectKeyFromObject(w.obj), current)
	if apierrors.IsNotFound(err) {
		return w.create(ctx)
	}
	if err != nil {
		return fmt.Errorf("look up %s: %w", w.key(), err)
	}

	w.log.V(1).Info("adopting", "uid", current.GetUID())
	if err := w.c.Patch(ctx, w.obj, client.Apply, w.patchOptions(true)...); err != nil {
		return fmt.Errorf("adopt %s: %w", w.key(), err)
	}
	return nil
}

// ConflictError is returned when another field manager owns fields the
// descriptor sets and the node's conflict policy is Error.
type ConflictError struct {
	Resource     string
	FieldManager string
	Err          error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict applying as %s: %v", e.Resource, e.FieldManager, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

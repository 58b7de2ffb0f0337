package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/metrics"
)

type DeletionPolicy string

const (
	DeletionPolicyDelete DeletionPolicy = "Delete"
	// DeletionPolicyOrphan forgets the object but leaves it in the cluster.
	DeletionPolicyOrphan DeletionPolicy = "Orphan"
)

const (
	// ProtectionKey, set to a true value as a label or annotation, keeps
	// an object from ever being pruned.
	ProtectionKey = "clustergraph.io/prune-protection"

	// GracePeriodAnnotation overrides PruneOptions.GracePeriod per object.
	GracePeriodAnnotation = "clustergraph.io/prune-grace-period"

	DefaultGracePeriod = 30 * time.Second
)

type PruneOptions struct {
	DeletionPolicy DeletionPolicy
	// GracePeriod is the minimum object age before it may be deleted.
	GracePeriod time.Duration
	// DryRun reports what would be deleted without deleting it.
	DryRun            bool
	PropagationPolicy *metav1.DeletionPropagation
}

func DefaultPruneOptions() PruneOptions {
	background := metav1.DeletePropagationBackground
	return PruneOptions{
		DeletionPolicy:    DeletionPolicyDelete,
		GracePeriod:       DefaultGracePeriod,
		PropagationPolicy: &background,
	}
}

// PruneResult sorts every orphan by what happened to it.
type PruneResult struct {
	Pruned    []PrunedResource
	Protected []PrunedResource
	Orphaned  []PrunedResource
	// Reported lists cloud resources no longer declared. They are never
	// deleted and stay in the inventory.
	Reported []PrunedResource
	Errors   []PruneError
}

type PrunedResource struct {
	ID        string
	GVK       schema.GroupVersionKind
	Namespace string
	Name      string
}

type PruneError struct {
	Resource PrunedResource
	Error    error
}

// Err joins all prune errors, or returns nil.
func (r *PruneResult) Err() error {
	var errs []error
	for _, e := range r.Errors {
		errs = append(errs, fmt.Errorf("prune %s: %w", e.Resource.ID, e.Error))
	}
	return errors.Join(errs...)
}

// Pruner removes objects recorded by an earlier run that the current
// topology no longer declares.
type Pruner struct {
	clients ClientSource
}

func NewPruner(clients ClientSource) *Pruner {
	return &Pruner{clients: clients}
}

// outcome of one orphan
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeGone
	outcomeReported
	outcomeOrphaned
	outcomeProtected
	outcomePruned
)

// Prune handles every inventory item whose ID is not in current.
// Per-item failures are collected in the result; the returned error is
// reserved for failures of the whole pass.
func (p *Pruner) Prune(ctx context.Context, tracker *inventory.Tracker, current map[string]bool, opts PruneOptions) (*PruneResult, error) {
	logger := log.FromContext(ctx)
	result := &PruneResult{}

	orphans := tracker.FindOrphaned(current)
	if len(orphans) == 0 {
		logger.V(1).Info("nothing to prune")
		return result, nil
	}
	logger.Info("pruning orphans", "count", len(orphans))

	for _, item := range orphans {
		res := PrunedResource{ID: item.ID, GVK: item.GVK, Namespace: item.Namespace, Name: item.Name}
		itemLog := logger.WithValues("id", item.ID, "kind", item.GVK.Kind)

		out, err := p.pruneItem(log.IntoContext(ctx, itemLog), item, opts)
		if err != nil {
			metrics.RecordPrune("failure", item.GVK.Kind)
			result.Errors = append(result.Errors, PruneError{Resource: res, Error: err})
			continue
		}

		switch out {
		case outcomeReported:
			itemLog.Info("cloud resource no longer declared, remove it manually")
			metrics.RecordPrune("reported", item.GVK.Kind)
			result.Reported = append(result.Reported, res)
		case outcomeOrphaned:
			tracker.Remove(item.ID)
			result.Orphaned = append(result.Orphaned, res)
		case outcomeGone:
			tracker.Remove(item.ID)
		case outcomeProtected:
			metrics.RecordPrune("protected", item.GVK.Kind)
			result.Protected = append(result.Protected, res)
		case outcomePruned:
			result.Pruned = append(result.Pruned, res)
			if !opts.DryRun {
				metrics.RecordPrune("deleted", item.GVK.Kind)
				tracker.RecordPruned(item.ID)
			}
		}
	}
	return result, nil
}

func (p *Pruner) pruneItem(ctx context.Context, item inventory.InventoryItem, opts PruneOptions) (outcome, error) {
	logger := log.FromContext(ctx)

	if item.Provider == "" {
		return outcomeReported, nil
	}
	if opts.DeletionPolicy == DeletionPolicyOrphan {
		logger.Info("orphaning")
		return outcomeOrphaned, nil
	}

	c, err := p.clients.Client(item.Provider)
	if err != nil {
		return outcomeSkipped, err
	}

	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(item.GVK)
	err = c.Get(ctx, client.ObjectKey{Namespace: item.Namespace, Name: item.Name}, obj)
	if apierrors.IsNotFound(err) {
		logger.V(1).Info("already deleted")
		return outcomeGone, nil
	}
	if err != nil {
		return outcomeSkipped, fmt.Errorf("get: %w", err)
	}

	if isProtected(obj) {
		logger.Info("protected from pruning")
		return outcomeProtected, nil
	}
	if !gracePeriodExpired(obj, opts.GracePeriod) {
		logger.V(1).Info("within grace period")
		return outcomeSkipped, nil
	}
	if opts.DryRun {
		logger.Info("would prune")
		return outcomePruned, nil
	}

	var delOpts []client.DeleteOption
	if opts.PropagationPolicy != nil {
		delOpts = append(delOpts, client.PropagationPolicy(*opts.PropagationPolicy))
	}
	if err := c.Delete(ctx, obj, delOpts...); client.IgnoreNotFound(err) != nil {
		return outcomeSkipped, fmt.Errorf("delete: %w", err)
	}
	logger.Info("pruned")
	return outcomePruned, nil
}

func isProtected(obj *unstructured.Unstructured) bool {
	for _, m := range []map[string]string{obj.GetLabels(), obj.GetAnnotations()} {
		switch m[ProtectionKey] {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// gracePeriodExpired uses the creation timestamp as the orphaning time.
// Objects without one are always expired.
func gracePeriodExpired(obj *unstructured.Unstructured, grace time.Duration) bool {
	if v, ok := obj.GetAnnotations()[GracePeriodAnnotation]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			grace = d
		}
	}
	created := obj.GetCreationTimestamp()
	return created.IsZero() || time.Since(created.Time) > grace
}

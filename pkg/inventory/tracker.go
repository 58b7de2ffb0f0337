package inventory

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/chazu/clustergraph/pkg/graph"
)

// InventoryItem is what a run remembers about one node.
type InventoryItem struct {
	ID        string                  `json:"id"`
	GVK       schema.GroupVersionKind `json:"gvk"`
	Namespace string                  `json:"namespace,omitempty"`
	Name      string                  `json:"name"`
	// Provider is the access context node; empty for cloud resources.
	Provider string `json:"provider,omitempty"`

	// DeclaredHash covers the node as declared, references unresolved.
	DeclaredHash string `json:"declaredHash"`
	// ResolvedHash covers the descriptor actually provisioned.
	ResolvedHash string `json:"resolvedHash"`

	Status ItemStatus `json:"status"`

	// Live is the object returned by the provider. It may hold secrets.
	Live *unstructured.Unstructured `json:"live,omitempty"`
}

type ItemStatus string

const (
	ItemStatusApplied ItemStatus = "Applied"
	// ItemStatusOrphaned is reported for items the graph no longer declares.
	ItemStatusOrphaned ItemStatus = "Orphaned"
	ItemStatusPruned   ItemStatus = "Pruned"
	ItemStatusFailed   ItemStatus = "Failed"
)

// ExportValue is a resolved graph export.
type ExportValue struct {
	Value  interface{} `json:"value"`
	Secret bool        `json:"secret,omitempty"`
}

// Inventory is the recorded state of one project, as persisted by a Store.
type Inventory struct {
	Project   string                   `json:"project,omitempty"`
	RunID     string                   `json:"runId,omitempty"`
	GraphHash string                   `json:"graphHash,omitempty"`
	Items     map[string]InventoryItem `json:"items"`
	Exports   map[string]ExportValue   `json:"exports,omitempty"`
}

func NewInventory() *Inventory {
	return &Inventory{
		Items:   map[string]InventoryItem{},
		Exports: map[string]ExportValue{},
	}
}

// clone deep-copies inv including live objects.
func (inv *Inventory) clone() *Inventory {
	cp := *inv
	cp.Items = make(map[string]InventoryItem, len(inv.Items))
	for id, item := range inv.Items {
		if item.Live != nil {
			item.Live = item.Live.DeepCopy()
		}
		cp.Items[id] = item
	}
	cp.Exports = maps.Clone(inv.Exports)
	if cp.Exports == nil {
		cp.Exports = map[string]ExportValue{}
	}
	return &cp
}

// Tracker is the in-memory inventory of a run. It serves as the
// executor's graph.Ledger: unchanged nodes are looked up, provisioned
// nodes are recorded.
type Tracker struct {
	mu  sync.RWMutex
	inv *Inventory
}

var _ graph.Ledger = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{inv: NewInventory()}
}

// NewTrackerFromInventory wraps inv, which may be nil or partially empty.
func NewTrackerFromInventory(inv *Inventory) *Tracker {
	if inv == nil {
		return NewTracker()
	}
	if inv.Items == nil {
		inv.Items = map[string]InventoryItem{}
	}
	if inv.Exports == nil {
		inv.Exports = map[string]ExportValue{}
	}
	return &Tracker{inv: inv}
}

func (t *Tracker) read(fn func(inv *Inventory)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.inv)
}

func (t *Tracker) write(fn func(inv *Inventory)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.inv)
}

// Lookup returns a copy of the recorded live object when node was applied
// last time with exactly the resolved descriptor.
func (t *Tracker) Lookup(node *graph.Node, resolved *unstructured.Unstructured) (live *unstructured.Unstructured, ok bool) {
	want := ComputeHash(resolved)
	t.read(func(inv *Inventory) {
		item, found := inv.Items[node.ID]
		if found && item.Status == ItemStatusApplied && item.Live != nil && item.ResolvedHash == want {
			live, ok = item.Live.DeepCopy(), true
		}
	})
	return live, ok
}

// Record implements graph.Ledger.
func (t *Tracker) Record(node *graph.Node, resolved, live *unstructured.Unstructured) error {
	if live == nil {
		return fmt.Errorf("node %s: no live object to record", node.ID)
	}
	t.RecordApplied(node, resolved, live)
	return nil
}

func (t *Tracker) RecordApplied(node *graph.Node, resolved, live *unstructured.Unstructured) InventoryItem {
	item := itemFor(node, resolved)
	item.DeclaredHash = HashNode(node)
	item.ResolvedHash = ComputeHash(resolved)
	item.Status = ItemStatusApplied
	item.Live = live.DeepCopy()

	t.write(func(inv *Inventory) { inv.Items[node.ID] = item })
	return item
}

// RecordFailed marks node as failed. An earlier live object is kept so
// outputs from previous runs remain available.
func (t *Tracker) RecordFailed(node *graph.Node) (item InventoryItem) {
	t.write(func(inv *Inventory) {
		var found bool
		if item, found = inv.Items[node.ID]; !found {
			item = itemFor(node, &node.Object)
		}
		item.Status = ItemStatusFailed
		inv.Items[node.ID] = item
	})
	return item
}

func itemFor(node *graph.Node, obj *unstructured.Unstructured) InventoryItem {
	return InventoryItem{
		ID:        node.ID,
		GVK:       obj.GroupVersionKind(),
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Provider:  node.Provider,
	}
}

// RecordPruned keeps a tombstone for id and drops its live object.
func (t *Tracker) RecordPruned(id string) {
	t.write(func(inv *Inventory) {
		if item, ok := inv.Items[id]; ok {
			item.Status = ItemStatusPruned
			item.Live = nil
			inv.Items[id] = item
		}
	})
}

func (t *Tracker) Remove(id string) {
	t.write(func(inv *Inventory) { delete(inv.Items, id) })
}

func (t *Tracker) Get(id string) (item InventoryItem, ok bool) {
	t.read(func(inv *Inventory) { item, ok = inv.Items[id] })
	return item, ok
}

// GetAll returns all items sorted by ID.
func (t *Tracker) GetAll() []InventoryItem {
	return t.collect(func(InventoryItem) bool { return true })
}

// FindOrphaned returns the items not in current, excluding pruned
// tombstones, sorted by ID and with status Orphaned.
func (t *Tracker) FindOrphaned(current map[string]bool) []InventoryItem {
	orphans := t.collect(func(item InventoryItem) bool {
		return item.Status != ItemStatusPruned && !current[item.ID]
	})
	for i := range orphans {
		orphans[i].Status = ItemStatusOrphaned
	}
	return orphans
}

func (t *Tracker) collect(keep func(InventoryItem) bool) []InventoryItem {
	var items []InventoryItem
	t.read(func(inv *Inventory) {
		for _, item := range inv.Items {
			if keep(item) {
				items = append(items, item)
			}
		}
	})
	slices.SortFunc(items, func(a, b InventoryItem) int { return strings.Compare(a.ID, b.ID) })
	return items
}

// GetInventory returns a deep copy safe to hand to a Store.
func (t *Tracker) GetInventory() (cp *Inventory) {
	t.read(func(inv *Inventory) { cp = inv.clone() })
	return cp
}

// SetRun stamps the inventory with the run writing it.
func (t *Tracker) SetRun(project, runID, graphHash string) {
	t.write(func(inv *Inventory) {
		inv.Project, inv.RunID, inv.GraphHash = project, runID, graphHash
	})
}

// SetExports replaces the recorded exports.
func (t *Tracker) SetExports(exports map[string]ExportValue) {
	cp := maps.Clone(exports)
	if cp == nil {
		cp = map[string]ExportValue{}
	}
	t.write(func(inv *Inventory) { inv.Exports = cp })
}

func (t *Tracker) Exports() (out map[string]ExportValue) {
	t.read(func(inv *Inventory) { out = maps.Clone(inv.Exports) })
	if out == nil {
		out = map[string]ExportValue{}
	}
	return out
}

func (t *Tracker) Size() (n int) {
	t.read(func(inv *Inventory) { n = len(inv.Items) })
	return n
}

// serverFields are populated by the API server or a provider and never
// part of what was declared.
var serverFields = [][]string{
	{"metadata", "resourceVersion"},
	{"metadata", "generation"},
	{"metadata", "uid"},
	{"metadata", "creationTimestamp"},
	{"metadata", "managedFields"},
	{"status"},
}

// ComputeHash fingerprints obj without its server-populated fields.
func ComputeHash(obj *unstructured.Unstructured) string {
	if obj == nil {
		return ""
	}
	cp := obj.DeepCopy()
	for _, f := range serverFields {
		unstructured.RemoveNestedField(cp.Object, f...)
	}
	return hashJSON(cp.Object)
}

// HashNode fingerprints a declared node: descriptor with references in
// place, edges and policies.
func HashNode(node *graph.Node) string {
	return hashJSON(node)
}

func hashJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Serialize encodes the inventory as indented JSON.
func (t *Tracker) Serialize() (data []byte, err error) {
	t.read(func(inv *Inventory) { data, err = json.MarshalIndent(inv, "", "  ") })
	return data, err
}

// Deserialize replaces the inventory with the decoded data.
func (t *Tracker) Deserialize(data []byte) error {
	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return fmt.Errorf("decode inventory: %w", err)
	}
	fresh := NewTrackerFromInventory(&inv).inv

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inv = fresh
	return nil
}

package graph

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Builder declares descriptors in program order and produces a Graph.
// Declaration problems are collected and returned by Build, so a chain of
// Declare calls needs no intermediate error handling.
type Builder struct {
	metadata   GraphMetadata
	nodes      []Node
	index      map[string]int
	exports    []Export
	violations []Violation
	errs       []error
}

// NewBuilder creates a builder for a graph with the given name and version
func NewBuilder(name, version string) *Builder {
	return &Builder{
		metadata: GraphMetadata{Name: name, Version: version},
		index:    make(map[string]int),
	}
}

// Handle refers to a declared node
type Handle struct {
	id      string
	builder *Builder
}

// ID returns the logical name of the node
func (h Handle) ID() string { return h.id }

// IsZero reports whether the handle was never returned by Declare
func (h Handle) IsZero() bool { return h.builder == nil }

// Output returns a deferred reference to a field of the node's live object
func (h Handle) Output(path string) Output {
	return NewOutput(h.id, path)
}

// SecretOutput is like Output but classifies the value as secret
func (h Handle) SecretOutput(path string) Output {
	return NewOutput(h.id, path).AsSecret()
}

// DeclareOption configures a node being declared
type DeclareOption func(*declaration)

type declaration struct {
	node    *Node
	handles []Handle
}

// DependsOn adds explicit dependency edges on the given nodes
func DependsOn(handles ...Handle) DeclareOption {
	return func(d *declaration) {
		for _, h := range handles {
			d.handles = append(d.handles, h)
			d.node.DependsOn = append(d.node.DependsOn, h.id)
		}
	}
}

// WithProvider provisions the node through the given access context
func WithProvider(h Handle) DeclareOption {
	return func(d *declaration) {
		d.handles = append(d.handles, h)
		d.node.Provider = h.id
	}
}

// WithApplyPolicy sets the node's apply policy
func WithApplyPolicy(policy ApplyPolicy) DeclareOption {
	return func(d *declaration) {
		d.node.ApplyPolicy = policy
	}
}

// ReadyWhen adds readiness predicates to the node
func ReadyWhen(predicates ...ReadinessPredicate) DeclareOption {
	return func(d *declaration) {
		d.node.ReadyWhen = append(d.node.ReadyWhen, predicates...)
	}
}

// Declare registers a descriptor under a logical name and returns its
// handle. The descriptor is copied; later changes to obj have no effect.
func (b *Builder) Declare(id string, obj *unstructured.Unstructured, opts ...DeclareOption) Handle {
	h := Handle{id: id, builder: b}

	if id == "" {
		b.errs = append(b.errs, fmt.Errorf("node ID is required"))
		return h
	}
	if _, exists := b.index[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate node ID: %s", id))
		return h
	}
	if obj == nil {
		b.errs = append(b.errs, fmt.Errorf("node %s: object cannot be nil", id))
		return h
	}

	node := Node{ID: id, Object: *obj.DeepCopy()}
	d := &declaration{node: &node}
	for _, opt := range opts {
		opt(d)
	}

	for _, dep := range d.handles {
		if dep.builder != b {
			b.errs = append(b.errs, fmt.Errorf("node %s: dependency %q was not declared by this builder", id, dep.id))
			continue
		}
		if _, declared := b.index[dep.id]; !declared {
			b.errs = append(b.errs, fmt.Errorf("node %s: dependency %q is not declared", id, dep.id))
		}
	}
	for _, out := range References(node.Object.Object) {
		if _, declared := b.index[out.NodeID()]; !declared {
			b.errs = append(b.errs, fmt.Errorf("node %s: %s refers to an undeclared node", id, out))
		}
	}

	b.index[id] = len(b.nodes)
	b.nodes = append(b.nodes, node)
	return h
}

// Export publishes an output under a name
func (b *Builder) Export(name string, out Output) {
	for _, e := range b.exports {
		if e.Name == name {
			b.errs = append(b.errs, fmt.Errorf("duplicate export: %s", name))
			return
		}
	}
	if _, declared := b.index[out.NodeID()]; !declared {
		b.errs = append(b.errs, fmt.Errorf("export %s: %s refers to an undeclared node", name, out))
		return
	}
	b.exports = append(b.exports, Export{Name: name, Output: out})
}

// Warn records a non-blocking violation on the graph
func (b *Builder) Warn(path, message string) {
	b.violations = append(b.violations, Violation{
		Path:     path,
		Message:  message,
		Severity: ViolationSeverityWarning,
	})
}

// Build returns the declared graph, or every declaration error joined
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &Graph{
		Metadata:   b.metadata,
		Nodes:      make([]Node, len(b.nodes)),
		Violations: append([]Violation(nil), b.violations...),
		Exports:    append([]Export(nil), b.exports...),
	}
	for i := range b.nodes {
		g.Nodes[i] = *b.nodes[i].DeepCopy()
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	g.SetHash()
	return g, nil
}

// DeepCopy returns a deep copy of the node
func (n *Node) DeepCopy() *Node {
	out := &Node{
		ID:          n.ID,
		Object:      *n.Object.DeepCopy(),
		ApplyPolicy: n.ApplyPolicy,
		Provider:    n.Provider,
	}
	if n.DependsOn != nil {
		out.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.ReadyWhen != nil {
		out.ReadyWhen = append([]ReadinessPredicate(nil), n.ReadyWhen...)
	}
	return out
}

package graph

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Graph is a declared topology: descriptors in declaration order, the
// policy findings raised while declaring them and the values published
// once they are provisioned.
type Graph struct {
	Metadata   GraphMetadata `json:"metadata"`
	Nodes      []Node        `json:"nodes"`
	Violations []Violation   `json:"violations,omitempty"`
	Exports    []Export      `json:"exports,omitempty"`
}

type GraphMetadata struct {
	// Name is the project name.
	Name    string `json:"name"`
	Version string `json:"version"`
	// RenderHash fingerprints nodes, violations and exports.
	RenderHash string `json:"renderHash,omitempty"`
}

// Node is one resource descriptor. Fields of Object may hold output
// references, substituted just before the node is provisioned.
type Node struct {
	ID     string                    `json:"id"`
	Object unstructured.Unstructured `json:"object"`

	ApplyPolicy ApplyPolicy `json:"applyPolicy"`

	// DependsOn adds ordering edges not implied by references in Object.
	DependsOn []string `json:"dependsOn,omitempty"`

	// Provider names the access context node whose client provisions this
	// descriptor. Cloud descriptors leave it empty.
	Provider string `json:"provider,omitempty"`

	ReadyWhen []ReadinessPredicate `json:"readyWhen,omitempty"`
}

// Edges lists the IDs this node waits for, deduplicated in first-seen
// order: DependsOn, then Provider, then referenced nodes.
func (n *Node) Edges() []string {
	candidates := append([]string{}, n.DependsOn...)
	candidates = append(candidates, n.Provider)
	for _, out := range References(n.Object.Object) {
		candidates = append(candidates, out.NodeID())
	}

	var edges []string
	seen := map[string]struct{}{"": {}}
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		edges = append(edges, id)
	}
	return edges
}

// Export publishes an output under a stack-level name.
type Export struct {
	Name   string `json:"name"`
	Output Output `json:"output"`
}

// ApplyPolicy controls how the Kubernetes provider writes a descriptor.
// Zero fields are defaulted by Validate.
type ApplyPolicy struct {
	Mode           ApplyMode      `json:"mode,omitempty"`
	ConflictPolicy ConflictPolicy `json:"conflictPolicy,omitempty"`
	FieldManager   string         `json:"fieldManager,omitempty"`

	// AlwaysApply re-provisions the node on every run even when nothing
	// about it changed.
	AlwaysApply bool `json:"alwaysApply,omitempty"`
}

const DefaultFieldManager = "clustergraph"

type ApplyMode string

const (
	// ApplyModeApply is server-side apply.
	ApplyModeApply ApplyMode = "Apply"
	// ApplyModeCreate leaves an existing object untouched.
	ApplyModeCreate ApplyMode = "Create"
	// ApplyModeAdopt takes over an object that must already exist.
	ApplyModeAdopt ApplyMode = "Adopt"
)

type ConflictPolicy string

const (
	ConflictPolicyError ConflictPolicy = "Error"
	ConflictPolicyForce ConflictPolicy = "Force"
)

// ReadinessPredicate is one condition a live object must satisfy before
// dependents may proceed. Which fields apply depends on Type.
type ReadinessPredicate struct {
	Type PredicateType `json:"type"`

	ConditionType   string `json:"conditionType,omitempty"`
	ConditionStatus string `json:"conditionStatus,omitempty"`

	// Path is dot-separated; Value is compared in its string form.
	Path  string `json:"path,omitempty"`
	Value string `json:"value,omitempty"`

	// Timeout in seconds; zero uses the executor default.
	Timeout int `json:"timeout,omitempty"`
}

type PredicateType string

const (
	PredicateTypeConditionMatch PredicateType = "ConditionMatch"
	PredicateTypeFieldEquals    PredicateType = "FieldEquals"
	PredicateTypeExists         PredicateType = "Exists"
)

// Violation is a policy finding about one node field.
type Violation struct {
	// Path is "<node>.<field path>".
	Path     string            `json:"path"`
	Message  string            `json:"message"`
	Severity ViolationSeverity `json:"severity"`
}

type ViolationSeverity string

const (
	// ViolationSeverityError blocks provisioning.
	ViolationSeverityError   ViolationSeverity = "Error"
	ViolationSeverityWarning ViolationSeverity = "Warning"
)

func (g *Graph) HasErrors() bool {
	for _, v := range g.Violations {
		if v.Severity == ViolationSeverityError {
			return true
		}
	}
	return false
}

func (g *Graph) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// ComputeHash fingerprints everything but the metadata. It returns ""
// if the graph cannot be encoded.
func (g *Graph) ComputeHash() string {
	d := xxhash.New()
	enc := json.NewEncoder(d)
	for _, part := range []interface{}{g.Nodes, g.Violations, g.Exports} {
		if err := enc.Encode(part); err != nil {
			return ""
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func (g *Graph) SetHash() {
	g.Metadata.RenderHash = g.ComputeHash()
}

// HasChanged compares against a previously recorded hash. An empty
// previous hash always counts as a change.
func (g *Graph) HasChanged(previousHash string) bool {
	return previousHash == "" || g.ComputeHash() != previousHash
}

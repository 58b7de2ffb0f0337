package graph

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks a declared graph and defaults each node's apply policy.
// Every edge must point at a node declared earlier, so a valid graph has
// no cycles.
func (g *Graph) Validate() error {
	switch {
	case g.Metadata.Name == "":
		return errors.New("graph metadata.name is required")
	case g.Metadata.Version == "":
		return errors.New("graph metadata.version is required")
	}

	earlier := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if earlier[n.ID] {
			return fmt.Errorf("node ID %q declared twice", n.ID)
		}
		if err := n.Validate(earlier); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
		earlier[n.ID] = true
	}

	names := make(map[string]bool, len(g.Exports))
	for _, e := range g.Exports {
		switch {
		case e.Name == "":
			return errors.New("export without a name")
		case names[e.Name]:
			return fmt.Errorf("export %q declared twice", e.Name)
		case !earlier[e.Output.NodeID()]:
			return fmt.Errorf("export %q: unknown node %q", e.Name, e.Output.NodeID())
		}
		names[e.Name] = true
	}
	return nil
}

// Validate checks a node given the IDs declared before it.
func (n *Node) Validate(earlier map[string]bool) error {
	if n.ID == "" {
		return errors.New("empty node ID")
	}

	obj := &n.Object
	switch {
	case obj.GetAPIVersion() == "":
		return errors.New("object apiVersion is required")
	case obj.GetKind() == "":
		return errors.New("object kind is required")
	case obj.GetName() == "":
		return errors.New("object name is required")
	}

	if err := n.ApplyPolicy.Validate(); err != nil {
		return fmt.Errorf("applyPolicy: %w", err)
	}

	edges := n.Edges()
	if slices.Contains(edges, n.ID) {
		return errors.New("node depends on itself")
	}
	for _, dep := range edges {
		if !earlier[dep] {
			return fmt.Errorf("dependency %q is unknown or declared later", dep)
		}
	}

	for i := range n.ReadyWhen {
		if err := n.ReadyWhen[i].Validate(); err != nil {
			return fmt.Errorf("readyWhen[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate fills unset fields with defaults and rejects unknown values.
func (ap *ApplyPolicy) Validate() error {
	if ap.Mode == "" {
		ap.Mode = ApplyModeApply
	}
	if ap.ConflictPolicy == "" {
		ap.ConflictPolicy = ConflictPolicyError
	}
	if ap.FieldManager == "" {
		ap.FieldManager = DefaultFieldManager
	}

	if !slices.Contains([]ApplyMode{ApplyModeApply, ApplyModeCreate, ApplyModeAdopt}, ap.Mode) {
		return fmt.Errorf("unknown mode %q", ap.Mode)
	}
	if !slices.Contains([]ConflictPolicy{ConflictPolicyError, ConflictPolicyForce}, ap.ConflictPolicy) {
		return fmt.Errorf("unknown conflict policy %q", ap.ConflictPolicy)
	}
	return nil
}

func (rp *ReadinessPredicate) Validate() error {
	if rp.Timeout < 0 {
		return fmt.Errorf("negative timeout %d", rp.Timeout)
	}

	var missing string
	switch rp.Type {
	case PredicateTypeExists:
	case PredicateTypeConditionMatch:
		if rp.ConditionType == "" {
			missing = "conditionType"
		} else if rp.ConditionStatus == "" {
			missing = "conditionStatus"
		}
	case PredicateTypeFieldEquals:
		if rp.Path == "" {
			missing = "path"
		}
	default:
		return fmt.Errorf("unknown predicate type %q", rp.Type)
	}
	if missing != "" {
		return fmt.Errorf("%s predicate requires %s", rp.Type, missing)
	}
	return nil
}

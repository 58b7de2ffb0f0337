package inventory

import (
	"sort"

	"github.com/chazu/clustergraph/pkg/graph"
)

// Action is what a run will do with a node
type Action string

const (
	// ActionCreate provisions a node that has no recorded state
	ActionCreate Action = "create"

	// ActionUpdate reprovisions a node whose declaration or upstream changed
	ActionUpdate Action = "update"

	// ActionSame leaves a node untouched
	ActionSame Action = "same"

	// ActionDelete removes a recorded node that is no longer declared
	ActionDelete Action = "delete"
)

// Step is the planned action for one node
type Step struct {
	NodeID string `json:"node"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Action Action `json:"action"`

	// Reason explains an update
	Reason string `json:"reason,omitempty"`
}

// Plan lists the planned steps in declaration order followed by deletions
type Plan struct {
	Steps []Step `json:"steps"`
}

// Counts returns the number of steps per action
func (p *Plan) Counts() map[Action]int {
	counts := map[Action]int{
		ActionCreate: 0,
		ActionUpdate: 0,
		ActionSame:   0,
		ActionDelete: 0,
	}
	for _, s := range p.Steps {
		counts[s.Action]++
	}
	return counts
}

// HasChanges reports whether any step is not ActionSame
func (p *Plan) HasChanges() bool {
	for _, s := range p.Steps {
		if s.Action != ActionSame {
			return true
		}
	}
	return false
}

// Plan compares the graph against the inventory. A node is created when it
// has no recorded state, updated when its declaration changed, when its
// last provisioning failed, or when any node it depends on is created or
// updated, since the outputs it consumes may change. Recorded nodes that
// are no longer declared are deleted.
func (t *Tracker) Plan(g *graph.Graph) *Plan {
	t.mu.RLock()
	defer t.mu.RUnlock()

	plan := &Plan{}
	changed := make(map[string]bool, len(g.Nodes))

	for i := range g.Nodes {
		node := &g.Nodes[i]
		step := Step{
			NodeID: node.ID,
			Kind:   node.Object.GetKind(),
			Name:   node.Object.GetName(),
		}

		item, ok := t.inv.Items[node.ID]
		switch {
		case !ok || item.Status == ItemStatusPruned:
			step.Action = ActionCreate
		case item.Status == ItemStatusFailed:
			step.Action = ActionUpdate
			step.Reason = "last attempt failed"
		case item.DeclaredHash != HashNode(node):
			step.Action = ActionUpdate
			step.Reason = "declaration changed"
		default:
			step.Action = ActionSame
			for _, dep := range node.Edges() {
				if changed[dep] {
					step.Action = ActionUpdate
					step.Reason = "upstream " + dep + " changed"
					break
				}
			}
		}

		changed[node.ID] = step.Action != ActionSame
		plan.Steps = append(plan.Steps, step)
	}

	declared := g.NodeIDs()
	var deletes []Step
	for id, item := range t.inv.Items {
		if declared[id] || item.Status == ItemStatusPruned {
			continue
		}
		deletes = append(deletes, Step{
			NodeID: id,
			Kind:   item.GVK.Kind,
			Name:   item.Name,
			Action: ActionDelete,
		})
	}
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].NodeID < deletes[j].NodeID })
	plan.Steps = append(plan.Steps, deletes...)

	return plan
}

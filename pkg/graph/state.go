package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// NodeState is the position of a node in its provisioning lifecycle.
type NodeState string

const (
	NodeStatePending      NodeState = "Pending"
	NodeStateApplying     NodeState = "Applying"
	NodeStateWaitingReady NodeState = "WaitingReady"
	NodeStateReady        NodeState = "Ready"
	// NodeStateError is terminal. A failed node is never retried within a run.
	NodeStateError NodeState = "Error"
)

// successors lists the states each state may move to. Pending may jump to
// Ready for nodes whose descriptor is unchanged since the last run, and
// Applying may jump to Ready for nodes without readiness predicates.
var successors = map[NodeState][]NodeState{
	NodeStatePending:      {NodeStateApplying, NodeStateReady, NodeStateError},
	NodeStateApplying:     {NodeStateWaitingReady, NodeStateReady, NodeStateError},
	NodeStateWaitingReady: {NodeStateReady, NodeStateError},
	NodeStateReady:        nil,
	NodeStateError:        nil,
}

// Terminal reports whether no further transition is possible from s.
func (s NodeState) Terminal() bool {
	return s == NodeStateReady || s == NodeStateError
}

// CanMoveTo reports whether s may transition to next.
func (s NodeState) CanMoveTo(next NodeState) bool {
	return slices.Contains(successors[s], next)
}

// ErrUnknownNode is returned when a node ID is not part of the execution.
var ErrUnknownNode = errors.New("unknown node")

// NodeStatus is the per-node record kept during a run.
type NodeStatus struct {
	State NodeState
	// Error holds the failure message once State is NodeStateError.
	Error string
	// Unchanged marks a node that was skipped because its resolved
	// descriptor matched the one recorded by the previous run.
	Unchanged bool
	StartTime *time.Time
	ReadyTime *time.Time
}

// ExecutionState is the shared, concurrency-safe view of one DAG run:
// the status of every node and the live objects recorded for ready ones.
type ExecutionState struct {
	mu       sync.RWMutex
	nodes    map[string]*NodeStatus
	outputs  *OutputStore
	started  time.Time
	finished *time.Time
}

// NewExecutionState starts a run in which every node is Pending.
func NewExecutionState(nodeIDs []string) *ExecutionState {
	es := &ExecutionState{
		nodes:   make(map[string]*NodeStatus, len(nodeIDs)),
		outputs: NewOutputStore(),
		started: time.Now(),
	}
	for _, id := range nodeIDs {
		es.nodes[id] = &NodeStatus{State: NodeStatePending}
	}
	return es
}

// Outputs returns the store that resolves output references for this run.
func (es *ExecutionState) Outputs() *OutputStore {
	return es.outputs
}

// lookup must be called with es.mu held.
func (es *ExecutionState) lookup(nodeID string) (*NodeStatus, error) {
	st, ok := es.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	return st, nil
}

// update applies fn to the status of nodeID under the write lock.
func (es *ExecutionState) update(nodeID string, fn func(*NodeStatus) error) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	st, err := es.lookup(nodeID)
	if err != nil {
		return err
	}
	return fn(st)
}

func (es *ExecutionState) GetState(nodeID string) (NodeState, error) {
	st, err := es.GetStatus(nodeID)
	if err != nil {
		return "", err
	}
	return st.State, nil
}

// GetStatus returns a copy of the node's status.
func (es *ExecutionState) GetStatus(nodeID string) (*NodeStatus, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	st, err := es.lookup(nodeID)
	if err != nil {
		return nil, err
	}
	cp := *st
	return &cp, nil
}

// SetState moves a node to next, rejecting transitions the lifecycle does
// not allow. Entering Applying stamps StartTime, entering Ready stamps
// ReadyTime.
func (es *ExecutionState) SetState(nodeID string, next NodeState) error {
	return es.update(nodeID, func(st *NodeStatus) error {
		return moveTo(nodeID, st, next)
	})
}

// MarkUnchanged moves a pending node straight to Ready and flags it as
// skipped.
func (es *ExecutionState) MarkUnchanged(nodeID string) error {
	return es.update(nodeID, func(st *NodeStatus) error {
		if err := moveTo(nodeID, st, NodeStateReady); err != nil {
			return err
		}
		st.Unchanged = true
		return nil
	})
}

// SetError fails the node from whatever state it is in.
func (es *ExecutionState) SetError(nodeID string, cause error) error {
	return es.update(nodeID, func(st *NodeStatus) error {
		st.State = NodeStateError
		if cause != nil {
			st.Error = cause.Error()
		}
		return nil
	})
}

func moveTo(nodeID string, st *NodeStatus, next NodeState) error {
	if _, known := successors[st.State]; !known {
		return fmt.Errorf("node %s: unknown state %q", nodeID, st.State)
	}
	if !st.State.CanMoveTo(next) {
		return fmt.Errorf("node %s: cannot move from %s to %s", nodeID, st.State, next)
	}

	now := time.Now()
	if next == NodeStateApplying && st.StartTime == nil {
		st.StartTime = &now
	}
	if next == NodeStateReady {
		st.ReadyTime = &now
	}
	st.State = next
	return nil
}

// GetNodesInState returns the sorted IDs of nodes currently in state.
func (es *ExecutionState) GetNodesInState(state NodeState) []string {
	es.mu.RLock()
	defer es.mu.RUnlock()

	ids := []string{}
	for id, st := range es.nodes {
		if st.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// GetAllStates returns a snapshot of node ID to state.
func (es *ExecutionState) GetAllStates() map[string]NodeState {
	es.mu.RLock()
	defer es.mu.RUnlock()

	out := make(map[string]NodeState, len(es.nodes))
	for id, st := range es.nodes {
		out[id] = st.State
	}
	return out
}

// IsComplete reports whether every node has reached a terminal state.
func (es *ExecutionState) IsComplete() bool {
	for _, s := range es.GetAllStates() {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

func (es *ExecutionState) HasErrors() bool {
	return es.GetSummary().Error > 0
}

// ExecutionSummary counts nodes per state.
type ExecutionSummary struct {
	Total        int
	Pending      int
	Applying     int
	WaitingReady int
	Ready        int
	// Unchanged is the subset of Ready nodes that were skipped.
	Unchanged int
	Error     int
	StartTime time.Time
	EndTime   *time.Time
}

func (es *ExecutionState) GetSummary() ExecutionSummary {
	es.mu.RLock()
	defer es.mu.RUnlock()

	sum := ExecutionSummary{
		Total:     len(es.nodes),
		StartTime: es.started,
		EndTime:   es.finished,
	}
	counters := map[NodeState]*int{
		NodeStatePending:      &sum.Pending,
		NodeStateApplying:     &sum.Applying,
		NodeStateWaitingReady: &sum.WaitingReady,
		NodeStateReady:        &sum.Ready,
		NodeStateError:        &sum.Error,
	}
	for _, st := range es.nodes {
		if c, ok := counters[st.State]; ok {
			*c++
		}
		if st.State == NodeStateReady && st.Unchanged {
			sum.Unchanged++
		}
	}
	return sum
}

// MarkComplete stamps the end of the run.
func (es *ExecutionState) MarkComplete() {
	es.mu.Lock()
	defer es.mu.Unlock()

	now := time.Now()
	es.finished = &now
}

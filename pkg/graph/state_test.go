package graph

import (
	"errors"
	"sync"
	"testing"
)

func TestNodeStateLifecycle(t *testing.T) {
	tests := []struct {
		from, to NodeState
		allowed  bool
	}{
		{NodeStatePending, NodeStateApplying, true},
		{NodeStatePending, NodeStateReady, true},
		{NodeStatePending, NodeStateError, true},
		{NodeStatePending, NodeStateWaitingReady, false},
		{NodeStateApplying, NodeStateWaitingReady, true},
		{NodeStateApplying, NodeStateReady, true},
		{NodeStateApplying, NodeStatePending, false},
		{NodeStateWaitingReady, NodeStateReady, true},
		{NodeStateWaitingReady, NodeStateApplying, false},
		{NodeStateReady, NodeStateApplying, false},
		{NodeStateError, NodeStatePending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanMoveTo(tt.to); got != tt.allowed {
				t.Errorf("CanMoveTo = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestSetStateWalksLifecycle(t *testing.T) {
	es := NewExecutionState([]string{"aks-cluster"})

	for _, next := range []NodeState{NodeStateApplying, NodeStateWaitingReady, NodeStateReady} {
		if err := es.SetState("aks-cluster", next); err != nil {
			t.Fatalf("SetState(%s): %v", next, err)
		}
	}

	st, err := es.GetStatus("aks-cluster")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != NodeStateReady {
		t.Errorf("state = %s, want Ready", st.State)
	}
	if st.StartTime == nil || st.ReadyTime == nil {
		t.Fatal("expected start and ready timestamps")
	}
	if st.ReadyTime.Before(*st.StartTime) {
		t.Error("ready before start")
	}

	if err := es.SetState("aks-cluster", NodeStateApplying); err == nil {
		t.Error("expected Ready to be terminal")
	}
}

func TestUnknownNode(t *testing.T) {
	es := NewExecutionState([]string{"a"})

	if _, err := es.GetState("missing"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("GetState err = %v, want ErrUnknownNode", err)
	}
	if err := es.SetState("missing", NodeStateApplying); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("SetState err = %v, want ErrUnknownNode", err)
	}
	if err := es.SetError("missing", errors.New("x")); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("SetError err = %v, want ErrUnknownNode", err)
	}
}

func TestSetErrorFromAnyState(t *testing.T) {
	es := NewExecutionState([]string{"static-app-ip", "ssh-key"})
	_ = es.SetState("ssh-key", NodeStateApplying)

	for _, id := range []string{"static-app-ip", "ssh-key"} {
		if err := es.SetError(id, errors.New("quota exceeded")); err != nil {
			t.Fatalf("SetError(%s): %v", id, err)
		}
		st, _ := es.GetStatus(id)
		if st.State != NodeStateError || st.Error != "quota exceeded" {
			t.Errorf("%s: got %s %q", id, st.State, st.Error)
		}
	}
}

func TestMarkUnchangedOnlyFromPending(t *testing.T) {
	es := NewExecutionState([]string{"ns-app", "ns-dev"})

	if err := es.MarkUnchanged("ns-app"); err != nil {
		t.Fatal(err)
	}
	st, _ := es.GetStatus("ns-app")
	if st.State != NodeStateReady || !st.Unchanged {
		t.Errorf("got %+v, want unchanged Ready", st)
	}

	_ = es.SetState("ns-dev", NodeStateApplying)
	_ = es.SetState("ns-dev", NodeStateReady)
	if err := es.MarkUnchanged("ns-dev"); err == nil {
		t.Error("expected error marking a Ready node unchanged")
	}
	if st, _ := es.GetStatus("ns-dev"); st.Unchanged {
		t.Error("failed MarkUnchanged must not flag the node")
	}
}

func TestGetStatusReturnsCopy(t *testing.T) {
	es := NewExecutionState([]string{"a"})
	st, _ := es.GetStatus("a")
	st.State = NodeStateError

	if s, _ := es.GetState("a"); s != NodeStatePending {
		t.Errorf("mutating the copy changed state to %s", s)
	}
}

func TestQueriesAndSummary(t *testing.T) {
	es := NewExecutionState([]string{"a", "b", "c", "d", "e"})
	_ = es.MarkUnchanged("a")
	_ = es.SetState("b", NodeStateApplying)
	_ = es.SetState("b", NodeStateReady)
	_ = es.SetState("c", NodeStateApplying)
	_ = es.SetState("c", NodeStateWaitingReady)
	_ = es.SetError("d", errors.New("boom"))

	if got := es.GetNodesInState(NodeStateReady); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ready nodes = %v", got)
	}
	if got := es.GetNodesInState(NodeStateApplying); len(got) != 0 {
		t.Errorf("applying nodes = %v", got)
	}
	if es.IsComplete() {
		t.Error("run with pending nodes reported complete")
	}
	if !es.HasErrors() {
		t.Error("expected HasErrors")
	}

	want := ExecutionSummary{Total: 5, Pending: 1, WaitingReady: 1, Ready: 2, Unchanged: 1, Error: 1}
	got := es.GetSummary()
	if got.Total != want.Total || got.Pending != want.Pending || got.Applying != want.Applying ||
		got.WaitingReady != want.WaitingReady || got.Ready != want.Ready ||
		got.Unchanged != want.Unchanged || got.Error != want.Error {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
	if got.EndTime != nil {
		t.Error("EndTime set before MarkComplete")
	}

	_ = es.SetState("c", NodeStateReady)
	_ = es.SetError("e", errors.New("boom"))
	if !es.IsComplete() {
		t.Errorf("expected complete, states = %v", es.GetAllStates())
	}

	es.MarkComplete()
	if s := es.GetSummary(); s.EndTime == nil || s.EndTime.Before(s.StartTime) {
		t.Errorf("bad end time %v", s.EndTime)
	}
}

func TestEmptyExecutionIsComplete(t *testing.T) {
	es := NewExecutionState(nil)
	if !es.IsComplete() || es.HasErrors() {
		t.Error("empty run should be complete without errors")
	}
	if es.Outputs() == nil {
		t.Error("Outputs() returned nil")
	}
}

func TestConcurrentTransitions(t *testing.T) {
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	es := NewExecutionState(ids)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = es.SetState(id, NodeStateApplying)
			_ = es.SetState(id, NodeStateReady)
		}()
		go func() {
			defer wg.Done()
			_, _ = es.GetState(id)
			_ = es.GetSummary()
		}()
	}
	wg.Wait()

	if s := es.GetSummary(); s.Ready != len(ids) {
		t.Errorf("ready = %d, want %d", s.Ready, len(ids))
	}
}

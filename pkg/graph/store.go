package graph

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// OutputStore holds the live object of every provisioned node. Each node
// resolves exactly once; later attempts to record it fail.
type OutputStore struct {
	mu   sync.RWMutex
	live map[string]*unstructured.Unstructured
}

// NewOutputStore creates an empty output store
func NewOutputStore() *OutputStore {
	return &OutputStore{
		live: make(map[string]*unstructured.Unstructured),
	}
}

// Record stores the live object of a node
func (s *OutputStore) Record(nodeID string, live *unstructured.Unstructured) error {
	if live == nil {
		return fmt.Errorf("live object for node %s cannot be nil", nodeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.live[nodeID]; exists {
		return fmt.Errorf("outputs of node %s already resolved", nodeID)
	}
	s.live[nodeID] = live.DeepCopy()
	return nil
}

// Resolved reports whether the node's outputs are available
func (s *OutputStore) Resolved(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.live[nodeID]
	return ok
}

// Value returns the resolved value of an output
func (s *OutputStore) Value(out Output) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, ok := s.live[out.NodeID()]
	if !ok {
		return nil, fmt.Errorf("%s is not resolved: node %s has not been provisioned", out, out.NodeID())
	}

	val, found, err := unstructured.NestedFieldNoCopy(live.Object, out.Fields()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", out, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: field not present on live object", out)
	}
	return runtime.DeepCopyJSONValue(val), nil
}

// Resolve returns a copy of obj with every output reference replaced by
// its resolved value. obj itself is left untouched.
func (s *OutputStore) Resolve(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, fmt.Errorf("object cannot be nil")
	}

	resolved := obj.DeepCopy()
	content, err := replaceRefs(resolved.Object, s.Value)
	if err != nil {
		return nil, err
	}
	resolved.Object = content.(map[string]interface{})
	return resolved, nil
}

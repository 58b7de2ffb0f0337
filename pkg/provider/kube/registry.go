// Package kube connects Kubernetes descriptors to the API servers reached
// through access context nodes.
package kube

import (
	"fmt"
	"sort"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Registry holds the Kubernetes clients built by access context nodes,
// keyed by node ID
type Registry struct {
	mu      sync.RWMutex
	clients map[string]client.Client
}

// NewRegistry creates an empty client registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]client.Client)}
}

// Register stores the client of an access context node, replacing any
// client registered earlier under the same ID
func (r *Registry) Register(nodeID string, c client.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[nodeID] = c
}

// Client returns the client registered for an access context node
func (r *Registry) Client(nodeID string) (client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if nodeID == "" {
		return nil, fmt.Errorf("no provider set")
	}
	c, ok := r.clients[nodeID]
	if !ok {
		return nil, fmt.Errorf("provider %s has no registered client", nodeID)
	}
	return c, nil
}

// Providers returns the IDs of all registered access contexts, sorted
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

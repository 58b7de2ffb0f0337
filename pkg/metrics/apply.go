/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// Apply operation metrics
	applyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clustergraph_apply_total",
		Help: "Total number of provisioning operations",
	}, []string{"result", "provider", "kind"})

	applyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clustergraph_apply_duration_seconds",
		Help:    "Duration of provisioning operations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5m
	}, []string{"provider", "kind"})

	resourcesManaged = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clustergraph_resources_managed",
		Help: "Number of resources currently recorded in the inventory",
	}, []string{"kind"})

	pruneTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clustergraph_prune_total",
		Help: "Total number of orphaned resources handled by pruning",
	}, []string{"result", "kind"})
)

func init() {
	metrics.Registry.MustRegister(
		applyTotal,
		applyDuration,
		resourcesManaged,
		pruneTotal,
	)
}

// RecordApply records a provisioning operation
// result: "success" or "failure"
// provider: "kubernetes", "azure", "tls" or "access"
// kind: the descriptor kind (e.g., "ManagedCluster")
func RecordApply(result, provider, kind string, durationSeconds float64) {
	applyTotal.WithLabelValues(result, provider, kind).Inc()
	applyDuration.WithLabelValues(provider, kind).Observe(durationSeconds)
}

// SetManagedResources sets the gauge for managed resources of a kind
func SetManagedResources(kind string, count int) {
	resourcesManaged.WithLabelValues(kind).Set(float64(count))
}

// RecordPrune records the outcome of pruning one orphaned resource
// result: "deleted", "protected", "reported" or "failure"
func RecordPrune(result, kind string) {
	pruneTotal.WithLabelValues(result, kind).Inc()
}

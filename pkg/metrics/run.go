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
	// Run metrics
	runTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clustergraph_run_total",
		Help: "Total number of runs",
	}, []string{"command", "result"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clustergraph_run_duration_seconds",
		Help:    "Duration of runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
	}, []string{"command"})

	// DAG execution metrics
	dagNodesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clustergraph_dag_nodes_total",
		Help: "Total number of nodes in DAG being executed",
	}, []string{"graph"})

	dagExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clustergraph_dag_execution_duration_seconds",
		Help:    "Duration of DAG executions",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"graph", "result"})

	dagNodeStates = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clustergraph_dag_node_states",
		Help: "Number of nodes per final state of the last execution",
	}, []string{"graph", "state"})

	// Plan metrics
	planActions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clustergraph_plan_actions",
		Help: "Number of planned actions per action type",
	}, []string{"action"})
)

func init() {
	metrics.Registry.MustRegister(
		runTotal,
		runDuration,
		dagNodesTotal,
		dagExecutionDuration,
		dagNodeStates,
		planActions,
	)
}

// RecordRun records a CLI run
func RecordRun(command, result string, durationSeconds float64) {
	runTotal.WithLabelValues(command, result).Inc()
	runDuration.WithLabelValues(command).Observe(durationSeconds)
}

// SetDAGNodes sets the current number of nodes in a DAG
func SetDAGNodes(graph string, count int) {
	dagNodesTotal.WithLabelValues(graph).Set(float64(count))
}

// RecordDAGExecution records a DAG execution
func RecordDAGExecution(graph, result string, durationSeconds float64) {
	dagExecutionDuration.WithLabelValues(graph, result).Observe(durationSeconds)
}

// SetNodeStates records how many nodes ended in each state
func SetNodeStates(graph string, counts map[string]int) {
	for state, n := range counts {
		dagNodeStates.WithLabelValues(graph, state).Set(float64(n))
	}
}

// SetPlanActions records the number of planned actions of one type
func SetPlanActions(action string, count int) {
	planActions.WithLabelValues(action).Set(float64(count))
}

// WriteToTextfile writes every registered metric to path in the text
// exposition format
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, metrics.Registry)
}

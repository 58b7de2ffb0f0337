// Package metrics defines the Prometheus collectors of clustergraph. They
// are registered on the controller-runtime registry and can be written to a
// textfile at the end of a run.
package metrics

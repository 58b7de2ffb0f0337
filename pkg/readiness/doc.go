// Package readiness evaluates the readiness predicates of graph nodes.
// Kubernetes nodes are re-read through the client of their provider on
// every check. Cloud and local nodes are judged on the live object their
// provider returned.
package readiness

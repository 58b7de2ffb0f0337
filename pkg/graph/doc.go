// Package graph provides types and utilities for managing dependency graphs
// of infrastructure resource descriptors. It includes the Graph artifact
// representation, a Builder for declaring descriptors with deferred output
// references, DAG building, and execution logic for provisioning resources
// in dependency order.
package graph

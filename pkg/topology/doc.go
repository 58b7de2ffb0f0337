// Package topology declares the AKS cluster topology as a resource graph.
//
// Declare is a pure function of the configuration. It performs no I/O and
// yields structurally identical graphs for equal inputs. Provisioning
// happens later, when the graph is executed.
package topology

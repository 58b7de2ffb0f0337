// Package apply provisions Kubernetes descriptors through the client
// registered by their access context, with Server-Side Apply by default,
// and prunes recorded objects that are no longer declared.
package apply

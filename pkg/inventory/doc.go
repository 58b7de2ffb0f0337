// Package inventory records what previous runs provisioned. The tracker
// remembers per node the hashes of the declared and resolved descriptors
// and the live object returned by the provider. It plans the actions of
// the next run, detects orphaned resources and persists the inventory in a
// JSON file or a sqlite database.
package inventory

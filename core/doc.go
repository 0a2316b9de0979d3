// Package core holds the messaging API contracts, configuration, error taxonomy,
// and the Service that runs contact and message operations through an Executor.
// Transport, storage, and webhook adapters depend on core; core depends on none of them.
package core

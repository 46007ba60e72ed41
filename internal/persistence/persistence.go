package persistence

// Persistence bundles the store interfaces so the runner can depend on a
// single abstraction. Leases is optional; schedulers that find it nil run
// without per-document serialization.
type Persistence struct {
	Documents DocumentStore
	Jobs      JobStore
	Workflows WorkflowStore
	Leases    Leaser
}

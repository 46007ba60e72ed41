package api

// Document is a versioned content item with an append-only revision chain.
//
// A Document itself is little more than an identity: its content lives in
// its revisions, and the store tracks which revision is currently the
// designated latest one. The runner never constructs Documents; it only
// loads them and saves revisions of them.
type Document struct {
	// ID is the stable document identifier.
	ID string

	// Kind tags the entity type of the document (for example "article").
	Kind string

	// WorkflowID names the workflow whose states label this document's
	// revisions.
	WorkflowID string
}

package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/revisor/pkg/api"
)

var (
	// ErrDocumentNotFound is returned when a document is not found.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRevisionNotFound is returned when a revision is not found in a
	// document's chain.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrJobNotFound is returned when a scheduled transition is not found.
	ErrJobNotFound = errors.New("scheduled transition not found")

	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// errLeaseNotHeld is returned by RenewLease when the caller does not hold
// an active lease on the document.
var errLeaseNotHeld = errors.New("lease not held")

// DocumentStore handles storage of documents and their revision chains.
//
// Revision ids are assigned by the store and increase monotonically within
// a document. Handed-out revisions are copies; mutating them does not
// affect stored history until they are saved back.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *api.Document) error
	LoadDocument(ctx context.Context, id string) (*api.Document, error)

	// LoadRevision returns the given revision of a document.
	LoadRevision(ctx context.Context, documentID string, revisionID int64) (api.Revision, error)

	// LatestRevisionID returns the id of the document's designated latest
	// revision, or zero when the document has no revisions.
	LatestRevisionID(ctx context.Context, documentID string) (int64, error)

	// SaveAsNewRevision appends rev to the document's chain under a newly
	// assigned revision id, makes it the designated latest revision, and
	// returns the new id. rev's id is updated in place.
	SaveAsNewRevision(ctx context.Context, documentID string, rev api.Revision) (int64, error)

	// SaveInPlace overwrites the stored revision with rev's id.
	SaveInPlace(ctx context.Context, documentID string, rev api.Revision) error

	// RevisionIDs returns the ids of the document's revision chain in
	// ascending order.
	RevisionIDs(ctx context.Context, documentID string) ([]int64, error)
}

// JobStore handles storage of scheduled transitions. The store doubles as
// the work queue: a job is due once its transition time is at or before
// "now".
type JobStore interface {
	SaveJob(ctx context.Context, job *api.ScheduledTransition) error
	GetJob(ctx context.Context, id string) (*api.ScheduledTransition, error)

	// ListDue returns jobs whose transition time is at or before now,
	// oldest first.
	ListDue(ctx context.Context, now time.Time) ([]*api.ScheduledTransition, error)

	// ListForDocument returns all jobs targeting the given document.
	ListForDocument(ctx context.Context, documentID string) ([]*api.ScheduledTransition, error)

	DeleteJob(ctx context.Context, id string) error
}

// WorkflowStore handles storage of workflow definitions.
type WorkflowStore interface {
	SaveWorkflow(wf api.Workflow) error
	GetWorkflow(id string) (api.Workflow, error)
}

// Leaser grants advisory, TTL-expiring leases keyed by document id. The
// runner itself takes no lock; schedulers use leases so that at most one of
// them executes transitions for a document at a time.
type Leaser interface {
	// TryAcquireLease attempts to acquire (or re-acquire) a lease on a
	// document. If the document is currently leased by another owner and
	// the lease has not expired, it returns acquired=false, err=nil.
	//
	// Implementations should treat a lease owned by the same owner as
	// re-entrant.
	TryAcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (acquired bool, err error)

	// RenewLease extends an existing lease owned by 'owner' for the given
	// ttl.
	RenewLease(ctx context.Context, documentID, owner string, ttl time.Duration) error

	// ReleaseLease releases a lease if it is owned by 'owner'. It is
	// idempotent.
	ReleaseLease(ctx context.Context, documentID, owner string) error
}

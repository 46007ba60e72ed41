package api

import (
	"context"
	"errors"
)

var (
	// ErrMissingEntity is returned when the target document no longer
	// exists.
	ErrMissingEntity = errors.New("entity does not exist")

	// ErrMissingRevision is returned when the target revision cannot be
	// resolved, either because the revision id no longer exists or because
	// dynamic resolution produced nothing.
	ErrMissingRevision = errors.New("target revision does not exist")

	// ErrMissingLatestRevision is returned when the document has no
	// resolvable latest revision. A well-formed document always has one;
	// this is treated as a hard failure like the others.
	ErrMissingLatestRevision = errors.New("latest revision does not exist")
)

// Runner executes scheduled transitions against the live state of their
// target documents.
type Runner interface {
	// RunTransition executes one scheduled transition end to end: it loads
	// the document, resolves the target and latest revisions, applies the
	// transition, persists the resulting revision(s), and deletes the job.
	//
	// Semantics:
	//   - Idempotent on success: the job record is gone, so re-invocation
	//     fails with ErrMissingEntity semantics at the trigger level.
	//   - On any error the job record is left completely untouched, so an
	//     operator can fix the underlying data and let the job be retried.
	//   - The revision saves and the job delete are not wrapped in one
	//     atomic unit. A crash between the required save and the optional
	//     head-restore save (or between the saves and the delete) leaves
	//     the document partially transitioned with the job still pending;
	//     re-running the job re-applies the algorithm against the changed
	//     document.
	//   - No retries, no internal locking. Callers that run multiple
	//     runner instances must serialize access per document themselves,
	//     for example with the store leases used by pkg/scheduler.
	RunTransition(ctx context.Context, job *ScheduledTransition) error
}

// TargetResolver produces the target revision for transitions whose
// revision id is zero, signalling dynamic resolution.
//
// Resolvers are consulted in order; the first non-nil revision wins.
// A resolver abstains by returning (nil, nil). An error aborts the run.
type TargetResolver interface {
	TargetRevision(ctx context.Context, job *ScheduledTransition, doc *Document) (Revision, error)
}

// TargetResolverFunc adapts a function to the TargetResolver interface.
type TargetResolverFunc func(ctx context.Context, job *ScheduledTransition, doc *Document) (Revision, error)

func (f TargetResolverFunc) TargetRevision(ctx context.Context, job *ScheduledTransition, doc *Document) (Revision, error) {
	return f(ctx, job, doc)
}

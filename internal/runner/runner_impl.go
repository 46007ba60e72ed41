package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/pkg/api"
)

// runnerImpl is a simple, synchronous, in-process runner implementation.
// One call to RunTransition executes exactly one scheduled transition; the
// runner performs no internal concurrency and takes no locks of its own.
type runnerImpl struct {
	docs      persistence.DocumentStore
	jobs      persistence.JobStore
	workflows persistence.WorkflowStore
	resolvers []api.TargetResolver
	templates api.MessageTemplates
	observer  api.Observer
	logger    *slog.Logger
	now       func() time.Time
}

// Config describes how to construct a runner.
// Only used inside this package; external callers use the helper functions
// in the revisor package.
type Config struct {
	Persistence persistence.Persistence

	// Resolvers supply target revisions for transitions whose revision id
	// is zero. Consulted in order; first non-nil revision wins.
	Resolvers []api.TargetResolver

	// Templates are the revision log message templates. Zero value means
	// api.DefaultMessageTemplates().
	Templates api.MessageTemplates

	Observer api.Observer
	Logger   *slog.Logger

	// Now is the clock used for revision creation timestamps.
	// Defaults to time.Now.
	Now func() time.Time
}

// New returns a Runner backed by the given persistence, with default
// templates and no observer.
func New(p persistence.Persistence) api.Runner {
	return NewWithConfig(Config{Persistence: p})
}

// NewWithConfig creates a new Runner using the given configuration.
func NewWithConfig(cfg Config) api.Runner {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	templates := cfg.Templates
	if templates == (api.MessageTemplates{}) {
		templates = api.DefaultMessageTemplates()
	}

	return &runnerImpl{
		docs:      cfg.Persistence.Documents,
		jobs:      cfg.Persistence.Jobs,
		workflows: cfg.Persistence.Workflows,
		resolvers: cfg.Resolvers,
		templates: templates,
		observer:  obs,
		logger:    logger,
		now:       now,
	}
}

func (r *runnerImpl) RunTransition(ctx context.Context, job *api.ScheduledTransition) error {
	start := r.now()
	r.observer.OnTransitionStart(ctx, job)

	doc, err := r.docs.LoadDocument(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			err = fmt.Errorf("%w for scheduled transition %s", api.ErrMissingEntity, job.ID)
			r.logger.Info("entity does not exist for scheduled transition", "transition_id", job.ID)
		}
		return r.failed(ctx, job, err)
	}

	target, err := r.resolveTarget(ctx, job, doc)
	if err != nil {
		return r.failed(ctx, job, err)
	}

	latestID, err := r.docs.LatestRevisionID(ctx, doc.ID)
	if err != nil {
		return r.failed(ctx, job, err)
	}
	var latest api.Revision
	if latestID != 0 {
		latest, err = r.docs.LoadRevision(ctx, doc.ID, latestID)
		if err != nil && !errors.Is(err, persistence.ErrRevisionNotFound) {
			return r.failed(ctx, job, err)
		}
	}
	if latest == nil {
		r.logger.Info("latest revision does not exist for scheduled transition", "transition_id", job.ID)
		return r.failed(ctx, job, fmt.Errorf("%w for scheduled transition %s", api.ErrMissingLatestRevision, job.ID))
	}

	if err := r.transition(ctx, job, doc, target, latest); err != nil {
		return r.failed(ctx, job, err)
	}

	if err := r.jobs.DeleteJob(ctx, job.ID); err != nil {
		return r.failed(ctx, job, err)
	}
	r.logger.Info("deleted scheduled transition", "transition_id", job.ID)

	r.observer.OnTransitionCompleted(ctx, job, r.now().Sub(start))
	return nil
}

func (r *runnerImpl) failed(ctx context.Context, job *api.ScheduledTransition, err error) error {
	r.observer.OnTransitionFailed(ctx, job, err)
	return err
}

// resolveTarget decides which concrete revision the transition applies to.
// A positive revision id is a static target, optionally narrowed to a
// language variant; a zero id delegates to the resolver chain.
func (r *runnerImpl) resolveTarget(ctx context.Context, job *api.ScheduledTransition, doc *api.Document) (api.Revision, error) {
	if job.RevisionID > 0 {
		rev, err := r.docs.LoadRevision(ctx, doc.ID, job.RevisionID)
		if err != nil {
			if errors.Is(err, persistence.ErrRevisionNotFound) {
				r.logger.Info("target revision does not exist for scheduled transition", "transition_id", job.ID)
				return nil, fmt.Errorf("%w for scheduled transition %s", api.ErrMissingRevision, job.ID)
			}
			return nil, err
		}

		if job.Language != "" {
			if tr, ok := rev.(api.Translatable); ok && tr.HasVariant(job.Language) {
				rev = tr.Variant(job.Language)
			}
		}

		return rev, nil
	}

	for _, resolver := range r.resolvers {
		rev, err := resolver.TargetRevision(ctx, job, doc)
		if err != nil {
			return nil, err
		}
		if rev != nil {
			return rev, nil
		}
	}

	r.logger.Info("target revision does not exist for scheduled transition", "transition_id", job.ID)
	return nil, fmt.Errorf("%w for scheduled transition %s", api.ErrMissingRevision, job.ID)
}

// transition applies the state change and persists the resulting revisions.
// All decision inputs are read before any write: in particular, whether the
// former latest revision was published, and whether the target IS the
// latest, must reflect the chain as it was when the call started, because
// the first save changes what "latest" means.
func (r *runnerImpl) transition(ctx context.Context, job *api.ScheduledTransition, doc *api.Document, target, latest api.Revision) error {
	wf, err := r.workflows.GetWorkflow(doc.WorkflowID)
	if err != nil {
		if !errors.Is(err, persistence.ErrWorkflowNotFound) {
			return err
		}
		// Unknown workflow: state ids are applied verbatim and labels fall
		// back to placeholders.
		wf = api.Workflow{ID: doc.WorkflowID}
	}

	wasLatestPublished := wf.StateOrPlaceholder(latest.State()).Published
	newIsLatest := target.RevisionID() == latest.RevisionID()

	newState := wf.StateOrPlaceholder(job.StateID)
	originalTargetState := wf.StateOrPlaceholder(target.State())
	originalLatestState := wf.StateOrPlaceholder(latest.State())

	tokens := api.TokenData{
		ToState:          newState.Label,
		FromState:        originalTargetState.Label,
		LatestState:      originalLatestState.Label,
		FromRevisionID:   target.RevisionID(),
		LatestRevisionID: latest.RevisionID(),
	}

	target.SetState(newState.ID)
	now := r.now()

	if newIsLatest {
		// Publishing the latest revision: only the state changes.
		r.logger.Info("transitioning latest revision",
			"transition_id", job.ID,
			"from_state", originalTargetState.Label,
			"to_state", newState.Label,
		)
		r.stamp(target, r.templates.TransitionLatest, tokens, now)

		id, err := r.docs.SaveAsNewRevision(ctx, doc.ID, target)
		if err != nil {
			return err
		}
		r.observer.OnRevisionSaved(ctx, job, id)
		return nil
	}

	// Publishing a revision not on head: copy it forward as the new latest.
	r.logger.Info("copied revision",
		"transition_id", job.ID,
		"revision_id", tokens.FromRevisionID,
		"from_state", originalTargetState.Label,
		"to_state", newState.Label,
	)
	r.stamp(target, r.templates.TransitionHistorical, tokens, now)

	id, err := r.docs.SaveAsNewRevision(ctx, doc.ID, target)
	if err != nil {
		return err
	}
	r.observer.OnRevisionSaved(ctx, job, id)

	// If the old head was not published (e.g. a draft), pull it back on
	// top so it is not buried under the promoted revision. A published
	// head is never resurrected this way.
	if job.RecreateNonDefaultHead() && !wasLatestPublished {
		r.logger.Info("reverted revision back to top",
			"transition_id", job.ID,
			"state", originalLatestState.Label,
			"revision_id", tokens.LatestRevisionID,
		)
		r.stamp(latest, r.templates.CopyLatestDraft, tokens, now)

		restoredID, err := r.docs.SaveAsNewRevision(ctx, doc.ID, latest)
		if err != nil {
			return err
		}
		r.observer.OnRevisionSaved(ctx, job, restoredID)
	}

	return nil
}

// stamp assigns the audit log message and creation timestamp when the
// revision supports audit logging; other revisions are saved state-only.
func (r *runnerImpl) stamp(rev api.Revision, template string, tokens api.TokenData, now time.Time) {
	logRev, ok := rev.(api.RevisionLogger)
	if !ok {
		return
	}
	logRev.SetLogMessage(api.RenderMessage(template, tokens))
	logRev.SetCreatedAt(now)
}

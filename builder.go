package revisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/revisor/pkg/api"
)

// TransitionBuilder provides a fluent API for creating scheduled
// transitions:
//
//	job := revisor.Schedule("page-1").
//	    Revision(42).
//	    To("published").
//	    At(publishTime).
//	    By("editor@example.com").
//	    Build()
//
//	if err := p.Jobs.SaveJob(ctx, job); err != nil { ... }
type TransitionBuilder struct {
	job api.ScheduledTransition
}

// Schedule starts building a scheduled transition for the given document.
func Schedule(documentID string) *TransitionBuilder {
	return &TransitionBuilder{
		job: api.ScheduledTransition{
			DocumentID: documentID,
		},
	}
}

// Revision sets the target revision id. Leaving it unset (or passing 0)
// defers target selection to the runner's resolver chain at execution time.
func (b *TransitionBuilder) Revision(id int64) *TransitionBuilder {
	b.job.RevisionID = id
	return b
}

// To sets the target workflow state.
func (b *TransitionBuilder) To(stateID string) *TransitionBuilder {
	b.job.StateID = stateID
	return b
}

// At sets the time at or after which the transition becomes due.
func (b *TransitionBuilder) At(t time.Time) *TransitionBuilder {
	b.job.TransitionOn = t
	return b
}

// By records who scheduled the transition.
func (b *TransitionBuilder) By(author string) *TransitionBuilder {
	b.job.Author = author
	return b
}

// Workflow sets the workflow id. Usually redundant with the document's
// workflow, but recorded on the job so it survives document edits.
func (b *TransitionBuilder) Workflow(id string) *TransitionBuilder {
	b.job.WorkflowID = id
	return b
}

// Language narrows the transition to a specific language variant of the
// target revision.
func (b *TransitionBuilder) Language(lang string) *TransitionBuilder {
	b.job.Language = lang
	return b
}

// RecreateNonDefaultHead requests that an unpublished head revision be
// restored on top after a historical revision is promoted over it.
func (b *TransitionBuilder) RecreateNonDefaultHead() *TransitionBuilder {
	b.job.SetOption(api.OptionRecreateNonDefaultHead, true)
	return b
}

// Option sets an arbitrary option on the transition.
func (b *TransitionBuilder) Option(key string, value any) *TransitionBuilder {
	b.job.SetOption(key, value)
	return b
}

// Build finalizes the transition, assigning it a fresh id.
// It panics when the document id or target state is empty; those are
// programming errors, not runtime conditions.
func (b *TransitionBuilder) Build() *ScheduledTransition {
	if b.job.DocumentID == "" {
		panic("revisor: scheduled transition has no document id")
	}
	if b.job.StateID == "" {
		panic(fmt.Sprintf("revisor: scheduled transition for document %q has no target state", b.job.DocumentID))
	}

	job := b.job
	job.ID = uuid.NewString()
	if job.Options != nil {
		opts := make(map[string]any, len(job.Options))
		for k, v := range job.Options {
			opts[k] = v
		}
		job.Options = opts
	}
	return &job
}

// BuildAndSave builds the transition and saves it in one step.
func (b *TransitionBuilder) BuildAndSave(ctx context.Context, jobs JobStore) (*ScheduledTransition, error) {
	job := b.Build()
	if err := jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

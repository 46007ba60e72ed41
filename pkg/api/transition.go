package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(map[string]any{})
}

// OptionRecreateNonDefaultHead is the options-bag key controlling whether a
// previously-unpublished head revision is re-appended on top of a newly
// promoted historical revision, so it is not buried.
const OptionRecreateNonDefaultHead = "recreate_non_default_head"

// ScheduledTransition is a work order: at TransitionOn, move revision
// RevisionID of document DocumentID into state StateID.
//
// The runner treats it as read-only, except that it deletes the record when
// (and only when) execution fully succeeds.
type ScheduledTransition struct {
	ID         string
	DocumentID string

	// RevisionID is the target revision. Zero means the target is resolved
	// dynamically through the runner's resolver chain.
	RevisionID int64

	// Language optionally selects a language variant of the target revision.
	Language string

	// StateID is the workflow state the target revision transitions into.
	StateID string

	// TransitionOn is when the transition becomes due.
	TransitionOn time.Time

	// Author references whoever scheduled the transition.
	Author string

	// WorkflowID references the workflow the transition was scheduled
	// against.
	WorkflowID string

	// Options is an open bag of execution options.
	Options map[string]any
}

// RecreateNonDefaultHead reports whether the recreate-non-default-head
// option is set.
func (t *ScheduledTransition) RecreateNonDefaultHead() bool {
	v, _ := t.Options[OptionRecreateNonDefaultHead].(bool)
	return v
}

// SetOption sets a single option, allocating the bag if needed.
func (t *ScheduledTransition) SetOption(key string, value any) {
	if t.Options == nil {
		t.Options = make(map[string]any)
	}
	t.Options[key] = value
}

package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(&BasicRevision{})
}

// Revision is one state-labeled snapshot of a Document.
//
// Revisions are immutable once stored: the runner never updates a stored
// revision, it only derives new revisions from existing ones. The setters
// below mutate the in-memory value a store handed out (stores always hand
// out copies) before it is saved back as a brand-new revision.
type Revision interface {
	// RevisionID returns the store-assigned, monotonically increasing id.
	// Zero means the revision has not been stored yet.
	RevisionID() int64

	// SetRevisionID is called by stores when assigning an id on save.
	SetRevisionID(id int64)

	// State returns the workflow state id labeling this revision.
	State() string

	// SetState relabels the revision with a new workflow state id.
	SetState(id string)

	// Clone returns a deep copy. Stores use it so that handed-out
	// revisions can be mutated without affecting stored history.
	Clone() Revision
}

// RevisionLogger is implemented by revisions that carry an audit trail.
// Revisions without it are saved state-only, with no log message or
// creation timestamp assigned.
type RevisionLogger interface {
	LogMessage() string
	SetLogMessage(msg string)
	CreatedAt() time.Time
	SetCreatedAt(t time.Time)
}

// Translatable is implemented by revisions that hold language variants.
// A variant is a language-specific view sharing the revision's id.
type Translatable interface {
	HasVariant(language string) bool
	Variant(language string) Revision
}

// BasicRevision is the concrete Revision shipped with revisor. It supports
// audit logging and language variants; callers with different needs can
// implement Revision themselves (custom types must be gob-registered to be
// used with the persistent stores).
type BasicRevision struct {
	ID       int64
	StateID  string
	Log      string
	Created  time.Time
	Language string

	// Fields is an arbitrary bag of content fields carried along verbatim
	// when the revision is copied forward.
	Fields map[string]any

	// Variants maps language codes to language-specific views.
	Variants map[string]*BasicRevision
}

var (
	_ Revision       = (*BasicRevision)(nil)
	_ RevisionLogger = (*BasicRevision)(nil)
	_ Translatable   = (*BasicRevision)(nil)
)

// NewBasicRevision creates an unsaved revision labeled with the given state.
func NewBasicRevision(state string) *BasicRevision {
	return &BasicRevision{
		StateID: state,
		Fields:  make(map[string]any),
	}
}

func (r *BasicRevision) RevisionID() int64 { return r.ID }

func (r *BasicRevision) SetRevisionID(id int64) {
	r.ID = id
	// Variants are views of the same revision and share its id.
	for _, v := range r.Variants {
		v.ID = id
	}
}

func (r *BasicRevision) State() string      { return r.StateID }
func (r *BasicRevision) SetState(id string) { r.StateID = id }

func (r *BasicRevision) LogMessage() string       { return r.Log }
func (r *BasicRevision) SetLogMessage(msg string) { r.Log = msg }
func (r *BasicRevision) CreatedAt() time.Time     { return r.Created }
func (r *BasicRevision) SetCreatedAt(t time.Time) { r.Created = t }

func (r *BasicRevision) HasVariant(language string) bool {
	_, ok := r.Variants[language]
	return ok
}

func (r *BasicRevision) Variant(language string) Revision {
	v, ok := r.Variants[language]
	if !ok {
		return nil
	}
	return v
}

// Clone returns a deep copy of the revision, including fields and variants.
func (r *BasicRevision) Clone() Revision {
	out := *r
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	if r.Variants != nil {
		out.Variants = make(map[string]*BasicRevision, len(r.Variants))
		for lang, v := range r.Variants {
			c := v.Clone().(*BasicRevision)
			out.Variants[lang] = c
		}
	}
	return &out
}

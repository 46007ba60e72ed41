package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/pkg/api"
)

var testClock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func editorialWorkflow() api.Workflow {
	return api.NewWorkflow("editorial", "Editorial",
		api.State{ID: "draft", Label: "Draft", Published: false},
		api.State{ID: "published", Label: "Published", Published: true},
		api.State{ID: "archived", Label: "Archived", Published: false},
	)
}

// fixture seeds a document with a chain of draft revisions and returns the
// store, the runner, and the revision ids in creation order.
func fixture(t *testing.T, states ...string) (*persistence.InMemoryStore, api.Runner, []int64) {
	t.Helper()
	ctx := context.Background()

	store := persistence.NewInMemoryStore()
	if err := store.SaveWorkflow(editorialWorkflow()); err != nil {
		t.Fatalf("save workflow: %v", err)
	}

	doc := &api.Document{ID: "doc-1", Kind: "article", WorkflowID: "editorial"}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}

	ids := make([]int64, 0, len(states))
	for _, state := range states {
		rev := api.NewBasicRevision(state)
		id, err := store.SaveAsNewRevision(ctx, doc.ID, rev)
		if err != nil {
			t.Fatalf("seed revision: %v", err)
		}
		ids = append(ids, id)
	}

	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{Persistence: p, Now: func() time.Time { return testClock }})
	return store, r, ids
}

func scheduleJob(t *testing.T, store *persistence.InMemoryStore, job *api.ScheduledTransition) {
	t.Helper()
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("save job: %v", err)
	}
}

func loadLog(t *testing.T, store *persistence.InMemoryStore, docID string, revID int64) string {
	t.Helper()
	rev, err := store.LoadRevision(context.Background(), docID, revID)
	if err != nil {
		t.Fatalf("load revision %d: %v", revID, err)
	}
	logRev, ok := rev.(api.RevisionLogger)
	if !ok {
		t.Fatalf("revision %d does not support log messages", revID)
	}
	return logRev.LogMessage()
}

func TestRunTransitionLatestRevision(t *testing.T) {
	ctx := context.Background()
	store, r, ids := fixture(t, "draft", "draft", "draft")

	job := &api.ScheduledTransition{
		ID:         "st-1",
		DocumentID: "doc-1",
		RevisionID: ids[2],
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	// Exactly one new revision, published, carrying the latest-template
	// message.
	revIDs, err := store.RevisionIDs(ctx, "doc-1")
	if err != nil {
		t.Fatalf("revision ids: %v", err)
	}
	if len(revIDs) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revIDs))
	}

	latestID, err := store.LatestRevisionID(ctx, "doc-1")
	if err != nil {
		t.Fatalf("latest revision id: %v", err)
	}
	latest, err := store.LoadRevision(ctx, "doc-1", latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "published" {
		t.Fatalf("expected published latest, got %q", latest.State())
	}

	want := "Scheduled transition: transitioning latest revision from Draft to Published"
	if got := loadLog(t, store, "doc-1", latestID); got != want {
		t.Fatalf("log message mismatch:\n got: %q\nwant: %q", got, want)
	}

	if _, err := store.GetJob(ctx, "st-1"); !errors.Is(err, persistence.ErrJobNotFound) {
		t.Fatalf("expected job to be deleted, got err=%v", err)
	}
}

func TestRunTransitionHistoricalRevision(t *testing.T) {
	ctx := context.Background()
	store, r, ids := fixture(t, "draft", "draft", "draft")

	job := &api.ScheduledTransition{
		ID:         "st-2",
		DocumentID: "doc-1",
		RevisionID: ids[1],
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	// The historical revision is copied forward as the new head; without
	// the recreate option the interrupted draft stays buried.
	revIDs, err := store.RevisionIDs(ctx, "doc-1")
	if err != nil {
		t.Fatalf("revision ids: %v", err)
	}
	if len(revIDs) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revIDs))
	}

	latestID, _ := store.LatestRevisionID(ctx, "doc-1")
	latest, err := store.LoadRevision(ctx, "doc-1", latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "published" {
		t.Fatalf("expected published latest, got %q", latest.State())
	}

	want := "Scheduled transition: copied revision #2 and changed from Draft to Published"
	if got := loadLog(t, store, "doc-1", latestID); got != want {
		t.Fatalf("log message mismatch:\n got: %q\nwant: %q", got, want)
	}

	// Originals are untouched.
	for _, id := range ids {
		rev, err := store.LoadRevision(ctx, "doc-1", id)
		if err != nil {
			t.Fatalf("load revision %d: %v", id, err)
		}
		if rev.State() != "draft" {
			t.Fatalf("revision %d changed state to %q", id, rev.State())
		}
	}
}

func TestRunTransitionRecreatesNonDefaultHead(t *testing.T) {
	ctx := context.Background()
	store, r, ids := fixture(t, "draft", "draft", "draft")

	job := &api.ScheduledTransition{
		ID:         "st-3",
		DocumentID: "doc-1",
		RevisionID: ids[1],
		StateID:    "published",
		WorkflowID: "editorial",
	}
	job.SetOption(api.OptionRecreateNonDefaultHead, true)
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	// Two new revisions: the promoted copy, then the restored draft head.
	revIDs, err := store.RevisionIDs(ctx, "doc-1")
	if err != nil {
		t.Fatalf("revision ids: %v", err)
	}
	if len(revIDs) != 5 {
		t.Fatalf("expected 5 revisions, got %d", len(revIDs))
	}

	promotedID := revIDs[3]
	promoted, err := store.LoadRevision(ctx, "doc-1", promotedID)
	if err != nil {
		t.Fatalf("load promoted: %v", err)
	}
	if promoted.State() != "published" {
		t.Fatalf("expected promoted revision published, got %q", promoted.State())
	}

	latestID, _ := store.LatestRevisionID(ctx, "doc-1")
	latest, err := store.LoadRevision(ctx, "doc-1", latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "draft" {
		t.Fatalf("expected restored draft head, got %q", latest.State())
	}

	want := "Scheduled transition: reverted Draft revision #3 back to top"
	if got := loadLog(t, store, "doc-1", latestID); got != want {
		t.Fatalf("log message mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestRunTransitionPublishedHeadIsNotRecreated(t *testing.T) {
	ctx := context.Background()
	store, r, ids := fixture(t, "draft", "draft", "published")

	job := &api.ScheduledTransition{
		ID:         "st-4",
		DocumentID: "doc-1",
		RevisionID: ids[0],
		StateID:    "archived",
		WorkflowID: "editorial",
	}
	job.SetOption(api.OptionRecreateNonDefaultHead, true)
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	// Former head was published, so the option must not resurrect it.
	revIDs, err := store.RevisionIDs(ctx, "doc-1")
	if err != nil {
		t.Fatalf("revision ids: %v", err)
	}
	if len(revIDs) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revIDs))
	}

	latestID, _ := store.LatestRevisionID(ctx, "doc-1")
	latest, err := store.LoadRevision(ctx, "doc-1", latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "archived" {
		t.Fatalf("expected archived head, got %q", latest.State())
	}
}

func TestRunTransitionMissingDocument(t *testing.T) {
	ctx := context.Background()
	store, r, _ := fixture(t, "draft")

	job := &api.ScheduledTransition{
		ID:         "st-missing-doc",
		DocumentID: "no-such-doc",
		RevisionID: 1,
		StateID:    "published",
	}
	scheduleJob(t, store, job)

	err := r.RunTransition(ctx, job)
	if !errors.Is(err, api.ErrMissingEntity) {
		t.Fatalf("expected ErrMissingEntity, got %v", err)
	}

	// Failed transitions keep their job so the condition is visible.
	if _, err := store.GetJob(ctx, job.ID); err != nil {
		t.Fatalf("expected job retained, got %v", err)
	}
}

func TestRunTransitionMissingRevision(t *testing.T) {
	ctx := context.Background()
	store, r, _ := fixture(t, "draft")

	job := &api.ScheduledTransition{
		ID:         "st-missing-rev",
		DocumentID: "doc-1",
		RevisionID: 9999,
		StateID:    "published",
	}
	scheduleJob(t, store, job)

	err := r.RunTransition(ctx, job)
	if !errors.Is(err, api.ErrMissingRevision) {
		t.Fatalf("expected ErrMissingRevision, got %v", err)
	}
	if _, err := store.GetJob(ctx, job.ID); err != nil {
		t.Fatalf("expected job retained, got %v", err)
	}
}

func TestRunTransitionMissingLatestRevision(t *testing.T) {
	store, r, _ := fixture(t)

	resolver := api.TargetResolverFunc(func(ctx context.Context, job *api.ScheduledTransition, doc *api.Document) (api.Revision, error) {
		return api.NewBasicRevision("draft"), nil
	})
	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r = NewWithConfig(Config{
		Persistence: p,
		Resolvers:   []api.TargetResolver{resolver},
		Now:         func() time.Time { return testClock },
	})

	job := &api.ScheduledTransition{
		ID:         "st-missing-latest",
		DocumentID: "doc-1",
		StateID:    "published",
	}
	scheduleJob(t, store, job)

	err := r.RunTransition(context.Background(), job)
	if !errors.Is(err, api.ErrMissingLatestRevision) {
		t.Fatalf("expected ErrMissingLatestRevision, got %v", err)
	}
	if _, err := store.GetJob(context.Background(), job.ID); err != nil {
		t.Fatalf("expected job retained, got %v", err)
	}
}

func TestRunTransitionDynamicResolverChain(t *testing.T) {
	ctx := context.Background()
	store, _, ids := fixture(t, "draft", "draft")

	var firstCalled, secondCalled bool
	first := api.TargetResolverFunc(func(ctx context.Context, job *api.ScheduledTransition, doc *api.Document) (api.Revision, error) {
		firstCalled = true
		return nil, nil
	})
	second := api.TargetResolverFunc(func(ctx context.Context, job *api.ScheduledTransition, doc *api.Document) (api.Revision, error) {
		secondCalled = true
		return store.LoadRevision(ctx, doc.ID, ids[0])
	})

	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{
		Persistence: p,
		Resolvers:   []api.TargetResolver{first, second},
		Now:         func() time.Time { return testClock },
	})

	job := &api.ScheduledTransition{
		ID:         "st-dynamic",
		DocumentID: "doc-1",
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}
	if !firstCalled || !secondCalled {
		t.Fatalf("resolver chain not consulted in order: first=%v second=%v", firstCalled, secondCalled)
	}

	latestID, _ := store.LatestRevisionID(ctx, "doc-1")
	latest, err := store.LoadRevision(ctx, "doc-1", latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "published" {
		t.Fatalf("expected published head, got %q", latest.State())
	}
}

func TestRunTransitionNoResolverMatch(t *testing.T) {
	ctx := context.Background()
	store, noResolvers, _ := fixture(t, "draft")

	none := api.TargetResolverFunc(func(ctx context.Context, job *api.ScheduledTransition, doc *api.Document) (api.Revision, error) {
		return nil, nil
	})
	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	abstaining := NewWithConfig(Config{Persistence: p, Resolvers: []api.TargetResolver{none}})

	job := &api.ScheduledTransition{
		ID:         "st-no-resolver",
		DocumentID: "doc-1",
		StateID:    "published",
	}
	scheduleJob(t, store, job)

	// An empty resolver chain and an all-abstaining chain behave the same.
	for _, r := range []api.Runner{noResolvers, abstaining} {
		err := r.RunTransition(ctx, job)
		if !errors.Is(err, api.ErrMissingRevision) {
			t.Fatalf("expected ErrMissingRevision, got %v", err)
		}
	}

	chain, err := store.RevisionIDs(ctx, "doc-1")
	if err != nil {
		t.Fatalf("revision ids: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("failed resolution must create no revisions, chain %v", chain)
	}
}

func TestRunTransitionLanguageVariant(t *testing.T) {
	ctx := context.Background()

	store := persistence.NewInMemoryStore()
	if err := store.SaveWorkflow(editorialWorkflow()); err != nil {
		t.Fatalf("save workflow: %v", err)
	}
	doc := &api.Document{ID: "doc-i18n", Kind: "article", WorkflowID: "editorial"}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}

	rev := api.NewBasicRevision("draft")
	rev.Language = "en"
	rev.Fields["title"] = "Hello"
	variant := api.NewBasicRevision("draft")
	variant.Language = "fi"
	variant.Fields["title"] = "Moi"
	rev.Variants = map[string]*api.BasicRevision{"fi": variant}

	id, err := store.SaveAsNewRevision(ctx, doc.ID, rev)
	if err != nil {
		t.Fatalf("seed revision: %v", err)
	}

	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{Persistence: p, Now: func() time.Time { return testClock }})

	job := &api.ScheduledTransition{
		ID:         "st-fi",
		DocumentID: doc.ID,
		RevisionID: id,
		Language:   "fi",
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	latestID, _ := store.LatestRevisionID(ctx, doc.ID)
	latest, err := store.LoadRevision(ctx, doc.ID, latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	basic, ok := latest.(*api.BasicRevision)
	if !ok {
		t.Fatalf("unexpected revision type %T", latest)
	}
	if basic.Language != "fi" {
		t.Fatalf("expected Finnish variant saved, got language %q", basic.Language)
	}
	if basic.Fields["title"] != "Moi" {
		t.Fatalf("expected variant fields, got %v", basic.Fields["title"])
	}
	if basic.State() != "published" {
		t.Fatalf("expected published variant, got %q", basic.State())
	}
}

// plainRevision has no audit log support; transitions must still succeed
// and simply skip the log message.
type plainRevision struct {
	ID      int64
	StateID string
}

func (p *plainRevision) RevisionID() int64      { return p.ID }
func (p *plainRevision) SetRevisionID(id int64) { p.ID = id }
func (p *plainRevision) State() string          { return p.StateID }
func (p *plainRevision) SetState(s string)      { p.StateID = s }
func (p *plainRevision) Clone() api.Revision    { c := *p; return &c }

func TestRunTransitionRevisionWithoutAuditLog(t *testing.T) {
	ctx := context.Background()

	store := persistence.NewInMemoryStore()
	if err := store.SaveWorkflow(editorialWorkflow()); err != nil {
		t.Fatalf("save workflow: %v", err)
	}
	doc := &api.Document{ID: "doc-plain", Kind: "article", WorkflowID: "editorial"}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	id, err := store.SaveAsNewRevision(ctx, doc.ID, &plainRevision{StateID: "draft"})
	if err != nil {
		t.Fatalf("seed revision: %v", err)
	}

	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{Persistence: p, Now: func() time.Time { return testClock }})

	job := &api.ScheduledTransition{
		ID:         "st-plain",
		DocumentID: doc.ID,
		RevisionID: id,
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	latestID, _ := store.LatestRevisionID(ctx, doc.ID)
	latest, err := store.LoadRevision(ctx, doc.ID, latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.State() != "published" {
		t.Fatalf("expected published head, got %q", latest.State())
	}
	if _, ok := latest.(api.RevisionLogger); ok {
		t.Fatalf("plainRevision unexpectedly implements RevisionLogger")
	}
}

func TestRunTransitionUnknownWorkflowUsesPlaceholders(t *testing.T) {
	ctx := context.Background()

	store := persistence.NewInMemoryStore()
	doc := &api.Document{ID: "doc-wf", Kind: "article", WorkflowID: "ghost"}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	id, err := store.SaveAsNewRevision(ctx, doc.ID, api.NewBasicRevision("draft"))
	if err != nil {
		t.Fatalf("seed revision: %v", err)
	}

	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{Persistence: p, Now: func() time.Time { return testClock }})

	job := &api.ScheduledTransition{
		ID:         "st-ghost",
		DocumentID: doc.ID,
		RevisionID: id,
		StateID:    "published",
		WorkflowID: "ghost",
	}
	scheduleJob(t, store, job)

	if err := r.RunTransition(ctx, job); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	latestID, _ := store.LatestRevisionID(ctx, doc.ID)
	latest, err := store.LoadRevision(ctx, doc.ID, latestID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	// State id applies verbatim even when the workflow is unknown; labels
	// degrade to placeholders.
	if latest.State() != "published" {
		t.Fatalf("expected verbatim state, got %q", latest.State())
	}
	want := "Scheduled transition: transitioning latest revision from [draft] to [published]"
	if got := loadLog(t, store, doc.ID, latestID); got != want {
		t.Fatalf("log message mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestRunTransitionObserverCallbacks(t *testing.T) {
	ctx := context.Background()
	store, _, ids := fixture(t, "draft", "draft")

	metrics := &api.BasicMetrics{}
	p := persistence.Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := NewWithConfig(Config{
		Persistence: p,
		Observer:    metrics,
		Now:         time.Now,
	})

	okJob := &api.ScheduledTransition{
		ID:         "st-obs-ok",
		DocumentID: "doc-1",
		RevisionID: ids[0],
		StateID:    "published",
		WorkflowID: "editorial",
	}
	scheduleJob(t, store, okJob)
	if err := r.RunTransition(ctx, okJob); err != nil {
		t.Fatalf("RunTransition: %v", err)
	}

	badJob := &api.ScheduledTransition{
		ID:         "st-obs-bad",
		DocumentID: "nope",
		RevisionID: 1,
		StateID:    "published",
	}
	if err := r.RunTransition(ctx, badJob); err == nil {
		t.Fatal("expected error for missing document")
	}

	snap := metrics.Snapshot()
	if snap.TransitionsStarted != 2 {
		t.Fatalf("expected 2 started, got %d", snap.TransitionsStarted)
	}
	if snap.TransitionsCompleted != 1 {
		t.Fatalf("expected 1 completed, got %d", snap.TransitionsCompleted)
	}
	if snap.TransitionsFailed != 1 {
		t.Fatalf("expected 1 failed, got %d", snap.TransitionsFailed)
	}
	if snap.RevisionsSaved != 1 {
		t.Fatalf("expected 1 revision saved, got %d", snap.RevisionsSaved)
	}
}

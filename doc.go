// Package revisor schedules and executes state transitions on versioned
// documents.
//
// Revisor is designed for content backends where documents carry a chain of
// revisions and a workflow (draft, published, archived, ...), and where
// editors want a particular revision to change state at a future point in
// time: publish this draft on Friday, archive the page at the end of the
// campaign. It runs fully in Go, supports multiple persistence backends,
// and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The revisor programming model is intentionally small:
//
//  1. Document and Revision
//  2. Workflow
//  3. ScheduledTransition
//  4. Runner
//  5. Scheduler
//
// # Document and Revision
//
// A Document is a lightweight identity record: an id, a kind, and the id of
// the workflow governing it. The content lives in Revisions, an append-only
// chain per document where one revision is designated the latest. Revision
// is an interface; BasicRevision is the batteries-included implementation,
// and custom types can opt into audit logging (RevisionLogger) and
// per-language variants (Translatable) by implementing the corresponding
// capability interfaces.
//
// # Workflow
//
// A Workflow names the states a document can be in and marks which of them
// are published. Workflows are registered with a WorkflowStore; transitions
// referencing unknown states still apply the state id verbatim, with
// placeholder labels in log messages.
//
// # ScheduledTransition
//
// A ScheduledTransition is the job record: which document, which revision
// (or zero for dynamic resolution), which target state, and when. Build
// them with the Schedule builder and save them to a JobStore.
//
// # Runner
//
// The Runner executes one scheduled transition: it loads the document, the
// target revision and the latest revision, applies the state change, and
// saves one or two new revisions depending on whether the target was the
// latest. On success the job is deleted; on failure the job is left in
// place so the run can be retried and the condition stays visible.
//
// # Scheduler
//
// The Scheduler polls a JobStore for due transitions and drives them
// through a Runner, taking a per-document lease for each execution so that
// multiple scheduler processes sharing a store never collide on the same
// document.
//
// # Backends
//
// Stores can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis (jobs and leases, paired with any DocumentStore)
//
// The store contracts are exported, so applications backed by their own
// content storage only need to implement DocumentStore and reuse the rest.
//
// # Quick start
//
//	r, p := revisor.NewInMemoryRunner()
//
//	wf := revisor.NewWorkflow("editorial", "Editorial",
//	    revisor.State{ID: "draft", Label: "Draft"},
//	    revisor.State{ID: "published", Label: "Published", Published: true},
//	)
//	_ = p.Workflows.SaveWorkflow(wf)
//
//	doc := &revisor.Document{ID: "page-1", Kind: "page", WorkflowID: "editorial"}
//	_ = p.Documents.SaveDocument(ctx, doc)
//	revID, _ := p.Documents.SaveAsNewRevision(ctx, doc.ID, revisor.NewBasicRevision("draft"))
//
//	job := revisor.Schedule(doc.ID).
//	    Revision(revID).
//	    To("published").
//	    At(time.Now().Add(24 * time.Hour)).
//	    By("editor@example.com").
//	    Build()
//	_ = p.Jobs.SaveJob(ctx, job)
//
//	sched := scheduler.New(r, p.Jobs, p.Leases, scheduler.Config{})
//	go sched.Run(ctx)
package revisor

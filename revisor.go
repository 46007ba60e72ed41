package revisor

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/internal/runner"
	"github.com/petrijr/revisor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Document             = api.Document
	Revision             = api.Revision
	BasicRevision        = api.BasicRevision
	RevisionLogger       = api.RevisionLogger
	Translatable         = api.Translatable
	Workflow             = api.Workflow
	State                = api.State
	ScheduledTransition  = api.ScheduledTransition
	Runner               = api.Runner
	TargetResolver       = api.TargetResolver
	TargetResolverFunc   = api.TargetResolverFunc
	MessageTemplates     = api.MessageTemplates
	TokenData            = api.TokenData
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export the store contracts so callers can plug in their own backends
// without importing internal packages.

type (
	DocumentStore = persistence.DocumentStore
	JobStore      = persistence.JobStore
	WorkflowStore = persistence.WorkflowStore
	Leaser        = persistence.Leaser
	Persistence   = persistence.Persistence
	InMemoryStore = persistence.InMemoryStore
	RunnerConfig  = runner.Config
)

// Re-export common helpers.

var (
	NewWorkflow             = api.NewWorkflow
	NewBasicRevision        = api.NewBasicRevision
	DefaultMessageTemplates = api.DefaultMessageTemplates
	RenderMessage           = api.RenderMessage
	NewLoggingObserver      = api.NewLoggingObserver
	NewCompositeObserver    = api.NewCompositeObserver
	NewInMemoryStore        = persistence.NewInMemoryStore
)

// Re-export the sentinel errors a transition can fail with, plus the store
// level not-found errors callers may need to test against.

var (
	ErrMissingEntity         = api.ErrMissingEntity
	ErrMissingRevision       = api.ErrMissingRevision
	ErrMissingLatestRevision = api.ErrMissingLatestRevision

	ErrDocumentNotFound = persistence.ErrDocumentNotFound
	ErrRevisionNotFound = persistence.ErrRevisionNotFound
	ErrJobNotFound      = persistence.ErrJobNotFound
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// OptionRecreateNonDefaultHead is the scheduled transition option that
// restores an unpublished head revision after a historical revision has
// been promoted over it.
const OptionRecreateNonDefaultHead = api.OptionRecreateNonDefaultHead

// Runner constructors
// These wrap the internal/runner and internal/persistence packages so
// external callers never need to import internal packages.

// NewInMemoryRunner returns a Runner backed entirely by in-memory stores,
// along with the persistence bundle for seeding documents and jobs.
// The bundle's four stores are all the same *InMemoryStore.
func NewInMemoryRunner() (Runner, Persistence) {
	store := persistence.NewInMemoryStore()
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	return runner.New(p), p
}

// NewInMemoryRunnerWithObserver returns an in-memory Runner with the given
// Observer.
func NewInMemoryRunnerWithObserver(obs Observer) (Runner, Persistence) {
	store := persistence.NewInMemoryStore()
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	return runner.NewWithConfig(runner.Config{Persistence: p, Observer: obs}), p
}

// NewSQLiteRunner returns a Runner that persists documents, revisions and
// scheduled transitions in a SQLite database. Workflow definitions are kept
// in-memory and must be re-registered on startup.
func NewSQLiteRunner(db *sql.DB) (Runner, Persistence, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, Persistence{}, err
	}
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	return runner.New(p), p, nil
}

// NewSQLiteRunnerWithObserver returns a SQLite-backed Runner with the given
// Observer.
func NewSQLiteRunnerWithObserver(db *sql.DB, obs Observer) (Runner, Persistence, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, Persistence{}, err
	}
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	return runner.NewWithConfig(runner.Config{Persistence: p, Observer: obs}), p, nil
}

// NewRedisRunner returns a Runner whose scheduled transitions and document
// leases live in Redis while documents and revisions stay in the given
// document store. Pass an *InMemoryStore (or any DocumentStore plus
// WorkflowStore implementation) for the content side.
func NewRedisRunner(client *redis.Client, docs DocumentStore, workflows WorkflowStore) (Runner, Persistence) {
	jobs := persistence.NewRedisJobStore(client, "")
	p := Persistence{Documents: docs, Jobs: jobs, Workflows: workflows, Leases: jobs}
	return runner.New(p), p
}

// NewRunner builds a Runner from an explicit configuration, for callers
// that need resolvers, custom templates, a specific clock or observer.
func NewRunner(cfg RunnerConfig) Runner {
	return runner.NewWithConfig(cfg)
}

// RunTransition executes a single scheduled transition immediately,
// bypassing due-time checks and leases. Most callers should use a
// Scheduler instead; this is the low-level entry point.
func RunTransition(ctx context.Context, r Runner, job *ScheduledTransition) error {
	return r.RunTransition(ctx, job)
}

package revisor

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/internal/runner"
	"github.com/petrijr/revisor/pkg/scheduler"
)

// SchedulerBundle wires together a Runner, its persistence, and a
// Scheduler that executes due transitions from the shared store.
type SchedulerBundle struct {
	Runner      Runner
	Scheduler   *scheduler.Scheduler
	Persistence Persistence
}

// NewSQLiteBundle constructs a durable Runner + Scheduler combo sharing the
// same SQLite database. Documents, revisions, scheduled transitions and
// leases are all persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:revisor.db?_journal=WAL")
//	bundle, err := revisor.NewSQLiteBundle(db, scheduler.Config{})
//	// register workflows on bundle.Persistence.Workflows
//	// schedule transitions via bundle.Persistence.Jobs
//	go bundle.Scheduler.Run(ctx)
func NewSQLiteBundle(db *sql.DB, cfg scheduler.Config) (*SchedulerBundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := runner.New(p)

	return &SchedulerBundle{
		Runner:      r,
		Scheduler:   scheduler.New(r, p.Jobs, p.Leases, cfg),
		Persistence: p,
	}, nil
}

// NewRedisBundle constructs a Runner + Scheduler combo with scheduled
// transitions and leases in Redis and document content in the given
// stores. Multiple processes pointing at the same Redis instance share the
// job queue safely through the lease protocol.
func NewRedisBundle(client *redis.Client, docs DocumentStore, workflows WorkflowStore, cfg scheduler.Config) *SchedulerBundle {
	jobs := persistence.NewRedisJobStore(client, "")
	p := Persistence{Documents: docs, Jobs: jobs, Workflows: workflows, Leases: jobs}
	r := runner.New(p)

	return &SchedulerBundle{
		Runner:      r,
		Scheduler:   scheduler.New(r, p.Jobs, p.Leases, cfg),
		Persistence: p,
	}
}

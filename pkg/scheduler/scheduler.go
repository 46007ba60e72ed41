// Package scheduler polls a job store for due scheduled transitions and
// executes them through a Runner, using per-document leases so that
// multiple scheduler processes sharing a store never run transitions for
// the same document concurrently.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/pkg/api"
)

// DefaultLockTTL is how long a scheduler holds a document lease while
// executing its transitions. Thirty minutes comfortably covers slow
// stores; a crashed scheduler's leases expire on their own.
const DefaultLockTTL = 30 * time.Minute

// DefaultPollInterval is how often Run checks for due jobs.
const DefaultPollInterval = time.Second

// Config configures a Scheduler. The zero value is usable; missing fields
// are filled with defaults by New.
type Config struct {
	// PollInterval is the delay between polls when no jobs are due.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// LockTTL is the lease duration taken on a document while its
	// transition runs. Defaults to DefaultLockTTL.
	LockTTL time.Duration

	// Owner identifies this scheduler instance in lease records.
	// Defaults to a random UUID.
	Owner string

	Logger *slog.Logger

	// Now is the clock used to decide which jobs are due.
	// Defaults to time.Now.
	Now func() time.Time
}

// Scheduler drives a Runner from a JobStore.
type Scheduler struct {
	runner api.Runner
	jobs   persistence.JobStore
	leases persistence.Leaser
	cfg    Config
}

// noopLeaser always grants. Used when no Leaser is configured, i.e. the
// caller guarantees a single scheduler instance.
type noopLeaser struct{}

func (noopLeaser) TryAcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (noopLeaser) RenewLease(ctx context.Context, documentID, owner string, ttl time.Duration) error {
	return nil
}
func (noopLeaser) ReleaseLease(ctx context.Context, documentID, owner string) error { return nil }

// New creates a Scheduler executing due jobs from jobs via runner,
// coordinating through leases. A nil leases disables per-document
// serialization; only safe with a single scheduler instance.
func New(runner api.Runner, jobs persistence.JobStore, leases persistence.Leaser, cfg Config) *Scheduler {
	if leases == nil {
		leases = noopLeaser{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		runner: runner,
		jobs:   jobs,
		leases: leases,
		cfg:    cfg,
	}
}

// Owner returns this scheduler's lease owner id.
func (s *Scheduler) Owner() string {
	return s.cfg.Owner
}

// ProcessOne executes the first due job whose document lease can be
// acquired. Returns (processed, error):
//   - processed == false, err == nil: no due job, or every due job's
//     document is leased by another scheduler.
//   - processed == true: a job was attempted; err is its outcome.
func (s *Scheduler) ProcessOne(ctx context.Context) (bool, error) {
	due, err := s.jobs.ListDue(ctx, s.cfg.Now())
	if err != nil {
		return false, err
	}

	for _, job := range due {
		acquired, err := s.leases.TryAcquireLease(ctx, job.DocumentID, s.cfg.Owner, s.cfg.LockTTL)
		if err != nil {
			return false, err
		}
		if !acquired {
			continue
		}

		// Re-check under the lease: another scheduler may have executed
		// and deleted the job after we listed it.
		if _, err := s.jobs.GetJob(ctx, job.ID); err != nil {
			if relErr := s.leases.ReleaseLease(ctx, job.DocumentID, s.cfg.Owner); relErr != nil {
				s.cfg.Logger.Warn("failed to release document lease",
					"document_id", job.DocumentID,
					"error", relErr,
				)
			}
			if errors.Is(err, persistence.ErrJobNotFound) {
				continue
			}
			return false, err
		}

		runErr := s.runner.RunTransition(ctx, job)
		if relErr := s.leases.ReleaseLease(ctx, job.DocumentID, s.cfg.Owner); relErr != nil {
			s.cfg.Logger.Warn("failed to release document lease",
				"document_id", job.DocumentID,
				"error", relErr,
			)
		}
		return true, runErr
	}

	return false, nil
}

// RunDue drains all currently due jobs, logging failures and continuing.
// Jobs whose documents are leased elsewhere are skipped this pass.
// Returns the number of successfully executed transitions.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	due, err := s.jobs.ListDue(ctx, s.cfg.Now())
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, job := range due {
		if err := ctx.Err(); err != nil {
			return executed, err
		}

		acquired, err := s.leases.TryAcquireLease(ctx, job.DocumentID, s.cfg.Owner, s.cfg.LockTTL)
		if err != nil {
			return executed, err
		}
		if !acquired {
			s.cfg.Logger.Debug("document leased by another scheduler, skipping",
				"transition_id", job.ID,
				"document_id", job.DocumentID,
			)
			continue
		}

		// Re-check under the lease: another scheduler may have executed
		// and deleted the job after we listed it.
		if _, err := s.jobs.GetJob(ctx, job.ID); err != nil {
			if relErr := s.leases.ReleaseLease(ctx, job.DocumentID, s.cfg.Owner); relErr != nil {
				s.cfg.Logger.Warn("failed to release document lease",
					"document_id", job.DocumentID,
					"error", relErr,
				)
			}
			if errors.Is(err, persistence.ErrJobNotFound) {
				continue
			}
			return executed, err
		}

		runErr := s.runner.RunTransition(ctx, job)
		if relErr := s.leases.ReleaseLease(ctx, job.DocumentID, s.cfg.Owner); relErr != nil {
			s.cfg.Logger.Warn("failed to release document lease",
				"document_id", job.DocumentID,
				"error", relErr,
			)
		}

		if runErr != nil {
			// The job stays in the store; it will be retried next pass.
			s.cfg.Logger.Error("scheduled transition failed",
				"transition_id", job.ID,
				"document_id", job.DocumentID,
				"error", runErr,
			)
			continue
		}
		executed++
	}

	return executed, nil
}

// Run polls for due jobs until ctx is cancelled. Each tick drains the due
// set with RunDue. Store errors are logged and polling continues.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunDue(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.cfg.Logger.Error("scheduler pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the transition runner for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay transition execution.
type Observer interface {
	// OnTransitionStart is called once when the runner picks up a
	// scheduled transition, before any store access.
	OnTransitionStart(ctx context.Context, job *ScheduledTransition)

	// OnRevisionSaved is called after each new revision is persisted.
	// A single transition saves one or two revisions.
	OnRevisionSaved(ctx context.Context, job *ScheduledTransition, revisionID int64)

	// OnTransitionCompleted is called after the job record has been
	// deleted, i.e. after full success.
	OnTransitionCompleted(ctx context.Context, job *ScheduledTransition, duration time.Duration)

	// OnTransitionFailed is called when execution fails at any stage.
	// The job record is still in the store when this fires.
	OnTransitionFailed(ctx context.Context, job *ScheduledTransition, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnTransitionStart(ctx context.Context, job *ScheduledTransition) {}
func (NoopObserver) OnRevisionSaved(ctx context.Context, job *ScheduledTransition, revisionID int64) {
}
func (NoopObserver) OnTransitionCompleted(ctx context.Context, job *ScheduledTransition, d time.Duration) {
}
func (NoopObserver) OnTransitionFailed(ctx context.Context, job *ScheduledTransition, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnTransitionStart(ctx context.Context, job *ScheduledTransition) {
	for _, o := range c.observers {
		o.OnTransitionStart(ctx, job)
	}
}

func (c *CompositeObserver) OnRevisionSaved(ctx context.Context, job *ScheduledTransition, revisionID int64) {
	for _, o := range c.observers {
		o.OnRevisionSaved(ctx, job, revisionID)
	}
}

func (c *CompositeObserver) OnTransitionCompleted(ctx context.Context, job *ScheduledTransition, d time.Duration) {
	for _, o := range c.observers {
		o.OnTransitionCompleted(ctx, job, d)
	}
}

func (c *CompositeObserver) OnTransitionFailed(ctx context.Context, job *ScheduledTransition, err error) {
	for _, o := range c.observers {
		o.OnTransitionFailed(ctx, job, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs transition lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnTransitionStart(ctx context.Context, job *ScheduledTransition) {
	o.Logger.InfoContext(ctx, "transition_start",
		slog.String("transition_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.String("state", job.StateID),
	)
}

func (o *LoggingObserver) OnRevisionSaved(ctx context.Context, job *ScheduledTransition, revisionID int64) {
	o.Logger.DebugContext(ctx, "revision_saved",
		slog.String("transition_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.Int64("revision_id", revisionID),
	)
}

func (o *LoggingObserver) OnTransitionCompleted(ctx context.Context, job *ScheduledTransition, d time.Duration) {
	o.Logger.InfoContext(ctx, "transition_completed",
		slog.String("transition_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnTransitionFailed(ctx context.Context, job *ScheduledTransition, err error) {
	o.Logger.ErrorContext(ctx, "transition_failed",
		slog.String("transition_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters for transitions and saved
// revisions. It implements Observer, and can be combined with
// LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	transitionsStarted   atomic.Int64
	transitionsCompleted atomic.Int64
	transitionsFailed    atomic.Int64
	revisionsSaved       atomic.Int64
	totalRunDuration     atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	TransitionsStarted   int64
	TransitionsCompleted int64
	TransitionsFailed    int64
	PendingTransitions   int64

	RevisionsSaved int64
	AvgRunDuration time.Duration
}

func (m *BasicMetrics) OnTransitionStart(ctx context.Context, job *ScheduledTransition) {
	m.transitionsStarted.Add(1)
}

func (m *BasicMetrics) OnRevisionSaved(ctx context.Context, job *ScheduledTransition, revisionID int64) {
	m.revisionsSaved.Add(1)
}

func (m *BasicMetrics) OnTransitionCompleted(ctx context.Context, job *ScheduledTransition, d time.Duration) {
	m.transitionsCompleted.Add(1)
	m.totalRunDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnTransitionFailed(ctx context.Context, job *ScheduledTransition, err error) {
	m.transitionsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.transitionsStarted.Load()
	completed := m.transitionsCompleted.Load()
	failed := m.transitionsFailed.Load()
	saved := m.revisionsSaved.Load()
	totalNs := m.totalRunDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		TransitionsStarted:   started,
		TransitionsCompleted: completed,
		TransitionsFailed:    failed,
		PendingTransitions:   started - completed - failed,
		RevisionsSaved:       saved,
		AvgRunDuration:       avg,
	}
}

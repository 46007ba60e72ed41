package revisor

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/revisor/internal/persistence"
	"github.com/petrijr/revisor/internal/runner"
	"github.com/petrijr/revisor/pkg/scheduler"
)

// LocalScheduler bundles an in-memory store, a Runner and a Scheduler to
// provide a simple single-process setup for development and tests.
//
// Typical usage:
//
//	local := revisor.NewLocalScheduler()
//	_ = local.Store.SaveWorkflow(wf)
//	_ = local.Store.SaveDocument(ctx, doc)
//
//	// Synchronous run (no polling involved):
//	err := local.Runner.RunTransition(ctx, job)
//
//	// Asynchronous run:
//	_ = local.Start(ctx, 2)
//	_ = local.Store.SaveJob(ctx, job)
//	...
//	local.Stop()
type LocalScheduler struct {
	// Store backs documents, jobs, workflows and leases in memory.
	Store *InMemoryStore

	// Runner executes individual transitions against Store.
	Runner Runner

	// Scheduler polls Store for due transitions. Useful for driving
	// execution by hand with ProcessOne or RunDue.
	Scheduler *scheduler.Scheduler

	cfg scheduler.Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalScheduler constructs a LocalScheduler with default scheduler
// config.
func NewLocalScheduler() *LocalScheduler {
	return NewLocalSchedulerWithConfig(scheduler.Config{})
}

// NewLocalSchedulerWithConfig constructs a LocalScheduler with the given
// scheduler configuration.
func NewLocalSchedulerWithConfig(cfg scheduler.Config) *LocalScheduler {
	store := persistence.NewInMemoryStore()
	p := Persistence{Documents: store, Jobs: store, Workflows: store, Leases: store}
	r := runner.New(p)

	return &LocalScheduler{
		Store:     store,
		Runner:    r,
		Scheduler: scheduler.New(r, store, store, cfg),
		cfg:       cfg,
	}
}

// Start launches 'concurrency' polling goroutines that execute due
// transitions until the context is cancelled via Stop. Each poller gets its
// own lease owner identity, so the document leases keep concurrent pollers
// off the same document.
//
// If Start is called more than once without Stop, it returns an error.
func (l *LocalScheduler) Start(ctx context.Context, concurrency int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return errors.New("revisor: LocalScheduler already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	l.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		s := l.Scheduler
		if i > 0 {
			// Fresh instance per extra poller; the zero Owner in cfg
			// yields a unique one.
			cfg := l.cfg
			cfg.Owner = ""
			s = scheduler.New(l.Runner, l.Store, l.Store, cfg)
		}

		go func() {
			defer l.wg.Done()
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("revisor: local scheduler stopped: %v", err)
			}
		}()
	}

	return nil
}

// Stop cancels the polling goroutines started by Start and waits for them
// to exit.
func (l *LocalScheduler) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.cancel = nil
	l.running = false
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
}

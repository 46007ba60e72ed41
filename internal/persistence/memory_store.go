package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/revisor/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// DocumentStore, JobStore, WorkflowStore and Leaser backed by maps.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[string]api.Document
	revisions map[string]map[int64]api.Revision
	chains    map[string][]int64
	latest    map[string]int64
	nextRevID int64
	jobs      map[string]*api.ScheduledTransition
	workflows map[string]api.Workflow
	leases    map[string]memLease
}

type memLease struct {
	owner   string
	expires time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		documents: make(map[string]api.Document),
		revisions: make(map[string]map[int64]api.Revision),
		chains:    make(map[string][]int64),
		latest:    make(map[string]int64),
		jobs:      make(map[string]*api.ScheduledTransition),
		workflows: make(map[string]api.Workflow),
		leases:    make(map[string]memLease),
	}
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ DocumentStore = (*InMemoryStore)(nil)
	_ JobStore      = (*InMemoryStore)(nil)
	_ WorkflowStore = (*InMemoryStore)(nil)
	_ Leaser        = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveDocument(ctx context.Context, doc *api.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = *doc
	return nil
}

func (s *InMemoryStore) LoadDocument(ctx context.Context, id string) (*api.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}

	return &doc, nil
}

func (s *InMemoryStore) LoadRevision(ctx context.Context, documentID string, revisionID int64) (api.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rev, ok := s.revisions[documentID][revisionID]
	if !ok {
		return nil, ErrRevisionNotFound
	}

	return rev.Clone(), nil
}

func (s *InMemoryStore) LatestRevisionID(ctx context.Context, documentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest[documentID], nil
}

func (s *InMemoryStore) SaveAsNewRevision(ctx context.Context, documentID string, rev api.Revision) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return 0, ErrDocumentNotFound
	}

	s.nextRevID++
	id := s.nextRevID
	rev.SetRevisionID(id)

	if s.revisions[documentID] == nil {
		s.revisions[documentID] = make(map[int64]api.Revision)
	}
	s.revisions[documentID][id] = rev.Clone()
	s.chains[documentID] = append(s.chains[documentID], id)
	s.latest[documentID] = id

	return id, nil
}

func (s *InMemoryStore) SaveInPlace(ctx context.Context, documentID string, rev api.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revisions[documentID][rev.RevisionID()]; !ok {
		return ErrRevisionNotFound
	}

	s.revisions[documentID][rev.RevisionID()] = rev.Clone()
	return nil
}

func (s *InMemoryStore) RevisionIDs(ctx context.Context, documentID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, len(s.chains[documentID]))
	copy(ids, s.chains[documentID])
	return ids, nil
}

func (s *InMemoryStore) SaveJob(ctx context.Context, job *api.ScheduledTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryStore) GetJob(ctx context.Context, id string) (*api.ScheduledTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	return job, nil
}

func (s *InMemoryStore) ListDue(ctx context.Context, now time.Time) ([]*api.ScheduledTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*api.ScheduledTransition
	for _, job := range s.jobs {
		if !job.TransitionOn.After(now) {
			due = append(due, job)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].TransitionOn.Equal(due[j].TransitionOn) {
			return due[i].ID < due[j].ID
		}
		return due[i].TransitionOn.Before(due[j].TransitionOn)
	})

	return due, nil
}

func (s *InMemoryStore) ListForDocument(ctx context.Context, documentID string) ([]*api.ScheduledTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.ScheduledTransition
	for _, job := range s.jobs {
		if job.DocumentID == documentID {
			out = append(out, job)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *InMemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}

	delete(s.jobs, id)
	return nil
}

func (s *InMemoryStore) SaveWorkflow(wf api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = wf
	return nil
}

func (s *InMemoryStore) GetWorkflow(id string) (api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return api.Workflow{}, ErrWorkflowNotFound
	}

	return wf, nil
}

func (s *InMemoryStore) TryAcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l, ok := s.leases[documentID]
	if ok && l.owner != owner && l.expires.After(now) {
		return false, nil
	}

	s.leases[documentID] = memLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) RenewLease(ctx context.Context, documentID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l, ok := s.leases[documentID]
	if !ok || l.owner != owner || !l.expires.After(now) {
		return errLeaseNotHeld
	}

	s.leases[documentID] = memLease{owner: owner, expires: now.Add(ttl)}
	return nil
}

func (s *InMemoryStore) ReleaseLease(ctx context.Context, documentID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[documentID]; ok && l.owner == owner {
		delete(s.leases, documentID)
	}
	return nil
}

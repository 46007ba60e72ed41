package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/petrijr/revisor/pkg/api"
)

// SQLiteStore persists documents, revisions and scheduled transitions in
// SQLite, and grants document leases through columns on the documents
// table. Workflow definitions are kept in-memory only and must be
// re-registered on process start.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB

	mu        sync.RWMutex
	workflows map[string]api.Workflow
}

// Ensure SQLiteStore implements the interfaces.
var (
	_ DocumentStore = (*SQLiteStore)(nil)
	_ JobStore      = (*SQLiteStore)(nil)
	_ WorkflowStore = (*SQLiteStore)(nil)
	_ Leaser        = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:        db,
		workflows: make(map[string]api.Workflow),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			latest_revision_id INTEGER NOT NULL DEFAULT 0,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS revisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			state TEXT NOT NULL,
			payload BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_revisions_document ON revisions(document_id, id);
		CREATE TABLE IF NOT EXISTS scheduled_transitions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			revision_id INTEGER NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			transition_on INTEGER NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			workflow_id TEXT NOT NULL DEFAULT '',
			options BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_due ON scheduled_transitions(transition_on, id);
		CREATE INDEX IF NOT EXISTS idx_transitions_document ON scheduled_transitions(document_id);
	`)
	return err
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *api.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, kind, workflow_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, workflow_id = excluded.workflow_id`,
		doc.ID,
		doc.Kind,
		doc.WorkflowID,
	)
	return err
}

func (s *SQLiteStore) LoadDocument(ctx context.Context, id string) (*api.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, workflow_id FROM documents WHERE id = ?`, id)

	var doc api.Document
	if err := row.Scan(&doc.ID, &doc.Kind, &doc.WorkflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	return &doc, nil
}

func (s *SQLiteStore) LoadRevision(ctx context.Context, documentID string, revisionID int64) (api.Revision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM revisions WHERE id = ? AND document_id = ?`,
		revisionID, documentID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}

	rev, err := DecodeRevision(payload)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, ErrRevisionNotFound
	}

	return rev, nil
}

func (s *SQLiteStore) LatestRevisionID(ctx context.Context, documentID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT latest_revision_id FROM documents WHERE id = ?`, documentID)

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrDocumentNotFound
		}
		return 0, err
	}

	return id, nil
}

func (s *SQLiteStore) SaveAsNewRevision(ctx context.Context, documentID string, rev api.Revision) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrDocumentNotFound
		}
		return 0, err
	}

	// The payload embeds the revision id, which is only known after the
	// insert, so insert first and fill the payload in the same tx.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (document_id, state, payload) VALUES (?, ?, NULL)`,
		documentID, rev.State())
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rev.SetRevisionID(id)

	payload, err := EncodeRevision(rev)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE revisions SET payload = ? WHERE id = ?`, payload, id); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET latest_revision_id = ? WHERE id = ?`, id, documentID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return id, nil
}

func (s *SQLiteStore) SaveInPlace(ctx context.Context, documentID string, rev api.Revision) error {
	payload, err := EncodeRevision(rev)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE revisions SET state = ?, payload = ? WHERE id = ? AND document_id = ?`,
		rev.State(), payload, rev.RevisionID(), documentID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRevisionNotFound
	}

	return nil
}

func (s *SQLiteStore) RevisionIDs(ctx context.Context, documentID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM revisions WHERE document_id = ? ORDER BY id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *api.ScheduledTransition) error {
	options, err := EncodeOptions(job.Options)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_transitions
			(id, document_id, revision_id, language, state, transition_on, author, workflow_id, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			revision_id = excluded.revision_id,
			language = excluded.language,
			state = excluded.state,
			transition_on = excluded.transition_on,
			author = excluded.author,
			workflow_id = excluded.workflow_id,
			options = excluded.options`,
		job.ID,
		job.DocumentID,
		job.RevisionID,
		job.Language,
		job.StateID,
		job.TransitionOn.UnixNano(),
		job.Author,
		job.WorkflowID,
		options,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*api.ScheduledTransition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, revision_id, language, state, transition_on, author, workflow_id, options
		FROM scheduled_transitions WHERE id = ?`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return job, nil
}

func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time) ([]*api.ScheduledTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, revision_id, language, state, transition_on, author, workflow_id, options
		FROM scheduled_transitions
		WHERE transition_on <= ?
		ORDER BY transition_on ASC, id ASC`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *SQLiteStore) ListForDocument(ctx context.Context, documentID string) ([]*api.ScheduledTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, revision_id, language, state, transition_on, author, workflow_id, options
		FROM scheduled_transitions
		WHERE document_id = ?
		ORDER BY transition_on ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_transitions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (s *SQLiteStore) SaveWorkflow(wf api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = wf
	return nil
}

func (s *SQLiteStore) GetWorkflow(id string) (api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return api.Workflow{}, ErrWorkflowNotFound
	}

	return wf, nil
}

func (s *SQLiteStore) TryAcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET lease_owner = ?, lease_expires = ?
		WHERE id = ? AND (lease_owner = '' OR lease_owner = ? OR lease_expires <= ?)`,
		owner,
		now.Add(ttl).UnixNano(),
		documentID,
		owner,
		now.UnixNano(),
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (s *SQLiteStore) RenewLease(ctx context.Context, documentID, owner string, ttl time.Duration) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET lease_expires = ?
		WHERE id = ? AND lease_owner = ? AND lease_expires > ?`,
		now.Add(ttl).UnixNano(),
		documentID,
		owner,
		now.UnixNano(),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errLeaseNotHeld
	}

	return nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, documentID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET lease_owner = '', lease_expires = 0
		WHERE id = ? AND lease_owner = ?`,
		documentID, owner)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*api.ScheduledTransition, error) {
	var (
		job          api.ScheduledTransition
		transitionOn int64
		options      []byte
	)

	if err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&job.RevisionID,
		&job.Language,
		&job.StateID,
		&transitionOn,
		&job.Author,
		&job.WorkflowID,
		&options,
	); err != nil {
		return nil, err
	}

	job.TransitionOn = time.Unix(0, transitionOn)

	opts, err := DecodeOptions(options)
	if err != nil {
		return nil, err
	}
	job.Options = opts

	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*api.ScheduledTransition, error) {
	var jobs []*api.ScheduledTransition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

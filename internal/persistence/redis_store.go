package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/revisor/pkg/api"
)

// RedisJobStore is a JobStore (and document Leaser) backed by Redis.
// It uses a simple key structure:
//
//	<prefix>job:<id>        => gob-encoded redisJobPayload
//	<prefix>idx:due         => ZSET of job IDs scored by transition time
//	<prefix>idx:doc:<doc>   => SET of job IDs targeting a given document
//	<prefix>lease:<doc>     => lease owner, expiring with the lease TTL
//
// The indexes are always updated on Save/Delete; ListDue uses a score range
// query over the due index.
type RedisJobStore struct {
	client *redis.Client
	prefix string
}

var (
	_ JobStore = (*RedisJobStore)(nil)
	_ Leaser   = (*RedisJobStore)(nil)
)

type redisJobPayload struct {
	ID           string
	DocumentID   string
	RevisionID   int64
	Language     string
	State        string
	TransitionOn int64
	Author       string
	WorkflowID   string
	Options      []byte
}

// NewRedisJobStore creates a RedisJobStore.
// prefix is optional but recommended (e.g. "revisor:").
func NewRedisJobStore(client *redis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = "revisor:"
	}
	return &RedisJobStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisJobStore) keyJob(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisJobStore) keyDue() string {
	return s.prefix + "idx:due"
}

func (s *RedisJobStore) keyDocument(documentID string) string {
	return s.prefix + "idx:doc:" + documentID
}

func (s *RedisJobStore) keyLease(documentID string) string {
	return s.prefix + "lease:" + documentID
}

func encodeRedisJob(job *api.ScheduledTransition) ([]byte, error) {
	options, err := EncodeOptions(job.Options)
	if err != nil {
		return nil, err
	}

	payload := redisJobPayload{
		ID:           job.ID,
		DocumentID:   job.DocumentID,
		RevisionID:   job.RevisionID,
		Language:     job.Language,
		State:        job.StateID,
		TransitionOn: job.TransitionOn.UnixNano(),
		Author:       job.Author,
		WorkflowID:   job.WorkflowID,
		Options:      options,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisJob(data []byte) (*api.ScheduledTransition, error) {
	if len(data) == 0 {
		return nil, ErrJobNotFound
	}
	var payload redisJobPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	options, err := DecodeOptions(payload.Options)
	if err != nil {
		return nil, err
	}

	return &api.ScheduledTransition{
		ID:           payload.ID,
		DocumentID:   payload.DocumentID,
		RevisionID:   payload.RevisionID,
		Language:     payload.Language,
		StateID:      payload.State,
		TransitionOn: time.Unix(0, payload.TransitionOn),
		Author:       payload.Author,
		WorkflowID:   payload.WorkflowID,
		Options:      options,
	}, nil
}

func (s *RedisJobStore) SaveJob(ctx context.Context, job *api.ScheduledTransition) error {
	data, err := encodeRedisJob(job)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyJob(job.ID), data, 0).Err(); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.keyDue(), redis.Z{
		Score:  float64(job.TransitionOn.UnixNano()),
		Member: job.ID,
	})
	pipe.SAdd(ctx, s.keyDocument(job.DocumentID), job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) GetJob(ctx context.Context, id string) (*api.ScheduledTransition, error) {
	data, err := s.client.Get(ctx, s.keyJob(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return decodeRedisJob(data)
}

func (s *RedisJobStore) ListDue(ctx context.Context, now time.Time) ([]*api.ScheduledTransition, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keyDue(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixNano(), 10),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	return s.loadJobs(ctx, ids)
}

func (s *RedisJobStore) ListForDocument(ctx context.Context, documentID string) ([]*api.ScheduledTransition, error) {
	ids, err := s.client.SMembers(ctx, s.keyDocument(documentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	return s.loadJobs(ctx, ids)
}

func (s *RedisJobStore) loadJobs(ctx context.Context, ids []string) ([]*api.ScheduledTransition, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyJob(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var jobs []*api.ScheduledTransition
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Stale index entry for a deleted job.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		job, err := decodeRedisJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (s *RedisJobStore) DeleteJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyJob(id))
	pipe.ZRem(ctx, s.keyDue(), id)
	pipe.SRem(ctx, s.keyDocument(job.DocumentID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// TryAcquireLease acquires the document lease with SET NX and the lease TTL
// as key expiry. Re-acquisition by the current owner refreshes the TTL.
func (s *RedisJobStore) TryAcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyLease(documentID), owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	current, err := s.client.Get(ctx, s.keyLease(documentID)).Result()
	if err != nil {
		// Lease expired between SetNX and Get; treat as not acquired and
		// let the caller retry.
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if current != owner {
		return false, nil
	}

	// Re-entrant: refresh our own lease.
	if err := s.client.Set(ctx, s.keyLease(documentID), owner, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisJobStore) RenewLease(ctx context.Context, documentID, owner string, ttl time.Duration) error {
	current, err := s.client.Get(ctx, s.keyLease(documentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errLeaseNotHeld
		}
		return err
	}
	if current != owner {
		return errLeaseNotHeld
	}

	return s.client.Set(ctx, s.keyLease(documentID), owner, ttl).Err()
}

func (s *RedisJobStore) ReleaseLease(ctx context.Context, documentID, owner string) error {
	current, err := s.client.Get(ctx, s.keyLease(documentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if current != owner {
		return nil
	}

	return s.client.Del(ctx, s.keyLease(documentID)).Err()
}

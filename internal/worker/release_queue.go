package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/placebook/placebook/internal/pkg/logger"
)

const (
	// DefaultReleaseQueueKey is the Redis list holding pending image releases.
	DefaultReleaseQueueKey = "placebook:images:release"

	// MaxReleaseAttempts is how many times a release is tried before the
	// job is parked on the dead-letter list.
	MaxReleaseAttempts = 5
)

// ReleaseJob is an image whose release failed and should be retried.
type ReleaseJob struct {
	Ref        string    `json:"ref"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// raw is the entry as claimed, used to remove it from the processing list.
	raw string
}

// ReleaseQueue is a FIFO of ReleaseJobs stored in a Redis list. Claimed jobs
// sit in a processing list until they are acked, retried or buried, so a
// failed run never drops them. Owners touched by queued releases are tracked
// in a companion set so the janitor can audit them.
type ReleaseQueue struct {
	rdb *redis.Client
	key string
}

// NewReleaseQueue creates a queue under key, or DefaultReleaseQueueKey if
// key is empty.
func NewReleaseQueue(rdb *redis.Client, key string) *ReleaseQueue {
	if key == "" {
		key = DefaultReleaseQueueKey
	}
	return &ReleaseQueue{rdb: rdb, key: key}
}

func (q *ReleaseQueue) processingKey() string { return q.key + ":processing" }
func (q *ReleaseQueue) deadKey() string       { return q.key + ":dead" }
func (q *ReleaseQueue) ownersKey() string     { return q.key + ":owners" }

// Push appends job to the tail of the queue.
func (q *ReleaseQueue) Push(ctx context.Context, job ReleaseJob) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue release %s: %w", job.Ref, err)
	}
	return nil
}

func encodeJob(job ReleaseJob) ([]byte, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal release job: %w", err)
	}
	return data, nil
}

// Claim moves up to n jobs from the head of the queue to the processing
// list and returns them. Entries that do not decode are dropped and logged.
// On error the jobs already moved stay in the processing list for Recover.
func (q *ReleaseQueue) Claim(ctx context.Context, n int) ([]ReleaseJob, error) {
	var jobs []ReleaseJob
	for len(jobs) < n {
		raw, err := q.rdb.LMove(ctx, q.key, q.processingKey(), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return jobs, fmt.Errorf("claim release: %w", err)
		}
		var job ReleaseJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			logger.Warn("dropping malformed release job", "queue", q.key, "error", err)
			if err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
				return jobs, fmt.Errorf("drop malformed release: %w", err)
			}
			continue
		}
		job.raw = raw
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack removes a claimed job once its image is released.
func (q *ReleaseQueue) Ack(ctx context.Context, job ReleaseJob) error {
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack release %s: %w", job.Ref, err)
	}
	return nil
}

// Retry puts a claimed job back on the tail of the queue with its updated
// attempt count.
func (q *ReleaseQueue) Retry(ctx context.Context, job ReleaseJob) error {
	return q.settle(ctx, q.key, job, "requeue")
}

// DeadLetter parks a claimed job that will not be retried.
func (q *ReleaseQueue) DeadLetter(ctx context.Context, job ReleaseJob) error {
	return q.settle(ctx, q.deadKey(), job, "dead-letter")
}

// settle moves a claimed job to dest and drops its processing entry in one
// MULTI, so the job is in exactly one list whatever happens.
func (q *ReleaseQueue) settle(ctx context.Context, dest string, job ReleaseJob, op string) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, dest, data)
		if job.raw != "" {
			pipe.LRem(ctx, q.processingKey(), 1, job.raw)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s release %s: %w", op, job.Ref, err)
	}
	return nil
}

// Recover returns every job left in the processing list to the head of the
// queue, keeping their order. Only call it while no other consumer holds
// claimed jobs.
func (q *ReleaseQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processingKey(), q.key, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover releases: %w", err)
		}
		n++
	}
}

// Len returns the number of pending jobs, not counting claimed ones.
func (q *ReleaseQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// DeadLen returns the number of dead-lettered jobs.
func (q *ReleaseQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.deadKey()).Result()
}

// MarkOwner records that ownerID should be audited.
func (q *ReleaseQueue) MarkOwner(ctx context.Context, ownerID string) error {
	return q.rdb.SAdd(ctx, q.ownersKey(), ownerID).Err()
}

// PopOwners removes and returns up to n owners awaiting audit.
func (q *ReleaseQueue) PopOwners(ctx context.Context, n int) ([]string, error) {
	owners, err := q.rdb.SPopN(ctx, q.ownersKey(), int64(n)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return owners, err
}

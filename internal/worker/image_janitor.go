package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/distlock"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/service/place"
)

// =============================================================================
// IMAGE JANITOR: Retries Deferred Image Releases & Audits Owners
// =============================================================================
// Images whose release failed after a place was deleted sit in the release
// queue. The janitor claims them in batches, re-queues what still fails and
// dead-letters jobs that exhausted their attempts. Owners touched by those
// deletes are then checked for place list drift.
//
// A distributed lock keeps one janitor active per cluster. An expiring lock
// is renewed before every job and audit; the run stops once it is lost.
// Jobs claimed by a run that stopped early are recovered by the next one.

const (
	DefaultJanitorInterval  = time.Minute
	DefaultJanitorBatchSize = 100
	janitorReleaseTimeout   = 10 * time.Second
	janitorAuditTimeout     = 10 * time.Second
)

// JanitorOptions configures an ImageJanitor.
type JanitorOptions struct {
	Interval  time.Duration
	BatchSize int
	// Lock is optional; without it every janitor instance drains the queue
	// and may repeat a release another instance has in flight. Its TTL must
	// outlast one release or audit.
	Lock   distlock.DistLock
	Logger *logger.Logger
}

// JanitorStats summarizes one run.
type JanitorStats struct {
	Recovered    int
	Released     int
	Requeued     int
	DeadLettered int
	Audited      int
	Violations   int
	Skipped      bool
}

// ImageJanitor drains the release queue.
type ImageJanitor struct {
	queue    *ReleaseQueue
	images   place.ImageReleaser
	store    place.Store
	lock     distlock.DistLock
	interval time.Duration
	batch    int
	log      *logger.Logger
}

// NewImageJanitor creates a janitor. store may be nil to skip owner audits.
func NewImageJanitor(queue *ReleaseQueue, images place.ImageReleaser, store place.Store, opts JanitorOptions) *ImageJanitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultJanitorInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultJanitorBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &ImageJanitor{
		queue:    queue,
		images:   images,
		store:    store,
		lock:     opts.Lock,
		interval: opts.Interval,
		batch:    opts.BatchSize,
		log:      opts.Logger.With("component", "worker.image_janitor"),
	}
}

// Start runs the janitor until ctx is cancelled.
func (j *ImageJanitor) Start(ctx context.Context) {
	log.Printf("[ImageJanitor] Starting (interval=%s, batch_size=%d)", j.interval, j.batch)

	j.runAndLog(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ImageJanitor] Stopping")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *ImageJanitor) runAndLog(ctx context.Context) {
	stats, err := j.RunOnce(ctx)
	if err != nil {
		j.log.Error("janitor run failed", "error", err)
		return
	}
	if stats.Skipped {
		j.log.Debug("janitor lock held elsewhere")
		return
	}
	if stats.Recovered+stats.Released+stats.Requeued+stats.DeadLettered+stats.Audited > 0 {
		j.log.Info("janitor run complete",
			"recovered", stats.Recovered,
			"released", stats.Released,
			"requeued", stats.Requeued,
			"dead_lettered", stats.DeadLettered,
			"audited", stats.Audited,
			"violations", stats.Violations)
	}
}

// RunOnce recovers jobs left claimed by an earlier run, drains one batch and
// audits the owners marked so far.
func (j *ImageJanitor) RunOnce(ctx context.Context) (JanitorStats, error) {
	var stats JanitorStats
	run := func(ctx context.Context) error {
		n, err := j.queue.Recover(ctx)
		stats.Recovered = n
		if err != nil {
			return err
		}
		if err := j.drain(ctx, &stats); err != nil {
			return err
		}
		return j.auditOwners(ctx, &stats)
	}

	if j.lock == nil {
		return stats, run(ctx)
	}
	err := distlock.Do(ctx, j.lock, run)
	if errors.Is(err, distlock.ErrNotHeld) {
		stats.Skipped = true
		return stats, nil
	}
	return stats, err
}

func (j *ImageJanitor) drain(ctx context.Context, stats *JanitorStats) error {
	jobs, err := j.queue.Claim(ctx, j.batch)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := j.keepLock(ctx); err != nil {
			return err
		}

		rctx, cancel := context.WithTimeout(ctx, janitorReleaseTimeout)
		err := j.images.Release(rctx, job.Ref)
		cancel()
		if err == nil {
			if aerr := j.queue.Ack(ctx, job); aerr != nil {
				return aerr
			}
			stats.Released++
			continue
		}

		job.Attempts++
		job.LastError = err.Error()
		if errors.Is(err, imagestore.ErrInvalidRef) || job.Attempts >= MaxReleaseAttempts {
			if derr := j.queue.DeadLetter(ctx, job); derr != nil {
				return derr
			}
			j.log.Warn("image release dead-lettered", "image", job.Ref, "attempts", job.Attempts, "error", err)
			stats.DeadLettered++
			continue
		}
		if rerr := j.queue.Retry(ctx, job); rerr != nil {
			return rerr
		}
		stats.Requeued++
	}
	return nil
}

// keepLock renews an expiring lock before the next unit of work.
func (j *ImageJanitor) keepLock(ctx context.Context) error {
	ext, ok := j.lock.(distlock.Extender)
	if !ok {
		return nil
	}
	if err := ext.Extend(ctx); err != nil {
		return fmt.Errorf("janitor lock: %w", err)
	}
	return nil
}

func (j *ImageJanitor) auditOwners(ctx context.Context, stats *JanitorStats) error {
	if j.store == nil {
		return nil
	}
	owners, err := j.queue.PopOwners(ctx, j.batch)
	if err != nil {
		return err
	}
	for i, ownerID := range owners {
		if err := j.keepLock(ctx); err != nil {
			// Put back the owners this run will not reach.
			for _, rest := range owners[i:] {
				if merr := j.queue.MarkOwner(ctx, rest); merr != nil {
					j.log.Warn("could not re-mark owner", "owner_id", rest, "error", merr)
				}
			}
			return err
		}
		actx, cancel := context.WithTimeout(ctx, janitorAuditTimeout)
		err := place.CheckOwnerIntegrity(actx, j.store, ownerID)
		cancel()

		var ie *place.IntegrityError
		switch {
		case err == nil:
		case errors.As(err, &ie):
			stats.Violations++
			j.log.Error("owner integrity violation",
				"owner_id", ownerID, "dangling", ie.Dangling, "orphaned", ie.Orphaned)
		default:
			// Try again next run.
			if merr := j.queue.MarkOwner(ctx, ownerID); merr != nil {
				return merr
			}
			j.log.Warn("owner audit failed", "owner_id", ownerID, "error", err)
			continue
		}
		stats.Audited++
	}
	return nil
}

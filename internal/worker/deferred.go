package worker

import (
	"context"
	"errors"
	"time"

	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/service/place"
)

const enqueueTimeout = 5 * time.Second

// DeferredReleaser releases images through an image store and queues the
// ones that fail for the janitor. The original error is still returned so
// the caller can log it.
type DeferredReleaser struct {
	images place.ImageReleaser
	queue  *ReleaseQueue
	log    *logger.Logger
}

// NewDeferredReleaser wraps images. A nil log uses the default logger.
func NewDeferredReleaser(images place.ImageReleaser, queue *ReleaseQueue, log *logger.Logger) *DeferredReleaser {
	if log == nil {
		log = logger.Default()
	}
	return &DeferredReleaser{images: images, queue: queue, log: log.With("component", "worker.deferred_release")}
}

func (d *DeferredReleaser) Release(ctx context.Context, ref string) error {
	return d.ReleaseOwned(ctx, "", ref)
}

func (d *DeferredReleaser) ReleaseOwned(ctx context.Context, ownerID, ref string) error {
	err := d.images.Release(ctx, ref)
	if err == nil || errors.Is(err, imagestore.ErrInvalidRef) {
		return err
	}

	// The request context may already be spent.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	job := ReleaseJob{Ref: ref, OwnerID: ownerID, Attempts: 1, LastError: err.Error()}
	if qerr := d.queue.Push(qctx, job); qerr != nil {
		d.log.Error("could not defer image release", "image", ref, "error", qerr)
		return err
	}
	if ownerID != "" {
		if qerr := d.queue.MarkOwner(qctx, ownerID); qerr != nil {
			d.log.Warn("could not mark owner for audit", "owner_id", ownerID, "error", qerr)
		}
	}
	d.log.Info("image release deferred", "image", ref)
	return err
}

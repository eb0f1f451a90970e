package place

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/geocoder"
	"github.com/placebook/placebook/internal/pkg/logger"
)

// auditTimeout bounds the integrity re-read after a failed transaction.
const auditTimeout = 5 * time.Second

// CoordinatorOptions configures a Coordinator. Zero timeouts leave steps
// bounded only by the caller's context.
type CoordinatorOptions struct {
	GeocodeTimeout time.Duration
	StoreTimeout   time.Duration
	Images         ImageReleaser
	Logger         *logger.Logger
}

// Coordinator runs the create, update and delete protocols. It never retries.
type Coordinator struct {
	store          Store
	geo            geocoder.Resolver
	guard          Guard
	images         ImageReleaser
	geocodeTimeout time.Duration
	storeTimeout   time.Duration
	log            *logger.Logger
}

// NewCoordinator wires a Coordinator over store and geo.
func NewCoordinator(store Store, geo geocoder.Resolver, opts CoordinatorOptions) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Coordinator{
		store:          store,
		geo:            geo,
		images:         opts.Images,
		geocodeTimeout: opts.GeocodeTimeout,
		storeTimeout:   opts.StoreTimeout,
		log:            log.With("component", "place.coordinator"),
	}
}

// Create resolves the address, then inserts the place and attaches it to
// the principal in one transaction. draft.ID, draft.Location and
// draft.OwnerID are ignored.
func (c *Coordinator) Create(ctx context.Context, principalID string, draft domain.Place) (*domain.Place, error) {
	loc, err := c.resolve(ctx, draft.Address)
	if err != nil {
		return nil, err
	}

	owner, err := c.getUser(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrUserMissing) {
			return nil, fmt.Errorf("%w: %s", ErrOwnerNotFound, principalID)
		}
		return nil, err
	}

	p := &domain.Place{
		Title:       draft.Title,
		Description: draft.Description,
		Address:     draft.Address,
		Location:    loc,
		ImageRef:    draft.ImageRef,
		OwnerID:     owner.ID,
	}

	err = c.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertPlace(ctx, p); err != nil {
			return fmt.Errorf("insert place: %w", err)
		}
		if err := tx.AttachPlace(ctx, owner.ID, p.ID); err != nil {
			return fmt.Errorf("attach place %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		c.audit(ctx, owner.ID)
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	c.log.Info("place created", "place_id", p.ID, "owner_id", owner.ID)
	return p, nil
}

// Update changes title and description of a place the principal owns.
func (c *Coordinator) Update(ctx context.Context, principalID, placeID, title, description string) (*domain.Place, error) {
	p, err := c.getPlace(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if err := c.guard.Authorize(principalID, p); err != nil {
		return nil, err
	}

	p.Title = title
	p.Description = description

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.store.UpdatePlace(sctx, p); err != nil {
		if errors.Is(err, ErrPlaceMissing) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, placeID)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, storeErr(err))
	}
	return p, nil
}

// Delete removes a place the principal owns and detaches it from the owner
// in one transaction. The stored image is released after commit; a release
// failure is logged and does not fail the call.
func (c *Coordinator) Delete(ctx context.Context, principalID, placeID string) error {
	sctx, cancel := c.storeCtx(ctx)
	p, owner, err := c.store.GetPlaceWithOwner(sctx, placeID)
	cancel()
	switch {
	case errors.Is(err, ErrPlaceMissing):
		return fmt.Errorf("%w: %s", ErrNotFound, placeID)
	case errors.Is(err, ErrUserMissing) && p != nil:
		// Owner reference dangles. Authorize on the place alone so a
		// stranger still gets Forbidden, then refuse to touch it.
		if err := c.guard.Authorize(principalID, p); err != nil {
			return err
		}
		c.log.Error("place owner missing", "place_id", p.ID, "owner_id", p.OwnerID)
		return fmt.Errorf("%w: %w: owner %s missing", ErrDeleteFailed, ErrIntegrityViolation, p.OwnerID)
	case err != nil:
		return storeErr(err)
	}

	if err := c.guard.Authorize(principalID, p); err != nil {
		return err
	}

	imageRef := p.ImageRef

	err = c.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DeletePlace(ctx, p.ID); err != nil {
			return fmt.Errorf("delete place: %w", err)
		}
		if err := tx.DetachPlace(ctx, owner.ID, p.ID); err != nil {
			return fmt.Errorf("detach place %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		c.audit(ctx, owner.ID)
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	c.log.Info("place deleted", "place_id", p.ID, "owner_id", owner.ID)
	c.releaseImage(ctx, owner.ID, imageRef)
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, address string) (domain.Location, error) {
	if c.geocodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.geocodeTimeout)
		defer cancel()
	}
	loc, err := c.geo.Resolve(ctx, address)
	switch {
	case err == nil:
		return loc, nil
	case errors.Is(err, ErrAddressNotResolvable), errors.Is(err, ErrUpstreamUnavailable):
		return domain.Location{}, err
	default:
		return domain.Location{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

func (c *Coordinator) getPlace(ctx context.Context, id string) (*domain.Place, error) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	p, err := c.store.GetPlace(sctx, id)
	if err != nil {
		if errors.Is(err, ErrPlaceMissing) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, storeErr(err)
	}
	return p, nil
}

func (c *Coordinator) getUser(ctx context.Context, id string) (*domain.User, error) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	u, err := c.store.GetUser(sctx, id)
	if err != nil {
		if errors.Is(err, ErrUserMissing) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	return u, nil
}

func (c *Coordinator) inTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.WithTransaction(sctx, fn)
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout > 0 {
		return context.WithTimeout(ctx, c.storeTimeout)
	}
	return context.WithCancel(ctx)
}

// audit re-reads the owner after a failed transaction. The transaction
// should have left nothing behind; anything else is logged loudly.
func (c *Coordinator) audit(ctx context.Context, ownerID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	err := CheckOwnerIntegrity(actx, c.store, ownerID)
	switch {
	case err == nil:
	case errors.Is(err, ErrIntegrityViolation):
		c.log.Error("integrity check failed after rollback", "owner_id", ownerID, "error", err)
	default:
		c.log.Warn("integrity check skipped", "owner_id", ownerID, "error", err)
	}
}

func (c *Coordinator) releaseImage(ctx context.Context, ownerID, ref string) {
	if c.images == nil || ref == "" {
		return
	}
	timeout := c.storeTimeout
	if timeout <= 0 {
		timeout = auditTimeout
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	var err error
	if owned, ok := c.images.(OwnedReleaser); ok {
		err = owned.ReleaseOwned(rctx, ownerID, ref)
	} else {
		err = c.images.Release(rctx, ref)
	}
	if err != nil {
		c.log.Warn("image release failed", "image", ref, "error", err)
	}
}

// storeErr makes sure a store failure carries ErrStoreUnavailable, including
// deadline and cancellation errors surfaced by a driver.
func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

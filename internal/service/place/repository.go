package place

import (
	"context"

	"github.com/placebook/placebook/internal/domain"
)

// Store is the data access contract for places and users.
// Implementations must be safe for concurrent use. Store-level failures are
// wrapped with ErrStoreUnavailable; a malformed id is reported as missing.
type Store interface {
	// GetPlace returns ErrPlaceMissing if the place doesn't exist.
	GetPlace(ctx context.Context, id string) (*domain.Place, error)

	// GetPlaceWithOwner returns the place with its owner resolved.
	// ErrPlaceMissing if the place is absent; the place and ErrUserMissing
	// if the owner reference dangles.
	GetPlaceWithOwner(ctx context.Context, id string) (*domain.Place, *domain.User, error)

	// GetUser returns ErrUserMissing if the user doesn't exist.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// ListPlacesByOwner returns the owner's places in User.PlaceIDs order.
	// ErrUserMissing if the owner doesn't exist.
	ListPlacesByOwner(ctx context.Context, ownerID string) ([]domain.Place, error)

	// PlaceIDsByOwner returns the ids of places whose OwnerID is ownerID,
	// read from the places side only.
	PlaceIDsByOwner(ctx context.Context, ownerID string) ([]string, error)

	// UpdatePlace writes Title and Description. No other field is touched.
	UpdatePlace(ctx context.Context, p *domain.Place) error

	// CreateUser assigns u.ID. ErrEmailTaken if the email is registered.
	CreateUser(ctx context.Context, u *domain.User) error

	// WithTransaction runs fn in a transaction and commits only if fn
	// returns nil. fn must use tx for every write and must not call back
	// into the Store.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx holds the multi-document mutations. Only the Coordinator uses it.
type Tx interface {
	// InsertPlace assigns p.ID.
	InsertPlace(ctx context.Context, p *domain.Place) error
	// DeletePlace returns ErrPlaceMissing if the place doesn't exist.
	DeletePlace(ctx context.Context, id string) error
	// AttachPlace appends placeID to the user's PlaceIDs.
	AttachPlace(ctx context.Context, userID, placeID string) error
	// DetachPlace removes placeID from the user's PlaceIDs.
	DetachPlace(ctx context.Context, userID, placeID string) error
}

// ImageReleaser frees a stored image once nothing references it.
type ImageReleaser interface {
	Release(ctx context.Context, ref string) error
}

// OwnedReleaser is implemented by releasers that also want the id of the
// user the image's place belonged to. The coordinator prefers it when
// available.
type OwnedReleaser interface {
	ReleaseOwned(ctx context.Context, ownerID, ref string) error
}

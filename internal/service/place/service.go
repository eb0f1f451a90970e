package place

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/geocoder"
	"github.com/placebook/placebook/internal/pkg/logger"
)

// MinDescriptionLen is the shortest description accepted on create and update.
const MinDescriptionLen = 5

// Options configures a Service.
type Options struct {
	// EmptyListOK makes ListByOwner return an empty list for an owner
	// with no places instead of ErrNoPlacesFound.
	EmptyListOK bool

	GeocodeTimeout time.Duration
	StoreTimeout   time.Duration
	Images         ImageReleaser
	Logger         *logger.Logger
}

// Service is the public place API. Every error it returns is a *Failure.
// All public methods are safe for concurrent use if the underlying store is.
type Service struct {
	store       Store
	coord       *Coordinator
	emptyListOK bool
}

// NewService creates a place service backed by store and geo.
func NewService(store Store, geo geocoder.Resolver, opts Options) *Service {
	return &Service{
		store: store,
		coord: NewCoordinator(store, geo, CoordinatorOptions{
			GeocodeTimeout: opts.GeocodeTimeout,
			StoreTimeout:   opts.StoreTimeout,
			Images:         opts.Images,
			Logger:         opts.Logger,
		}),
		emptyListOK: opts.EmptyListOK,
	}
}

// CreateInput holds the fields for creating a place. ImageRef comes from the
// image store, never from the client.
type CreateInput struct {
	Title       string
	Description string
	Address     string
	ImageRef    string
}

// UpdateInput holds the mutable fields of a place.
type UpdateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GetPlace returns a single place.
func (s *Service) GetPlace(ctx context.Context, id string) (*domain.PlaceView, error) {
	p, err := s.coord.getPlace(ctx, id)
	if err != nil {
		return nil, Translate(err)
	}
	v := p.View()
	return &v, nil
}

// ListByOwner returns the user's places in the order they were added.
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]domain.PlaceView, error) {
	sctx, cancel := s.coord.storeCtx(ctx)
	defer cancel()

	places, err := s.store.ListPlacesByOwner(sctx, userID)
	switch {
	case errors.Is(err, ErrUserMissing):
		return nil, Translate(fmt.Errorf("%w: user %s", ErrNoPlacesFound, userID))
	case err != nil:
		return nil, Translate(storeErr(err))
	}

	if len(places) == 0 && !s.emptyListOK {
		return nil, Translate(fmt.Errorf("%w: user %s", ErrNoPlacesFound, userID))
	}

	views := make([]domain.PlaceView, 0, len(places))
	for i := range places {
		views = append(views, places[i].View())
	}
	return views, nil
}

// Create validates input and runs the create protocol for principalID.
func (s *Service) Create(ctx context.Context, principalID string, in CreateInput) (*domain.PlaceView, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)

	var problems []string
	if in.Title == "" {
		problems = append(problems, "title is required")
	}
	problems = append(problems, checkDescription(in.Description)...)
	if in.Address == "" {
		problems = append(problems, "address is required")
	}
	if in.ImageRef == "" {
		problems = append(problems, "image is required")
	}
	if len(problems) > 0 {
		return nil, Translate(validationError(problems))
	}

	p, err := s.coord.Create(ctx, principalID, domain.Place{
		Title:       in.Title,
		Description: in.Description,
		Address:     in.Address,
		ImageRef:    in.ImageRef,
	})
	if err != nil {
		return nil, Translate(err)
	}
	v := p.View()
	return &v, nil
}

// Update validates input and changes title and description of a place
// principalID owns.
func (s *Service) Update(ctx context.Context, principalID, id string, in UpdateInput) (*domain.PlaceView, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	var problems []string
	if in.Title == "" {
		problems = append(problems, "title is required")
	}
	problems = append(problems, checkDescription(in.Description)...)
	if len(problems) > 0 {
		return nil, Translate(validationError(problems))
	}

	p, err := s.coord.Update(ctx, principalID, id, in.Title, in.Description)
	if err != nil {
		return nil, Translate(err)
	}
	v := p.View()
	return &v, nil
}

// Delete removes a place principalID owns.
func (s *Service) Delete(ctx context.Context, principalID, id string) error {
	if err := s.coord.Delete(ctx, principalID, id); err != nil {
		return Translate(err)
	}
	return nil
}

func checkDescription(d string) []string {
	if utf8.RuneCountInString(d) < MinDescriptionLen {
		return []string{fmt.Sprintf("description must be at least %d characters", MinDescriptionLen)}
	}
	return nil
}

func validationError(problems []string) error {
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
}

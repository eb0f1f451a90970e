// Package memory is an in-process place.Store for tests and local runs.
//
// Transactions hold the write lock for their whole duration and work on a
// copy of the data that replaces the live maps only on commit, so readers
// never see a half-applied transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/service/place"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpGetPlace          Op = "GetPlace"
	OpGetPlaceWithOwner Op = "GetPlaceWithOwner"
	OpGetUser           Op = "GetUser"
	OpListPlaces        Op = "ListPlacesByOwner"
	OpPlaceIDsByOwner   Op = "PlaceIDsByOwner"
	OpUpdatePlace       Op = "UpdatePlace"
	OpCreateUser        Op = "CreateUser"
	OpBegin             Op = "Begin"
	OpInsertPlace       Op = "InsertPlace"
	OpDeletePlace       Op = "DeletePlace"
	OpAttachPlace       Op = "AttachPlace"
	OpDetachPlace       Op = "DetachPlace"
	OpCommit            Op = "Commit"
)

type state struct {
	places map[string]*domain.Place
	users  map[string]*domain.User
	emails map[string]string // normalized email -> user id
}

func newState() *state {
	return &state{
		places: make(map[string]*domain.Place),
		users:  make(map[string]*domain.User),
		emails: make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.places {
		cp := *p
		c.places[id] = &cp
	}
	for id, u := range s.users {
		c.users[id] = copyUser(u)
	}
	for e, id := range s.emails {
		c.emails[e] = id
	}
	return c
}

// Store implements place.Store in memory. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	data  *state
	fmu   sync.Mutex
	fails map[Op]error
}

var _ place.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), fails: make(map[Op]error)}
}

// FailOn makes the next call of op return err wrapped with
// place.ErrStoreUnavailable. Each injected failure fires once.
func (s *Store) FailOn(op Op, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.fails[op] = err
}

func (s *Store) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", place.ErrStoreUnavailable, op, err)
	}
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if err, ok := s.fails[op]; ok {
		delete(s.fails, op)
		return fmt.Errorf("%w: %s: %w", place.ErrStoreUnavailable, op, err)
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetPlace(ctx context.Context, id string) (*domain.Place, error) {
	if err := s.check(ctx, OpGetPlace); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.places[id]
	if !ok {
		return nil, place.ErrPlaceMissing
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPlaceWithOwner(ctx context.Context, id string) (*domain.Place, *domain.User, error) {
	if err := s.check(ctx, OpGetPlaceWithOwner); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.places[id]
	if !ok {
		return nil, nil, place.ErrPlaceMissing
	}
	cp := *p
	u, ok := s.data.users[p.OwnerID]
	if !ok {
		return &cp, nil, place.ErrUserMissing
	}
	return &cp, copyUser(u), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := s.check(ctx, OpGetUser); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, place.ErrUserMissing
	}
	return copyUser(u), nil
}

func (s *Store) ListPlacesByOwner(ctx context.Context, ownerID string) ([]domain.Place, error) {
	if err := s.check(ctx, OpListPlaces); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[ownerID]
	if !ok {
		return nil, place.ErrUserMissing
	}
	out := make([]domain.Place, 0, len(u.PlaceIDs))
	for _, id := range u.PlaceIDs {
		if p, ok := s.data.places[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) PlaceIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	if err := s.check(ctx, OpPlaceIDsByOwner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, p := range s.data.places {
		if p.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpdatePlace(ctx context.Context, p *domain.Place) error {
	if err := s.check(ctx, OpUpdatePlace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.places[p.ID]
	if !ok {
		return place.ErrPlaceMissing
	}
	stored.Title = p.Title
	stored.Description = p.Description
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := s.check(ctx, OpCreateUser); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := domain.NormalizeEmail(u.Email)
	if _, taken := s.data.emails[email]; taken {
		return place.ErrEmailTaken
	}
	u.ID = uuid.NewString()
	u.Email = email
	if u.PlaceIDs == nil {
		u.PlaceIDs = []string{}
	}
	s.data.users[u.ID] = copyUser(u)
	s.data.emails[email] = u.ID
	return nil
}

// WithTransaction runs fn against a private copy of the data and swaps it in
// if fn and the commit step succeed.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx place.Tx) error) error {
	if err := s.check(ctx, OpBegin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, data: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := s.check(ctx, OpCommit); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type memTx struct {
	store *Store
	data  *state
}

func (t *memTx) InsertPlace(ctx context.Context, p *domain.Place) error {
	if err := t.store.check(ctx, OpInsertPlace); err != nil {
		return err
	}
	p.ID = uuid.NewString()
	cp := *p
	t.data.places[p.ID] = &cp
	return nil
}

func (t *memTx) DeletePlace(ctx context.Context, id string) error {
	if err := t.store.check(ctx, OpDeletePlace); err != nil {
		return err
	}
	if _, ok := t.data.places[id]; !ok {
		return place.ErrPlaceMissing
	}
	delete(t.data.places, id)
	return nil
}

func (t *memTx) AttachPlace(ctx context.Context, userID, placeID string) error {
	if err := t.store.check(ctx, OpAttachPlace); err != nil {
		return err
	}
	u, ok := t.data.users[userID]
	if !ok {
		return place.ErrUserMissing
	}
	u.PlaceIDs = append(u.PlaceIDs, placeID)
	return nil
}

func (t *memTx) DetachPlace(ctx context.Context, userID, placeID string) error {
	if err := t.store.check(ctx, OpDetachPlace); err != nil {
		return err
	}
	u, ok := t.data.users[userID]
	if !ok {
		return place.ErrUserMissing
	}
	kept := u.PlaceIDs[:0]
	for _, id := range u.PlaceIDs {
		if id != placeID {
			kept = append(kept, id)
		}
	}
	u.PlaceIDs = kept
	return nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.PlaceIDs = append([]string(nil), u.PlaceIDs...)
	if cp.PlaceIDs == nil {
		cp.PlaceIDs = []string{}
	}
	return &cp
}

// SeedPlace stores p as-is without touching any user. It exists for
// fixtures that need a store in an inconsistent state.
func (s *Store) SeedPlace(p domain.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.data.places[p.ID] = &p
}

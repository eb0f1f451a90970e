package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/service/place"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PlaceStore implements place.Store against PostgreSQL.
type PlaceStore struct{ db *sql.DB }

var _ place.Store = (*PlaceStore)(nil)

// NewPlaceStore creates a Postgres-backed place store.
func NewPlaceStore(db *sql.DB) *PlaceStore { return &PlaceStore{db: db} }

// Ping checks the connection for health probes.
func (r *PlaceStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const placeColumns = `id, title, description, address, lat, lng, image, creator_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(row rowScanner) (*domain.Place, error) {
	p := &domain.Place{}
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Address,
		&p.Location.Lat, &p.Location.Lng, &p.ImageRef, &p.OwnerID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PlaceStore) GetPlace(ctx context.Context, id string) (*domain.Place, error) {
	if !validID(id) {
		return nil, place.ErrPlaceMissing
	}
	p, err := scanPlace(r.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, place.ErrPlaceMissing
	}
	if err != nil {
		return nil, storeErr("get place", err)
	}
	return p, nil
}

func (r *PlaceStore) GetPlaceWithOwner(ctx context.Context, id string) (*domain.Place, *domain.User, error) {
	if !validID(id) {
		return nil, nil, place.ErrPlaceMissing
	}

	p := &domain.Place{}
	var (
		userID, name, email, hash, image sql.NullString
		placeIDs                         pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT p.id, p.title, p.description, p.address, p.lat, p.lng, p.image, p.creator_id,
		       u.id, u.name, u.email, u.password_hash, u.image, u.place_ids
		FROM places p
		LEFT JOIN users u ON u.id = p.creator_id
		WHERE p.id = $1
	`, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.Address, &p.Location.Lat, &p.Location.Lng, &p.ImageRef, &p.OwnerID,
		&userID, &name, &email, &hash, &image, &placeIDs,
	)
	if err == sql.ErrNoRows {
		return nil, nil, place.ErrPlaceMissing
	}
	if err != nil {
		return nil, nil, storeErr("get place with owner", err)
	}
	if !userID.Valid {
		return p, nil, place.ErrUserMissing
	}

	u := &domain.User{
		ID:           userID.String,
		Name:         name.String,
		Email:        email.String,
		PasswordHash: hash.String,
		ImageRef:     image.String,
		PlaceIDs:     nonNil(placeIDs),
	}
	return p, u, nil
}

func (r *PlaceStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, place.ErrUserMissing
	}
	u := &domain.User{}
	var placeIDs pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, image, place_ids
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.ImageRef, &placeIDs)
	if err == sql.ErrNoRows {
		return nil, place.ErrUserMissing
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	u.PlaceIDs = nonNil(placeIDs)
	return u, nil
}

// ListPlacesByOwner joins through the owner's place_ids so the result keeps
// the order places were attached in.
func (r *PlaceStore) ListPlacesByOwner(ctx context.Context, ownerID string) ([]domain.Place, error) {
	if !validID(ownerID) {
		return nil, place.ErrUserMissing
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, ownerID,
	).Scan(&exists); err != nil {
		return nil, storeErr("check owner", err)
	}
	if !exists {
		return nil, place.ErrUserMissing
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.description, p.address, p.lat, p.lng, p.image, p.creator_id
		FROM users u
		CROSS JOIN LATERAL unnest(u.place_ids) WITH ORDINALITY AS l(place_id, ord)
		JOIN places p ON p.id = l.place_id
		WHERE u.id = $1
		ORDER BY l.ord
	`, ownerID)
	if err != nil {
		return nil, storeErr("list places", err)
	}
	defer rows.Close()

	places := []domain.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, storeErr("scan place", err)
		}
		places = append(places, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list places", err)
	}
	return places, nil
}

func (r *PlaceStore) PlaceIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	if !validID(ownerID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM places WHERE creator_id = $1`, ownerID)
	if err != nil {
		return nil, storeErr("place ids by owner", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan place id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("place ids by owner", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// UpdatePlace only writes title and description; owner, image, address and
// location are never part of the statement.
func (r *PlaceStore) UpdatePlace(ctx context.Context, p *domain.Place) error {
	if !validID(p.ID) {
		return place.ErrPlaceMissing
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE places SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Title, p.Description)
	if err != nil {
		return storeErr("update place", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return place.ErrPlaceMissing
	}
	return nil
}

func (r *PlaceStore) CreateUser(ctx context.Context, u *domain.User) error {
	u.ID = uuid.New().String()
	u.Email = domain.NormalizeEmail(u.Email)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, image, place_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}', NOW())
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.ImageRef)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return place.ErrEmailTaken
		}
		return storeErr("create user", err)
	}
	u.PlaceIDs = []string{}
	return nil
}

// WithTransaction runs fn inside BEGIN/COMMIT. Any error from fn, or from
// the commit, rolls the transaction back.
func (r *PlaceStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx place.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

type pgTx struct{ tx *sql.Tx }

func (t *pgTx) InsertPlace(ctx context.Context, p *domain.Place) error {
	p.ID = uuid.New().String()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO places (id, title, description, address, lat, lng, image, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, p.ID, p.Title, p.Description, p.Address, p.Location.Lat, p.Location.Lng, p.ImageRef, p.OwnerID)
	if err != nil {
		return storeErr("insert place", err)
	}
	return nil
}

func (t *pgTx) DeletePlace(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM places WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete place", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return place.ErrPlaceMissing
	}
	return nil
}

// AttachPlace appends in SQL so concurrent creates never overwrite each
// other's arrays.
func (t *pgTx) AttachPlace(ctx context.Context, userID, placeID string) error {
	return t.updatePlaceIDs(ctx, "attach place",
		`UPDATE users SET place_ids = array_append(place_ids, $2::uuid) WHERE id = $1`, userID, placeID)
}

func (t *pgTx) DetachPlace(ctx context.Context, userID, placeID string) error {
	return t.updatePlaceIDs(ctx, "detach place",
		`UPDATE users SET place_ids = array_remove(place_ids, $2::uuid) WHERE id = $1`, userID, placeID)
}

func (t *pgTx) updatePlaceIDs(ctx context.Context, op, query, userID, placeID string) error {
	res, err := t.tx.ExecContext(ctx, query, userID, placeID)
	if err != nil {
		return storeErr(op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return place.ErrUserMissing
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nonNil(ids pq.StringArray) []string {
	if ids == nil {
		return []string{}
	}
	return []string(ids)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, place.ErrStoreUnavailable, err)
}

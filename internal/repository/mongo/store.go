// Package mongo implements place.Store on MongoDB. Multi-document writes run
// in a session transaction, which needs a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/service/place"
)

const (
	placesCollection = "places"
	usersCollection  = "users"
)

// PlaceStore implements place.Store against MongoDB.
type PlaceStore struct {
	client *mongo.Client
	places *mongo.Collection
	users  *mongo.Collection
}

var _ place.Store = (*PlaceStore)(nil)

// Connect dials uri and returns the client. The caller disconnects it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewPlaceStore creates a store over the named database.
func NewPlaceStore(client *mongo.Client, database string) *PlaceStore {
	db := client.Database(database)
	return &PlaceStore{
		client: client,
		places: db.Collection(placesCollection),
		users:  db.Collection(usersCollection),
	}
}

// EnsureIndexes creates the unique email index and the creator index.
func (s *PlaceStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	_, err = s.places.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "creator", Value: 1}},
		Options: options.Index().SetName("places_creator_idx"),
	})
	if err != nil {
		return fmt.Errorf("create places creator index: %w", err)
	}
	return nil
}

// Ping checks the primary for health probes.
func (s *PlaceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *PlaceStore) GetPlace(ctx context.Context, id string) (*domain.Place, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, place.ErrPlaceMissing
	}
	var doc placeDoc
	err = s.places.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, place.ErrPlaceMissing
	}
	if err != nil {
		return nil, storeErr("get place", err)
	}
	return doc.toDomain(), nil
}

func (s *PlaceStore) GetPlaceWithOwner(ctx context.Context, id string) (*domain.Place, *domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, place.ErrPlaceMissing
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: oid}}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "creator"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "owner"},
		}}},
	}
	cur, err := s.places.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, nil, storeErr("get place with owner", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, nil, storeErr("get place with owner", err)
		}
		return nil, nil, place.ErrPlaceMissing
	}
	var doc placeWithOwner
	if err := cur.Decode(&doc); err != nil {
		return nil, nil, storeErr("decode place with owner", err)
	}

	p := doc.placeDoc.toDomain()
	if len(doc.Owner) == 0 {
		return p, nil, place.ErrUserMissing
	}
	return p, doc.Owner[0].toDomain(), nil
}

func (s *PlaceStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, place.ErrUserMissing
	}
	var doc userDoc
	err = s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, place.ErrUserMissing
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return doc.toDomain(), nil
}

// ListPlacesByOwner fetches the owner's places and orders them by the
// owner's places array.
func (s *PlaceStore) ListPlacesByOwner(ctx context.Context, ownerID string) ([]domain.Place, error) {
	owner, err := s.GetUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(owner.PlaceIDs) == 0 {
		return []domain.Place{}, nil
	}

	oids := make([]primitive.ObjectID, 0, len(owner.PlaceIDs))
	for _, id := range owner.PlaceIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}

	cur, err := s.places.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, storeErr("list places", err)
	}
	var docs []placeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr("list places", err)
	}
	return orderByIDs(docs, owner.PlaceIDs), nil
}

func orderByIDs(docs []placeDoc, order []string) []domain.Place {
	byID := make(map[string]*placeDoc, len(docs))
	for i := range docs {
		byID[docs[i].ID.Hex()] = &docs[i]
	}
	places := make([]domain.Place, 0, len(docs))
	for _, id := range order {
		if d, ok := byID[id]; ok {
			places = append(places, *d.toDomain())
			delete(byID, id)
		}
	}
	return places
}

func (s *PlaceStore) PlaceIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, nil
	}
	cur, err := s.places.Find(ctx, bson.M{"creator": oid},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, storeErr("place ids by owner", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr("place ids by owner", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID.Hex())
	}
	sort.Strings(ids)
	return ids, nil
}

// UpdatePlace $sets title and description only.
func (s *PlaceStore) UpdatePlace(ctx context.Context, p *domain.Place) error {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return place.ErrPlaceMissing
	}
	res, err := s.places.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"title":       p.Title,
		"description": p.Description,
	}})
	if err != nil {
		return storeErr("update place", err)
	}
	if res.MatchedCount == 0 {
		return place.ErrPlaceMissing
	}
	return nil
}

func (s *PlaceStore) CreateUser(ctx context.Context, u *domain.User) error {
	doc := userDoc{
		ID:       primitive.NewObjectID(),
		Name:     u.Name,
		Email:    domain.NormalizeEmail(u.Email),
		Password: u.PasswordHash,
		Image:    u.ImageRef,
		Places:   []primitive.ObjectID{},
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return place.ErrEmailTaken
		}
		return storeErr("create user", err)
	}
	u.ID = doc.ID.Hex()
	u.Email = doc.Email
	u.PlaceIDs = []string{}
	return nil
}

// WithTransaction runs fn inside a session transaction. The driver retries
// the callback on TransientTransactionError labels, so fn must only touch
// the store through tx.
func (s *PlaceStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx place.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return storeErr("start session", err)
	}
	defer sess.EndSession(ctx)

	return runTransaction(ctx, sess, func(ctx context.Context) error {
		return fn(ctx, &mongoTx{store: s})
	})
}

// transactor is the part of mongo.Session runTransaction drives.
type transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx mongo.SessionContext) (interface{}, error),
		opts ...*options.TransactionOptions) (interface{}, error)
}

// runTransaction returns fn's own error untouched so place sentinels survive
// the driver. Only a failure outside fn is reported as a store outage.
func runTransaction(ctx context.Context, sess transactor, fn func(ctx context.Context) error) error {
	var fnErr error
	_, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		fnErr = fn(sc)
		return nil, fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storeErr("commit", err)
	}
	return nil
}

type mongoTx struct{ store *PlaceStore }

func (t *mongoTx) InsertPlace(ctx context.Context, p *domain.Place) error {
	doc, err := placeFromDomain(p)
	if err != nil {
		return fmt.Errorf("insert place: %w", err)
	}
	doc.ID = primitive.NewObjectID()
	if _, err := t.store.places.InsertOne(ctx, doc); err != nil {
		return storeErr("insert place", err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (t *mongoTx) DeletePlace(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return place.ErrPlaceMissing
	}
	res, err := t.store.places.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storeErr("delete place", err)
	}
	if res.DeletedCount == 0 {
		return place.ErrPlaceMissing
	}
	return nil
}

// AttachPlace uses $push so concurrent creates append rather than replace.
func (t *mongoTx) AttachPlace(ctx context.Context, userID, placeID string) error {
	return t.updatePlaces(ctx, "attach place", userID, placeID, "$push")
}

func (t *mongoTx) DetachPlace(ctx context.Context, userID, placeID string) error {
	return t.updatePlaces(ctx, "detach place", userID, placeID, "$pull")
}

func (t *mongoTx) updatePlaces(ctx context.Context, op, userID, placeID, operator string) error {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return place.ErrUserMissing
	}
	pid, err := primitive.ObjectIDFromHex(placeID)
	if err != nil {
		return fmt.Errorf("%s: place id %q: %w", op, placeID, err)
	}
	res, err := t.store.users.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{operator: bson.M{"places": pid}})
	if err != nil {
		return storeErr(op, err)
	}
	if res.MatchedCount == 0 {
		return place.ErrUserMissing
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, place.ErrStoreUnavailable, err)
}

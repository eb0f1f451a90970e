package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/placebook/placebook/internal/domain"
)

func TestPlaceDocRoundTrip(t *testing.T) {
	owner := primitive.NewObjectID()
	in := &domain.Place{
		Title: "Empire State", Description: "Iconic", Address: "20 W 34th St",
		Location: domain.Location{Lat: 40.7484, Lng: -73.9857},
		ImageRef: "uploads/images/x.png", OwnerID: owner.Hex(),
	}
	doc, err := placeFromDomain(in)
	require.NoError(t, err)
	doc.ID = primitive.NewObjectID()

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var out placeDoc
	require.NoError(t, bson.Unmarshal(raw, &out))
	got := out.toDomain()

	in.ID = doc.ID.Hex()
	assert.Equal(t, in, got)
}

func TestLegacyStringCoordinates(t *testing.T) {
	id, owner := primitive.NewObjectID(), primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: "Old"},
		{Key: "location", Value: bson.D{{Key: "lat", Value: "40.7484474"}, {Key: "lng", Value: "-73.9871516"}}},
		{Key: "creator", Value: owner},
	})
	require.NoError(t, err)

	var doc placeDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, domain.Location{Lat: 40.7484474, Lng: -73.9871516}, doc.toDomain().Location)
}

func TestBadCoordinateRejected(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "location", Value: bson.D{{Key: "lat", Value: "north"}, {Key: "lng", Value: 1.0}}},
	})
	require.NoError(t, err)

	var doc placeDoc
	assert.Error(t, bson.Unmarshal(raw, &doc))
}

func TestPlaceFromDomainRejectsBadOwner(t *testing.T) {
	_, err := placeFromDomain(&domain.Place{OwnerID: "not-an-object-id"})
	assert.Error(t, err)
}

func TestUserDocToDomain(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	doc := userDoc{ID: primitive.NewObjectID(), Name: "Max", Email: "max@example.com", Password: "hash", Places: []primitive.ObjectID{a, b}}
	u := doc.toDomain()
	assert.Equal(t, []string{a.Hex(), b.Hex()}, u.PlaceIDs)
	assert.Equal(t, "hash", u.PasswordHash)

	empty := userDoc{ID: primitive.NewObjectID()}
	assert.Equal(t, []string{}, empty.toDomain().PlaceIDs)
}

func TestOrderByIDs(t *testing.T) {
	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	docs := []placeDoc{{ID: c, Title: "c"}, {ID: a, Title: "a"}, {ID: b, Title: "b"}}

	got := orderByIDs(docs, []string{b.Hex(), "missing", a.Hex(), c.Hex()})
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Title)
	assert.Equal(t, "a", got[1].Title)
	assert.Equal(t, "c", got[2].Title)
}

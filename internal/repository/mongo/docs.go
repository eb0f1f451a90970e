package mongo

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/placebook/placebook/internal/domain"
)

// coord decodes a coordinate stored either as a double or, in documents
// written by older clients, as a decimal string.
type coord float64

func (c *coord) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	if f, ok := rv.DoubleOK(); ok {
		*c = coord(f)
		return nil
	}
	if i, ok := rv.AsInt64OK(); ok {
		*c = coord(i)
		return nil
	}
	if s, ok := rv.StringValueOK(); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", s, err)
		}
		*c = coord(f)
		return nil
	}
	return fmt.Errorf("coordinate: unsupported bson type %s", t)
}

type locationDoc struct {
	Lat coord `bson:"lat"`
	Lng coord `bson:"lng"`
}

type placeDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Image       string             `bson:"image"`
	Address     string             `bson:"address"`
	Location    locationDoc        `bson:"location"`
	Creator     primitive.ObjectID `bson:"creator"`
}

type userDoc struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty"`
	Name     string               `bson:"name"`
	Email    string               `bson:"email"`
	Password string               `bson:"password"`
	Image    string               `bson:"image"`
	Places   []primitive.ObjectID `bson:"places"`
}

// placeWithOwner is the shape of the $lookup aggregation result.
type placeWithOwner struct {
	placeDoc `bson:",inline"`
	Owner    []userDoc `bson:"owner"`
}

func (d *placeDoc) toDomain() *domain.Place {
	return &domain.Place{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Address:     d.Address,
		Location:    domain.Location{Lat: float64(d.Location.Lat), Lng: float64(d.Location.Lng)},
		ImageRef:    d.Image,
		OwnerID:     d.Creator.Hex(),
	}
}

func placeFromDomain(p *domain.Place) (placeDoc, error) {
	creator, err := primitive.ObjectIDFromHex(p.OwnerID)
	if err != nil {
		return placeDoc{}, fmt.Errorf("owner id %q: %w", p.OwnerID, err)
	}
	return placeDoc{
		Title:       p.Title,
		Description: p.Description,
		Image:       p.ImageRef,
		Address:     p.Address,
		Location:    locationDoc{Lat: coord(p.Location.Lat), Lng: coord(p.Location.Lng)},
		Creator:     creator,
	}, nil
}

func (d *userDoc) toDomain() *domain.User {
	ids := make([]string, 0, len(d.Places))
	for _, id := range d.Places {
		ids = append(ids, id.Hex())
	}
	return &domain.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		ImageRef:     d.Image,
		PlaceIDs:     ids,
	}
}

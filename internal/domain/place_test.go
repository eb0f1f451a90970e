package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationValid(t *testing.T) {
	assert.True(t, Location{Lat: 40.7484, Lng: -73.9857}.Valid())
	assert.True(t, Location{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Location{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Location{Lat: 0, Lng: -180.5}.Valid())
}

func TestPlaceView(t *testing.T) {
	p := &Place{
		ID:          "p1",
		Title:       "Empire State",
		Description: "Iconic",
		Address:     "20 W 34th St, NY",
		Location:    Location{Lat: 40.7484, Lng: -73.9857},
		ImageRef:    "uploads/images/a.png",
		OwnerID:     "u1",
	}
	v := p.View()
	assert.Equal(t, "p1", v.ID)
	assert.Equal(t, "uploads/images/a.png", v.Image)
	assert.Equal(t, "u1", v.Creator)
	assert.Equal(t, p.Location, v.Location)
}

func TestUserOwnsPlace(t *testing.T) {
	u := &User{PlaceIDs: []string{"a", "b"}}
	assert.True(t, u.OwnsPlace("b"))
	assert.False(t, u.OwnsPlace("c"))
	assert.Equal(t, "jo@example.com", NormalizeEmail("  Jo@Example.COM "))
}

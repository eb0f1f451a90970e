package geocoder

import (
	"context"
	"strings"

	"github.com/placebook/placebook/internal/domain"
)

// Static resolves every non-empty address to the same location. It lets the
// server run locally without an API key.
type Static struct {
	Location domain.Location
}

// NewStatic returns a Static resolver for lat/lng.
func NewStatic(lat, lng float64) *Static {
	return &Static{Location: domain.Location{Lat: lat, Lng: lng}}
}

func (s *Static) Resolve(ctx context.Context, address string) (domain.Location, error) {
	if err := ctx.Err(); err != nil {
		return domain.Location{}, err
	}
	if strings.TrimSpace(address) == "" {
		return domain.Location{}, ErrAddressNotResolvable
	}
	return s.Location, nil
}

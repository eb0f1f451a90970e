package place

import "github.com/placebook/placebook/internal/domain"

// Guard decides whether a principal may mutate a place.
type Guard struct{}

// Authorize returns ErrForbidden unless principalID owns p. Update and
// delete share this one comparison.
func (Guard) Authorize(principalID string, p *domain.Place) error {
	if p == nil || principalID == "" || p.OwnerID != principalID {
		return ErrForbidden
	}
	return nil
}

package place_test

import (
	"testing"

	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/service/place"
)

func TestGuardAuthorize(t *testing.T) {
	p := &domain.Place{ID: "p1", OwnerID: "u1"}
	var g place.Guard

	if err := g.Authorize("u1", p); err != nil {
		t.Fatalf("owner should be allowed, got %v", err)
	}
	for _, principal := range []string{"u2", "", "U1"} {
		if err := g.Authorize(principal, p); err != place.ErrForbidden {
			t.Fatalf("principal %q: expected ErrForbidden, got %v", principal, err)
		}
	}
	if err := g.Authorize("u1", nil); err != place.ErrForbidden {
		t.Fatalf("nil place: expected ErrForbidden, got %v", err)
	}
}

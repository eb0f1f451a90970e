package place

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// IntegrityError lists the ids on which a user and the places collection
// disagree.
type IntegrityError struct {
	OwnerID string
	// Dangling ids are in User.PlaceIDs but no such place names the owner.
	Dangling []string
	// Orphaned ids name the owner but are missing from User.PlaceIDs.
	Orphaned []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("owner %s: dangling=%v orphaned=%v", e.OwnerID, e.Dangling, e.Orphaned)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityViolation }

// CheckOwnerIntegrity compares the owner's PlaceIDs with the places that
// reference the owner. It returns an *IntegrityError on mismatch.
func CheckOwnerIntegrity(ctx context.Context, store Store, ownerID string) error {
	var listed []string
	u, err := store.GetUser(ctx, ownerID)
	switch {
	case err == nil:
		listed = u.PlaceIDs
	case errors.Is(err, ErrUserMissing):
	default:
		return err
	}

	referencing, err := store.PlaceIDsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	dangling, orphaned := diffIDs(listed, referencing)
	if len(dangling) == 0 && len(orphaned) == 0 {
		return nil
	}
	return &IntegrityError{OwnerID: ownerID, Dangling: dangling, Orphaned: orphaned}
}

func diffIDs(listed, referencing []string) (dangling, orphaned []string) {
	have := make(map[string]bool, len(referencing))
	for _, id := range referencing {
		have[id] = true
	}
	seen := make(map[string]bool, len(listed))
	for _, id := range listed {
		if seen[id] {
			// A duplicate entry is as wrong as a missing place.
			dangling = append(dangling, id)
			continue
		}
		seen[id] = true
		if !have[id] {
			dangling = append(dangling, id)
		}
	}
	for _, id := range referencing {
		if !seen[id] {
			orphaned = append(orphaned, id)
		}
	}
	sort.Strings(dangling)
	sort.Strings(orphaned)
	return dangling, orphaned
}

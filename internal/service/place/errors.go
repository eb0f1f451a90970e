package place

import (
	"errors"

	"github.com/placebook/placebook/internal/geocoder"
)

// Sentinel errors returned by Store implementations.
var (
	ErrPlaceMissing     = errors.New("place does not exist")
	ErrUserMissing      = errors.New("user does not exist")
	ErrEmailTaken       = errors.New("email already registered")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Sentinel errors for the place service layer.
var (
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("place not found")
	ErrNoPlacesFound = errors.New("no places found for user")
	ErrOwnerNotFound = errors.New("owner not found")
	ErrForbidden     = errors.New("principal does not own place")
	ErrCreateFailed  = errors.New("create place failed")
	ErrUpdateFailed  = errors.New("update place failed")
	ErrDeleteFailed  = errors.New("delete place failed")

	ErrIntegrityViolation = errors.New("place/owner integrity violation")

	ErrAddressNotResolvable = geocoder.ErrAddressNotResolvable
	ErrUpstreamUnavailable  = geocoder.ErrUpstreamUnavailable
)

package place

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers outside the service.
type Kind string

const (
	KindValidation           Kind = "ValidationFailed"
	KindAddressNotResolvable Kind = "AddressNotResolvable"
	KindNotFound             Kind = "NotFound"
	KindNoPlacesFound        Kind = "NoPlacesFound"
	KindOwnerNotFound        Kind = "OwnerNotFound"
	KindForbidden            Kind = "Forbidden"
	KindUpstreamUnavailable  Kind = "UpstreamUnavailable"
	KindStoreUnavailable     Kind = "StoreUnavailable"
	KindCreateFailed         Kind = "CreateFailed"
	KindUpdateFailed         Kind = "UpdateFailed"
	KindDeleteFailed         Kind = "DeleteFailed"
)

// Failure is the only error type the Service returns. Message is safe to
// show to clients; Err keeps the cause for logs and errors.Is.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Checked in order. Protocol failures come before ErrStoreUnavailable since
// they usually wrap it.
var failureTable = []struct {
	target  error
	kind    Kind
	message string
}{
	{ErrValidation, KindValidation, "Invalid inputs passed, please check your data."},
	{ErrForbidden, KindForbidden, "You are not allowed to edit this place"},
	{ErrAddressNotResolvable, KindAddressNotResolvable, "Could not find location for the specified address."},
	{ErrNotFound, KindNotFound, "Could not find a place for the provided id."},
	{ErrNoPlacesFound, KindNoPlacesFound, "Could not find places for the provided user id."},
	{ErrOwnerNotFound, KindOwnerNotFound, "Could not find user for provided id"},
	{ErrCreateFailed, KindCreateFailed, "Creating place failed, please try again."},
	{ErrUpdateFailed, KindUpdateFailed, "Something went wrong, could not update place."},
	{ErrDeleteFailed, KindDeleteFailed, "Something went wrong, could not delete place."},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable, "Location lookup is unavailable, please try again later."},
	{ErrStoreUnavailable, KindStoreUnavailable, "Fetching places failed, please try again later."},
}

// Translate maps err to a Failure. Errors it doesn't recognise become
// StoreUnavailable. Translate(nil) is nil.
func Translate(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	for _, row := range failureTable {
		if errors.Is(err, row.target) {
			return &Failure{Kind: row.kind, Message: row.message, Err: err}
		}
	}
	return &Failure{
		Kind:    KindStoreUnavailable,
		Message: "Fetching places failed, please try again later.",
		Err:     err,
	}
}

package geocoder

import "errors"

var (
	// ErrAddressNotResolvable means the lookup service had no usable match.
	ErrAddressNotResolvable = errors.New("address not resolvable")
	// ErrUpstreamUnavailable covers transport failures, timeouts and bad
	// responses from the lookup service.
	ErrUpstreamUnavailable = errors.New("geocoder upstream unavailable")
)

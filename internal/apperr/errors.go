// Package apperr holds the error taxonomy shared by storage, providers and
// the HTTP layer. Nothing here is recovered internally; callers map these to
// status codes at the boundary with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned when the input fails validation.
var ErrInvalid = errors.New("invalid input")

// ErrNotFound indicates that the requested parcel does not exist.
var ErrNotFound = errors.New("parcel not found")

// ErrMissingAPIKey indicates that a provider has no credentials configured.
// Reported before any network call is attempted.
var ErrMissingAPIKey = errors.New("carrier api key is not configured")

// ErrNetwork indicates a transport-level failure talking to a carrier.
var ErrNetwork = errors.New("carrier unreachable")

// ErrBadPayload indicates a carrier response that cannot be mapped to the
// normalized tracking model.
var ErrBadPayload = errors.New("unexpected carrier payload")

// UnsupportedCarrierError is returned when no provider is registered for a
// parcel's carrier. Carries the raw carrier text for the user-facing message.
type UnsupportedCarrierError struct {
	Carrier string
}

func (e *UnsupportedCarrierError) Error() string {
	return fmt.Sprintf("unsupported carrier %q", e.Carrier)
}

// VendorError is a non-2xx answer from a carrier API, with the vendor's
// human-readable detail when the body had one.
type VendorError struct {
	StatusCode int
	Detail     string
}

func (e *VendorError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("carrier api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("carrier api error (status %d): %s", e.StatusCode, e.Detail)
}

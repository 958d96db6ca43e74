// Package auth holds the identity type used for callers, assessors, issuers and
// owners, together with the single authorization predicate used by the
// registry. Identities are opaque; the only check performed is equality.
package auth

import (
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"

	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// Principal is an opaque caller identity such as a Neo N3 address.
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is empty.
func (p Principal) IsZero() bool { return p == "" }

// Allowed reports whether caller equals the required identity. An empty
// required identity never authorizes anyone.
func Allowed(required, caller Principal) bool {
	return required != "" && required == caller
}

// Authorize returns an Unauthorized error unless caller equals required.
func Authorize(required, caller Principal) error {
	if Allowed(required, caller) {
		return nil
	}
	return apperrors.Unauthorized("caller does not match required identity").
		WithDetails("caller", string(caller))
}

// ParsePrincipal trims raw and, when strict is set, requires a valid Neo N3
// address. Strict parsing returns the canonical address encoding.
func ParsePrincipal(raw string, strict bool) (Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.InvalidInput("principal", "is required")
	}
	if !strict {
		return Principal(trimmed), nil
	}
	u, err := address.StringToUint160(trimmed)
	if err != nil {
		return "", apperrors.InvalidInput("principal", "not a Neo N3 address: "+err.Error())
	}
	return Principal(address.Uint160ToString(u)), nil
}

package domain

import "errors"

// Shared error taxonomy. Store and service layers return these sentinels
// (possibly wrapped); the API layer maps them to status codes.
var (
	// ErrNotFound covers any referenced entity that is absent or outside
	// the caller's organization scope.
	ErrNotFound = errors.New("not found")

	// ErrConflict is surfaced when a voucher-numbering race exhausted its
	// bounded retries.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrValidation covers malformed amounts and missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotConfigured means the organization has no payment provider
	// credentials on record.
	ErrNotConfigured = errors.New("payment provider not configured")
)

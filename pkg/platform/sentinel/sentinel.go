package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique constraint would be violated
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: external dependency (SMTP, media host, anchor) not configured or down
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

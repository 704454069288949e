package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure
// layers return these (optionally wrapped) so callers can translate them
// into transport responses.
//
// These represent factual states about resources, not validation
// failures; record-level validation errors live in pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and port adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or at the provider
// - ErrAlreadyExists: unique key already taken
// - ErrVersionConflict: optimistic write lost the race, re-read and retry
// - ErrUnavailable: upstream port unreachable or returned a transport error
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
	ErrUnavailable     = errors.New("unavailable")
)

// Package sync reconciles local calendar events against external providers:
// it drives sync passes, detects conflicts, tracks per-(user, provider)
// status, and applies conflict resolutions.
//
// The status registry is process-local by design; running multiple
// instances requires backing it with the shared data store.
package sync

import "errors"

var (
	// ErrNoActiveConnection means the user has no linked provider account.
	ErrNoActiveConnection = errors.New("sync: no active provider connection")
	// ErrConflictNotFound means a resolution referenced an unknown conflict.
	ErrConflictNotFound = errors.New("sync: conflict not found")
	// ErrConflictResolved means the conflict already has a terminal resolution.
	ErrConflictResolved = errors.New("sync: conflict already resolved")
	// ErrInvalidResolution means the requested resolution is not a valid choice.
	ErrInvalidResolution = errors.New("sync: invalid resolution")
)

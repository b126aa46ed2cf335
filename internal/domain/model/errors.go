package model

import "errors"

// Sentinel error kinds shared by every layer of the engine. Wrap them with
// fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	// ErrInvalidArgument marks malformed input; nothing was persisted.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a missing analyst, recommendation or evaluation.
	ErrNotFound = errors.New("not found")
	// ErrPriceUnavailable marks a price the oracle could not resolve.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrConflict marks a transaction that lost a race with another writer.
	ErrConflict = errors.New("transaction conflict")
	// ErrAlreadyClosed marks an evaluation attempt on a closed recommendation.
	ErrAlreadyClosed = errors.New("recommendation already closed")
)

package domain

import "errors"

var (
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidTask      = errors.New("invalid task")
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrMalformedEvent is returned for realtime payloads that cannot be
	// turned into one of the known event variants.
	ErrMalformedEvent = errors.New("malformed event")
)

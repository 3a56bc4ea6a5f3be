package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrMissingCredentials = errors.New("missing WHO API client credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrJobNotFound        = errors.New("job not found")
	ErrNoRecords          = errors.New("no records to index")
)

package store

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateKey      = errors.New("already exists")
	ErrConflict          = errors.New("state conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrMissingResult     = errors.New("result is required to enter a terminal state")
	ErrResourceExhausted = errors.New("registry capacity exhausted")
)

package domain

import "errors"

// Error kinds shared by every layer. Callers classify with errors.Is.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrFeatureDisabled        = errors.New("feature disabled")
	ErrMirrorUnavailable      = errors.New("mirror unavailable")
	ErrMirrorTimeout          = errors.New("mirror timeout")
	ErrMirrorConflict         = errors.New("mirror conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
)

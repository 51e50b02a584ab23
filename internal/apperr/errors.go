package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidChart   = errors.New("invalid chart")
	ErrInvalidOptions = errors.New("invalid options")
)

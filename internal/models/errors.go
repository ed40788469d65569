package models

import "errors"

// Error kinds shared by every layer. Callers wrap them with fmt.Errorf("%w: ...")
// and the HTTP layer maps them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("not authorized")
)

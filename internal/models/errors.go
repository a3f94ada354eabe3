package models

import "errors"

// Sentinel errors shared by every layer. Wrap them with context using %w and
// test with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrPersistence   = errors.New("persistence failed")
)

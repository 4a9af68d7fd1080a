package domain

import "errors"

var (
	// ErrSchema is returned when the input file lacks a header or the id column.
	ErrSchema = errors.New("input schema invalid")

	// ErrIO is returned when the output or ledger cannot be opened or written.
	ErrIO = errors.New("io failure")

	// ErrMissingCredentials is returned by config validation.
	ErrMissingCredentials = errors.New("missing credentials")
)

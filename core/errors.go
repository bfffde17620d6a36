package core

import (
	"errors"
)

var (
	// ErrNotFound is returned when a single-row fetch matches no row and the
	// caller asked for an error rather than an absent result.
	ErrNotFound = errors.New("record not found")
	// ErrConnectionFailed is returned when a connection cannot be opened or
	// fails its initial health check.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrTxFinished is returned when a session is used after End.
	ErrTxFinished = errors.New("session already finished")
	// ErrDuplicateKey is returned when a database unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrForeignKey is returned when a database foreign key constraint is violated.
	ErrForeignKey = errors.New("foreign key constraint")
	// ErrUnknownDialect is returned when no dialect is registered for the
	// configured driver name.
	ErrUnknownDialect = errors.New("unknown dialect")
	// ErrInvalidConfig is returned when the storage configuration is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")
)

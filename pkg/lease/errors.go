package lease

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate classifies an insert rejected because a live lease already exists for the key.
	ErrDuplicate = errors.New("lease duplicate")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("lease invalid argument")
	// ErrNotInitialized classifies operations on an uninitialized store.
	ErrNotInitialized = errors.New("lease store not initialized")
	// ErrUnavailable classifies transient store failures. Callers must fail closed.
	ErrUnavailable = errors.New("lease store unavailable")
)

func leaseError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

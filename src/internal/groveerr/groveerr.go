// Package groveerr provides the typed errors shared by the storage and
// derivation layers.
package groveerr

import (
	"fmt"

	"github.com/grovescm/grove/v2/src/internal/errors"
)

// NotExist is returned when a referenced object does not exist in a store.
type NotExist struct {
	Collection string
	ID         string
}

func (e *NotExist) Error() string {
	return fmt.Sprintf("%s: %s does not exist", e.Collection, e.ID)
}

// NewNotExist returns a NotExist error for id in collection.
func NewNotExist(collection, id string) error {
	return errors.EnsureStack(&NotExist{Collection: collection, ID: id})
}

// IsNotExist returns true if err is a NotExist error.
func IsNotExist(err error) bool {
	var target *NotExist
	return errors.As(err, &target)
}

// DecodeError is returned when stored bytes fail to parse.  It poisons only
// the entry it came from; callers must not treat it as affecting unrelated
// entries.
type DecodeError struct {
	Collection string
	ID         string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding %s: %v", e.Collection, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err as a DecodeError for id in collection.
func NewDecodeError(collection, id string, err error) error {
	return errors.EnsureStack(&DecodeError{Collection: collection, ID: id, Err: err})
}

// IsDecodeError returns true if err is a DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

var (
	// ErrLeaseUnavailable is returned when a single-flight lease cannot be
	// acquired because another holder has it.
	ErrLeaseUnavailable = errors.New("lease unavailable")
	// ErrLeaseLost is returned when a held lease expired or was revoked
	// before release.
	ErrLeaseLost = errors.New("lease lost")
)

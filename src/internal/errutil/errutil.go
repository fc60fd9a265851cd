// Package errutil provides sentinel errors shared across packages.
package errutil

import (
	"github.com/grovescm/grove/v2/src/internal/errors"
)

// ErrBreak is used to break out of iteration functions early.  Iteration
// helpers swallow ErrBreak and return nil.
var ErrBreak = errors.New("break")

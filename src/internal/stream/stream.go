// Package stream provides a generic iterator abstraction.
package stream

import (
	"context"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/errutil"
)

// EOS is returned by Next when iteration has ended.
var EOS = errors.New("end of stream")

// IsEOS returns true if err means the end of a stream.
func IsEOS(err error) bool {
	return errors.Is(err, EOS)
}

// Iterator is a stream of T.
type Iterator[T any] interface {
	// Next reads the next element of the stream into dst and advances.
	// It returns EOS when the stream has ended.
	Next(ctx context.Context, dst *T) error
}

// ForEach calls fn for every element of it.  Returning errutil.ErrBreak from
// fn stops the iteration without error.  The element passed to fn may reuse
// storage between calls; fn must not retain it.
func ForEach[T any](ctx context.Context, it Iterator[T], fn func(t T) error) error {
	var x T
	for {
		if err := it.Next(ctx, &x); err != nil {
			if IsEOS(err) {
				return nil
			}
			return err
		}
		if err := fn(x); err != nil {
			if errors.Is(err, errutil.ErrBreak) {
				return nil
			}
			return err
		}
	}
}

// Collect reads at most max elements from it into a slice.  Unlike ForEach,
// the returned elements are owned by the caller: each iteration reads into a
// fresh value, so iterators that reuse dst's storage cannot alias them.
func Collect[T any](ctx context.Context, it Iterator[T], max int) (ret []T, _ error) {
	for {
		var x T
		if err := it.Next(ctx, &x); err != nil {
			if IsEOS(err) {
				return ret, nil
			}
			return nil, err
		}
		if len(ret) >= max {
			return nil, errors.Errorf("stream exceeded max size of %d", max)
		}
		ret = append(ret, x)
	}
}

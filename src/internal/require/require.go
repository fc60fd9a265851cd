// Package require provides the assertion helpers used by tests in this
// module.  Helpers take *testing.T first and fail the test immediately.
package require

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/grovescm/grove/v2/src/internal/errors"
)

// NoError fails the test if err is not nil.
func NoError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	if err != nil {
		fatal(tb, msgAndArgs, "no error is expected but got %v", err)
	}
}

// YesError fails the test if err is nil.
func YesError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	if err == nil {
		fatal(tb, msgAndArgs, "error is expected but got nil")
	}
}

// ErrorIs fails the test unless errors.Is(err, target).
func ErrorIs(tb testing.TB, err, target error, msgAndArgs ...interface{}) {
	tb.Helper()
	if !errors.Is(err, target) {
		fatal(tb, msgAndArgs, "expected error matching %v, got %v", target, err)
	}
}

// Equal fails the test if expected and actual are not equal per go-cmp.
func Equal(tb testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if diff := cmp.Diff(expected, actual); diff != "" {
		fatal(tb, msgAndArgs, "values are not equal (-expected +actual):\n%s", diff)
	}
}

// NotEqual fails the test if expected and actual are equal per go-cmp.
func NotEqual(tb testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if cmp.Equal(expected, actual) {
		fatal(tb, msgAndArgs, "values are equal, but should not be: %v", actual)
	}
}

// True fails the test if value is false.
func True(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	if !value {
		fatal(tb, msgAndArgs, "expected true, got false")
	}
}

// False fails the test if value is true.
func False(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	if value {
		fatal(tb, msgAndArgs, "expected false, got true")
	}
}

// NotNil fails the test if value is nil.
func NotNil(tb testing.TB, value interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if value == nil {
		fatal(tb, msgAndArgs, "expected non-nil value")
	}
}

// Len fails the test if the length of value is not l.  value must be a
// slice, map, string, or channel.
func Len(tb testing.TB, value interface{}, l int, msgAndArgs ...interface{}) {
	tb.Helper()
	n := reflect.ValueOf(value).Len()
	if n != l {
		fatal(tb, msgAndArgs, "expected length %d, got %d", l, n)
	}
}

func fatal(tb testing.TB, userMsgAndArgs []interface{}, msgFmt string, msgArgs ...interface{}) {
	tb.Helper()
	if len(userMsgAndArgs) > 0 {
		if format, ok := userMsgAndArgs[0].(string); ok {
			tb.Logf(format, userMsgAndArgs[1:]...)
		}
	}
	tb.Fatalf(msgFmt, msgArgs...)
}

// Package panicerr converts panics into errors so one failing unit of work
// cannot take down its siblings.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Try runs fn and returns its result. If fn panics, the zero value is
// returned together with an error carrying the panic value and stack.
func Try[T any](fn func() T) (T, error) {
	var (
		catcher panics.Catcher
		result  T
	)
	catcher.Try(func() {
		result = fn()
	})
	if recovered := catcher.Recovered(); recovered != nil {
		var zero T
		return zero, recovered.AsError()
	}
	return result, nil
}

// SafeContext wraps a function that takes a context and returns an error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

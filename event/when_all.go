package event

import "errors"

// AnyResult carries the outcome of one future in a WhenAll aggregation:
// exactly one of Value and Err is meaningful, discriminated by Err.
type AnyResult[T any] struct {
	Value T
	Err   error
}

// WhenAll aggregates a non-empty slice of futures of the same type into a
// single future of a slice of AnyResult, preserving input order. The
// returned future never fails: per-future errors are recorded in the
// corresponding AnyResult instead.
func WhenAll[T any](futures []*Future[T]) (*Future[[]AnyResult[T]], error) {
	if len(futures) == 0 {
		return nil, errors.New("WhenAll requires at least one future")
	}
	for _, f := range futures {
		if !f.Valid() {
			return nil, errors.New("WhenAll requires valid futures")
		}
	}
	promise := NewPromise[[]AnyResult[T]](futures[0].Reactor())
	results := make([]AnyResult[T], len(futures))
	remaining := len(futures)
	complete := func() error {
		remaining--
		if remaining == 0 {
			return promise.SetValue(results)
		}
		return nil
	}
	for i, f := range futures {
		i := i
		if err := f.OnCompletion(
			func(v T) error {
				results[i].Value = v
				return complete()
			},
			func(err error) error {
				results[i].Err = err
				return complete()
			}); err != nil {
			return nil, err
		}
	}
	return promise.Future()
}

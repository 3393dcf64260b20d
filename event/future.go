package event

import "errors"

// Errors reported by the promise/future machinery. BrokenPromise is
// delivered through a future's error handler; the others are returned
// synchronously from the call that caused them.
var (
	ErrNoState                 = errors.New("promise has no shared state")
	ErrFutureAlreadyRetrieved  = errors.New("future already retrieved")
	ErrPromiseAlreadySatisfied = errors.New("promise already satisfied")
	ErrBrokenPromise           = errors.New("broken promise")
)

// ResultHandler consumes a future's result. A non-nil return value stops
// the reactor loop and propagates out of Run, like any other handler
// error.
type ResultHandler[T any] func(v T) error

// ErrorHandler consumes a future's error. A non-nil return value stops
// the reactor loop and propagates out of Run.
type ErrorHandler func(err error) error

// sharedState is jointly owned by a matching (Promise, Future) pair. It
// holds either the result/error stored by the promise, or the handlers
// stored by the future; as soon as it holds both, the appropriate handler
// is dispatched through the reactor, exactly once.
type sharedState[T any] struct {
	reactor *Reactor

	futureRetrieved bool
	resultRetrieved bool

	resultHandler ResultHandler[T]
	errorHandler  ErrorHandler

	hasResult bool
	result    T
	err       error
}

func (s *sharedState[T]) satisfied() bool {
	return s.hasResult || s.err != nil
}

func (s *sharedState[T]) dispatch() {
	s.reactor.AddImmediate(func(*Reactor) error {
		s.resultRetrieved = true
		if s.hasResult {
			return s.resultHandler(s.result)
		}
		return s.errorHandler(s.err)
	})
}

// Promise provides a facility to store the result of an asynchronous
// operation so it can be delivered through a Future.
//
// A Promise, and by extension its Future, are associated with a Reactor
// which is used to dispatch the event that triggers the handler call.
// Neither type is safe for concurrent use; both follow the reactor's
// single-threaded discipline.
type Promise[T any] struct {
	state *sharedState[T]
}

// NewPromise creates a promise whose completion will be dispatched
// through the given reactor.
func NewPromise[T any](reactor *Reactor) *Promise[T] {
	return &Promise[T]{state: &sharedState[T]{reactor: reactor}}
}

// Future returns the single Future that shares state with this promise.
// It may only be called once; subsequent calls return
// ErrFutureAlreadyRetrieved.
func (p *Promise[T]) Future() (*Future[T], error) {
	if p.state == nil {
		return nil, ErrNoState
	}
	if p.state.futureRetrieved {
		return nil, ErrFutureAlreadyRetrieved
	}
	p.state.futureRetrieved = true
	return &Future[T]{state: p.state}, nil
}

// SetValue stores the result, triggering a handler dispatch if the future
// side has already registered one. It may only be called once per
// promise, and not after SetError.
func (p *Promise[T]) SetValue(v T) error {
	if p.state == nil {
		return ErrNoState
	}
	if p.state.satisfied() {
		return ErrPromiseAlreadySatisfied
	}
	p.state.hasResult = true
	p.state.result = v
	if p.state.resultHandler != nil {
		p.state.dispatch()
	}
	return nil
}

// SetError stores an error, triggering a handler dispatch if the future
// side has already registered one. It may only be called once per
// promise, and not after SetValue.
func (p *Promise[T]) SetError(err error) error {
	if p.state == nil {
		return ErrNoState
	}
	if p.state.satisfied() {
		return ErrPromiseAlreadySatisfied
	}
	p.state.err = err
	if p.state.errorHandler != nil {
		p.state.dispatch()
	}
	return nil
}

// Close abandons the promise. If it has not been satisfied, the shared
// state receives ErrBrokenPromise, which reaches any registered error
// handler. Producers must either satisfy or Close every promise they
// create.
func (p *Promise[T]) Close() {
	if p.state != nil && !p.state.satisfied() {
		_ = p.SetError(ErrBrokenPromise)
	}
}

// Future represents the eventual completion (or failure) of an
// asynchronous operation, and its resulting value (or error).
//
// It is the push-style counterpart of a pull-style future: registering
// handlers with OnCompletion causes the appropriate one to be called
// automatically, through the associated reactor, when the corresponding
// Promise is satisfied.
type Future[T any] struct {
	state *sharedState[T]
}

// Valid reports whether handlers can still be registered on this future:
// the future must not be zero-valued and OnCompletion must not have been
// called yet.
func (f *Future[T]) Valid() bool {
	return f != nil && f.state != nil && f.state.resultHandler == nil
}

// Reactor returns the reactor associated with this future.
func (f *Future[T]) Reactor() *Reactor {
	return f.state.reactor
}

// OnCompletion registers the callbacks invoked when a result is ready or
// an error occurs. If the shared state already holds a result or error,
// an immediate event is queued so the appropriate handler runs at the
// next iteration of the event loop; otherwise the handlers are stored and
// dispatched whenever the promise is satisfied, possibly after the Future
// itself is gone.
//
// onError may be nil, in which case an error stops the reactor loop and
// propagates out of Run. OnCompletion may only be called once; Valid
// reports false afterwards.
func (f *Future[T]) OnCompletion(onResult ResultHandler[T], onError ErrorHandler) error {
	if !f.Valid() {
		return errors.New("OnCompletion called on an invalid future")
	}
	if onResult == nil {
		return errors.New("nil result handler")
	}
	if onError == nil {
		onError = func(err error) error { return err }
	}
	f.state.resultHandler = onResult
	f.state.errorHandler = onError
	if f.state.satisfied() {
		f.state.dispatch()
	}
	return nil
}

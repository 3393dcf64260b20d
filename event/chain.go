package event

// ChainHandler is one stage of a future chain. It receives the previous
// stage's result and returns either another future (a continuation the
// chain waits for) or nil (the stage completes immediately). A non-nil
// error fails the rest of the chain and is delivered to Catch.
type ChainHandler func(v any) (*Future[any], error)

// ChainedFuture composes futures stage by stage. Each Then appends a
// stage; a terminal Catch registers the single error sink that receives
// errors from any upstream future as well as errors returned
// synchronously by any handler. Without a Catch, errors are silently
// dropped; this is deliberate, so fire-and-forget chains stay quiet.
type ChainedFuture struct {
	future *Future[any]
}

// Chain starts a chain on the given future with its first handler.
func Chain(f *Future[any], handler ChainHandler) *ChainedFuture {
	c := &ChainedFuture{future: f}
	return c.Then(handler)
}

// Then appends a stage to the chain and returns the extended chain. The
// receiver is consumed and must not be used afterwards.
func (c *ChainedFuture) Then(handler ChainHandler) *ChainedFuture {
	reactor := c.future.Reactor()
	next := NewPromise[any](reactor)
	_ = c.future.OnCompletion(
		func(v any) error {
			cont, err := handler(v)
			if err != nil {
				return next.SetError(err)
			}
			if cont == nil {
				return next.SetValue(nil)
			}
			return cont.OnCompletion(
				func(v any) error { return next.SetValue(v) },
				func(err error) error { return next.SetError(err) })
		},
		func(err error) error {
			return next.SetError(err)
		})
	f, _ := next.Future()
	return &ChainedFuture{future: f}
}

// Catch terminates the chain with an error sink. The sink is called at
// most once, with the first error produced anywhere upstream. Results
// reaching the end of the chain are discarded.
func (c *ChainedFuture) Catch(handler func(err error)) {
	_ = c.future.OnCompletion(
		func(any) error { return nil },
		func(err error) error {
			handler(err)
			return nil
		})
}

// Erase adapts a typed future to the *Future[any] the chain API works
// with.
func Erase[T any](f *Future[T]) *Future[any] {
	p := NewPromise[any](f.Reactor())
	_ = f.OnCompletion(
		func(v T) error { return p.SetValue(v) },
		func(err error) error { return p.SetError(err) })
	erased, _ := p.Future()
	return erased
}

package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// futureImpl is the concrete Future implementation backing promiseImpl. It is
// safe for concurrent use: Await/OnComplete may be called from any number of
// goroutines, and Complete (via the owning Promise) may race with them.
type futureImpl[T any] struct {
	// done is closed exactly once, when the result becomes available.
	done chan struct{}

	// mu protects result once done is closed it is safe to read result
	// without the lock, but we still take it to avoid a data race
	// detector false positive on the zero-to-one transition.
	mu     sync.Mutex
	result fn.Result[T]
}

// Await blocks until the result is available or the context is cancelled,
// then returns it. If the context is cancelled first, a Result wrapping the
// context's error is returned instead.
func (f *futureImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()

		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply registers a function to transform the result of a future. The
// original future is not modified; a new Future is returned that completes
// once the original does (or the context is cancelled, whichever is first).
func (f *futureImpl[T]) ThenApply(ctx context.Context,
	transform func(T) T,
) Future[T] {

	next := NewPromise[T]()

	go func() {
		result := f.Await(ctx)

		result.WhenOk(func(val T) {
			next.Complete(fn.Ok(transform(val)))
		})
		result.WhenErr(func(err error) {
			next.Complete(fn.Err[T](err))
		})
	}()

	return next.Future()
}

// OnComplete registers a function to be called when the result of the future
// is ready. If the passed context is cancelled before the future completes,
// the callback is invoked with the context's error instead.
func (f *futureImpl[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		cb(f.Await(ctx))
	}()
}

// promiseImpl is the concrete Promise implementation. The zero value is not
// usable; construct one with NewPromise.
type promiseImpl[T any] struct {
	future      *futureImpl[T]
	completeOne sync.Once
}

// NewPromise creates a new, uncompleted Promise. The returned Promise's
// Future will block on Await until Complete is called.
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{
		future: &futureImpl[T]{
			done: make(chan struct{}),
		},
	}
}

// Future returns the Future interface associated with this Promise.
func (p *promiseImpl[T]) Future() Future[T] {
	return p.future
}

// Complete attempts to set the result of the future. It returns true if this
// call successfully set the result (i.e., it was the first to complete it),
// and false if the future had already been completed.
func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	completed := false

	p.completeOne.Do(func() {
		p.future.mu.Lock()
		p.future.result = result
		p.future.mu.Unlock()

		close(p.future.done)
		completed = true
	})

	return completed
}

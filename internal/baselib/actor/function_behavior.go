package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FunctionBehavior adapts a plain function into an ActorBehavior, so simple
// actors don't need to declare a dedicated type. This is the same pattern the
// dead letter actor uses internally (see NewActorSystem).
type FunctionBehavior[M Message, R any] struct {
	fn func(context.Context, M) fn.Result[R]
}

// NewFunctionBehavior wraps a function as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	receive func(context.Context, M) fn.Result[R],
) *FunctionBehavior[M, R] {

	return &FunctionBehavior[M, R]{fn: receive}
}

// Receive implements ActorBehavior by delegating to the wrapped function.
func (b *FunctionBehavior[M, R]) Receive(ctx context.Context,
	msg M,
) fn.Result[R] {

	return b.fn(ctx, msg)
}

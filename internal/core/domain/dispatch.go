package domain

import (
	"context"
	"errors"
)

type dispatchHookKey struct{}

// WithDispatchHook attaches fn to ctx. Dispatchers call NotifyDispatched
// once the request has left the process.
func WithDispatchHook(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, dispatchHookKey{}, fn)
}

// NotifyDispatched runs the hook attached to ctx, if any.
func NotifyDispatched(ctx context.Context) {
	if fn, ok := ctx.Value(dispatchHookKey{}).(func()); ok && fn != nil {
		fn()
	}
}

// Failures of an attempt that say nothing about the backend's health.
// Dispatchers wrap them so the pipeline neither retries them nor counts
// them against the circuit.
var (
	ErrNotDispatched    = errors.New("request not dispatched")
	ErrResponseTooLarge = errors.New("response body exceeds limit")
)

package bridge

import (
	"context"
)

// HandlerFunc represents the next handler in an interceptor chain. args are the
// bound wire arguments, in parameter order.
type HandlerFunc func(ctx context.Context, args []any) (res any, err error)

// UnaryInterceptor is a hook that wraps method invocation.
//
//	func timing(ctx context.Context, call *bridge.CallContext, args []any, next bridge.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := next(ctx, args)
//	    log.Printf("%s took %v", call.EndpointID(), time.Since(start))
//	    return res, err
//	}
//
// Interceptors can inspect or replace the arguments before calling next,
// inspect or replace the result after, or short-circuit by returning an error.
// The result seen by interceptors is already unwrapped from any asynchronous
// wrapper.
type UnaryInterceptor func(ctx context.Context, call *CallContext, args []any, next HandlerFunc) (res any, err error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []UnaryInterceptor) UnaryInterceptor {
	if len(interceptors) == 0 {
		return nil
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx context.Context, call *CallContext, args []any, handler HandlerFunc) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chain
			chain = func(ctx context.Context, args []any) (any, error) {
				return current(ctx, call, args, next)
			}
		}
		return chain(ctx, args)
	}
}

package bridge

import (
	"context"
)

// CallContext describes the call being served. A service method receives it
// by declaring a *CallContext parameter; the argument is injected and never
// read from the wire.
type CallContext struct {
	// ID is the correlation id chosen by the caller.
	ID string

	// Service and Method are the resolved names.
	Service string
	Method  string

	bridge   *Bridge
	endpoint *endpoint
}

// EndpointID returns "Service.Method".
func (c *CallContext) EndpointID() string {
	return c.Service + "." + c.Method
}

// Emit pushes an event to every attached channel.
func (c *CallContext) Emit(event string, data any) error {
	return c.bridge.Emit(event, data)
}

// Reply pushes an event only to the channel that issued this call.
func (c *CallContext) Reply(event string, data any) error {
	return c.bridge.emitTo([]*endpoint{c.endpoint}, event, data)
}

type contextKey struct {
	name string
}

var callKey = &contextKey{"call"}

// CallFromContext returns the CallContext of the call ctx belongs to.
func CallFromContext(ctx context.Context) (*CallContext, bool) {
	c, ok := ctx.Value(callKey).(*CallContext)
	return c, ok
}

// MethodFromContext returns the service and method name of the current call.
func MethodFromContext(ctx context.Context) (service, method string, ok bool) {
	if c, ok := CallFromContext(ctx); ok {
		return c.Service, c.Method, true
	}
	return "", "", false
}

func withCall(ctx context.Context, c *CallContext) context.Context {
	return context.WithValue(ctx, callKey, c)
}

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/broady/bridge/wire"
)

// inflightCall is the cancellation handle of a call being served.
type inflightCall struct {
	once   sync.Once
	cancel context.CancelFunc
}

// stop requests cancellation at most once.
func (c *inflightCall) stop() {
	c.once.Do(c.cancel)
}

// handle processes one inbound message. Malformed messages are dropped.
func (b *Bridge) handle(ep *endpoint, raw string) {
	msg, err := wire.Decode(raw)
	var argsErr *wire.ArgumentsError
	if errors.As(err, &argsErr) {
		if _, busy := b.inflight.Load(argsErr.Request.CallID); busy {
			b.log().Warn("dropping request with duplicate in-flight call id",
				slog.String("call_id", argsErr.Request.CallID),
				slog.String("method", argsErr.Request.Method))
			return
		}
		// The request is identifiable, so it is answered rather than dropped.
		b.log().Debug("rejecting request with malformed arguments",
			slog.String("call_id", argsErr.Request.CallID),
			slog.String("method", argsErr.Request.Method))
		b.send(ep, wire.Response{
			CallID: argsErr.Request.CallID,
			Error:  Errorf(CodeInvalidArgument, "%s: %v", argsErr.Request.Method, argsErr.Err).toWire(),
		})
		return
	}
	if err != nil {
		b.log().Debug("dropping malformed message", slog.Any("error", err))
		return
	}
	switch msg.Kind {
	case wire.KindCancel:
		b.cancelCall(msg.Cancel.Cancel)
	case wire.KindRequest:
		b.serve(ep, msg.Request)
	default:
		b.log().Debug("ignoring unexpected message", slog.String("kind", msg.Kind.String()))
	}
}

// cancelCall cancels an in-flight call. Unknown or finished ids are ignored.
func (b *Bridge) cancelCall(id string) {
	v, ok := b.inflight.Load(id)
	if !ok {
		return
	}
	b.log().Debug("cancel requested", slog.String("call_id", id))
	v.(*inflightCall).stop()
}

// serve runs one call and sends exactly one response.
func (b *Bridge) serve(ep *endpoint, req *wire.Request) {
	ctx, cancel := context.WithCancel(b.ctx)
	h := &inflightCall{cancel: cancel}
	if _, dup := b.inflight.LoadOrStore(req.CallID, h); dup {
		cancel()
		b.log().Warn("dropping request with duplicate in-flight call id",
			slog.String("call_id", req.CallID),
			slog.String("method", req.Method))
		return
	}

	resp := wire.Response{CallID: req.CallID}
	result, err := b.call(ctx, ep, req)
	if err == nil {
		resp.Result, err = b.encodeResult(req, result)
	}
	if err != nil {
		resp.Result = nil
		resp.Error = b.safeWireError(ctx, req, err)
	}

	// The id is released before the response leaves, so a caller may reuse
	// it as soon as it sees the response.
	b.inflight.CompareAndDelete(req.CallID, h)
	h.stop()
	b.send(ep, resp)
}

// call resolves, binds and invokes. Panics anywhere below are reported as
// invocation faults.
func (b *Bridge) call(ctx context.Context, ep *endpoint, req *wire.Request) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logPanic(req, rec)
			result = nil
			err = &InvocationError{Method: req.Method, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	serviceName, methodName, ok := req.SplitMethod()
	if !ok {
		return nil, Errorf(CodeNotFound, "malformed method %q: expected Service.Method", req.Method)
	}
	m, err := b.lookup(serviceName, methodName)
	if err != nil {
		return nil, err
	}

	cc := &CallContext{ID: req.CallID, Service: serviceName, Method: methodName, bridge: b, endpoint: ep}
	ctx = withCall(ctx, cc)

	args, err := b.bind(m, req.Args)
	if err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, args []any) (any, error) {
		return m.invoke(ctx, cc, args)
	}
	if chain := chainInterceptors(b.interceptors); chain != nil {
		return chain(ctx, cc, args, handler)
	}
	return handler(ctx, args)
}

// bind decodes the wire arguments positionally. Missing trailing arguments
// fall back to declared defaults, then to nil for pointer, slice, map and
// interface parameters, then to an empty variadic tail.
func (b *Bridge) bind(m *method, raw []json.RawMessage) ([]any, error) {
	fixed := len(m.wire)
	if m.variadic {
		fixed--
	}
	if !m.variadic && len(raw) > fixed {
		return nil, Errorf(CodeInvalidArgument, "%s takes %d arguments, got %d", m.qualifiedName(), fixed, len(raw))
	}

	args := make([]any, 0, len(m.wire))
	for i := 0; i < fixed; i++ {
		pt := m.wire[i]
		if i < len(raw) {
			v, err := b.decodeArg(m, i, pt, raw[i])
			if err != nil {
				return nil, err
			}
			args = append(args, v.Interface())
			continue
		}
		switch {
		case m.defaults != nil && m.defaults[i].IsValid():
			args = append(args, m.defaults[i].Interface())
		case nilable(pt):
			args = append(args, reflect.Zero(pt).Interface())
		default:
			return nil, Errorf(CodeInvalidArgument, "%s: missing argument %d (%s)", m.qualifiedName(), i, pt)
		}
	}

	if m.variadic {
		st := m.wire[fixed]
		tail := reflect.MakeSlice(st, 0, max(len(raw)-fixed, 0))
		for i := fixed; i < len(raw); i++ {
			v, err := b.decodeArg(m, i, st.Elem(), raw[i])
			if err != nil {
				return nil, err
			}
			tail = reflect.Append(tail, v)
		}
		args = append(args, tail.Interface())
	}
	return args, nil
}

func (b *Bridge) decodeArg(m *method, i int, pt reflect.Type, raw json.RawMessage) (reflect.Value, error) {
	ptr := reflect.New(pt)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, Errorf(CodeInvalidArgument, "%s: argument %d: %v", m.qualifiedName(), i, err)
	}
	v := ptr.Elem()

	target := v
	if target.Kind() == reflect.Pointer {
		if target.IsNil() {
			return v, nil
		}
		target = target.Elem()
	}
	if target.Kind() == reflect.Struct && b.validate != nil {
		if err := b.validate.Struct(target.Interface()); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}

// invoke calls the method with injected parameters and unwraps the result.
func (m *method) invoke(ctx context.Context, cc *CallContext, args []any) (any, error) {
	in := make([]reflect.Value, len(m.kinds))
	w := 0
	for i, k := range m.kinds {
		switch k {
		case paramContext:
			in[i] = reflect.ValueOf(ctx)
		case paramCall:
			in[i] = reflect.ValueOf(cc)
		default:
			pt := m.wire[w]
			if w >= len(args) || args[w] == nil {
				in[i] = reflect.Zero(pt)
			} else {
				in[i] = reflect.ValueOf(args[w])
				if in[i].Type() != pt && in[i].Type().ConvertibleTo(pt) {
					in[i] = in[i].Convert(pt)
				}
			}
			w++
		}
	}

	var out []reflect.Value
	if m.variadic {
		out = m.fn.CallSlice(in)
	} else {
		out = m.fn.Call(in)
	}

	if m.hasError {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
	}
	if !m.hasValue {
		return nil, nil
	}
	return m.unwrap(ctx, out[0])
}

// unwrap waits for asynchronous results and collects sequences.
func (m *method) unwrap(ctx context.Context, v reflect.Value) (any, error) {
	switch m.result {
	case resultAwaiter:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, &InvocationError{Method: m.qualifiedName(), Err: errNilFuture}
		}
		res, err := v.Interface().(awaiter).awaitAny(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, &InvocationError{Method: m.qualifiedName(), Err: err}
		}
		return res, err

	case resultChan:
		if v.IsNil() {
			return nil, nil
		}
		chosen, recv, ok := reflect.Select([]reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: v},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		})
		if chosen == 1 {
			return nil, ctx.Err()
		}
		if !ok || v.Type().Elem() == reflect.TypeFor[struct{}]() {
			return nil, nil
		}
		return recv.Interface(), nil

	case resultSeq:
		if v.IsNil() {
			return []any{}, nil
		}
		items := []any{}
		for item := range v.Seq() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			items = append(items, item.Interface())
		}
		return items, nil

	default:
		if v.Kind() == reflect.Struct && v.NumField() == 0 {
			return nil, nil
		}
		return v.Interface(), nil
	}
}

func (b *Bridge) logPanic(req *wire.Request, rec any) {
	b.log().Error("PANIC recovered",
		slog.String("call_id", req.CallID),
		slog.String("method", req.Method),
		slog.Any("panic", rec),
		slog.String("stack", string(debug.Stack())))
}

// encodeResult marshals a method's result. A panicking MarshalJSON is
// reported as an invocation fault.
func (b *Bridge) encodeResult(req *wire.Request, result any) (raw json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logPanic(req, rec)
			raw = nil
			err = &InvocationError{Method: req.Method, Err: fmt.Errorf("encode result: panic: %v", rec)}
		}
	}()
	raw, err = marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

// safeWireError is wireError guarded against a panicking ErrorTransformer.
func (b *Bridge) safeWireError(ctx context.Context, req *wire.Request, err error) (we *wire.Error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logPanic(req, rec)
			msg := fmt.Sprintf("panic: %v", rec)
			if b.maskInternalErrors {
				msg = "internal error"
			}
			we = NewError(CodeInternal, msg).toWire()
		}
	}()
	return b.wireError(ctx, req, err)
}

// wireError maps err to the error sent on the wire.
func (b *Bridge) wireError(ctx context.Context, req *wire.Request, err error) *wire.Error {
	cause := rootCause(err)

	// A call cancelled through its handle reports the fixed cancellation tag.
	if ctx.Err() != nil && errors.Is(cause, context.Canceled) {
		b.log().Debug("call canceled", slog.String("call_id", req.CallID), slog.String("method", req.Method))
		return NewError(CodeCanceled, "call canceled").toWire()
	}

	var svcErr *Error
	if b.errorTransformer != nil {
		svcErr = b.errorTransformer(cause)
	}
	if svcErr == nil {
		svcErr = DefaultErrorTransformer(cause)
	}

	if svcErr.Code == CodeInternal {
		b.log().Error("call failed",
			slog.String("call_id", req.CallID),
			slog.String("method", req.Method),
			slog.Any("error", err))
		if b.maskInternalErrors {
			svcErr = NewError(CodeInternal, "internal error")
		}
	}
	return svcErr.toWire()
}

// marshal encodes v; nil encodes as an absent result.
func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

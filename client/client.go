// Package client calls services exposed by a bridge over a wire.Channel.
//
// It is the Go counterpart of the generated TypeScript runtime: each call gets
// a correlation id and a pending entry that is removed exactly once, by the
// response, a timeout, an explicit cancel or Close, whichever happens first.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/broady/bridge/wire"
)

var (
	// ErrTimeout settles a call whose timeout fired before a response arrived.
	ErrTimeout = errors.New("client: call timed out")

	// ErrCanceled settles a call cancelled by its context or Call.Cancel.
	ErrCanceled = errors.New("client: call canceled")

	// ErrClosed settles calls pending when the client is closed, and calls
	// made afterwards.
	ErrClosed = errors.New("client: closed")
)

// canceledType is the error type the host reports for a cancelled call.
const canceledType = "canceled"

// CallError is an error response from the host.
type CallError struct {
	Type    string
	Message string
}

func (e *CallError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// IsCanceled reports whether err is a local cancellation or a host error
// response carrying the cancellation tag.
func IsCanceled(err error) bool {
	if errors.Is(err, ErrCanceled) {
		return true
	}
	var ce *CallError
	return errors.As(err, &ce) && ce.Type == canceledType
}

// Client correlates calls and responses on one channel and dispatches event
// pushes to listeners.
type Client struct {
	ch      wire.Channel
	clock   clock.Clock
	timeout time.Duration
	newID   func() string
	logger  *slog.Logger

	mu        sync.Mutex
	pending   map[string]*Call
	listeners map[string][]*listener
	nextLis   uint64
	closed    bool
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for call timeouts.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithTimeout sets the default timeout for calls. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithIDGenerator replaces the random correlation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(cl *Client) { cl.newID = fn }
}

// WithLogger sets a custom logger. If not set, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New returns a client reading from and writing to ch. It installs ch's
// receive handler.
func New(ch wire.Channel, opts ...Option) *Client {
	c := &Client{
		ch:        ch,
		clock:     clock.WallClock,
		newID:     uuid.NewString,
		pending:   make(map[string]*Call),
		listeners: make(map[string][]*listener),
	}
	for _, o := range opts {
		o(c)
	}
	ch.OnReceive(c.receive)
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// CallOption configures a single call. Pass it among the arguments of Go or
// Call; it is not sent.
type CallOption func(*callOptions)

type callOptions struct {
	timeout    time.Duration
	hasTimeout bool
}

// Timeout overrides the client's default timeout for one call. Zero means
// none.
func Timeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout, o.hasTimeout = d, true }
}

// Call is one outstanding or settled call.
type Call struct {
	ID     string
	Method string

	client *Client
	done   chan struct{}
	result json.RawMessage
	err    error

	// Disarm functions for the timeout and context triggers.
	timer   clock.Timer
	stopCtx func() bool

	// Guarded by client.mu. While the request is being sent a cancel
	// message is deferred until Send returns, so it never overtakes it.
	sending         bool
	cancelAfterSend bool
}

// Done is closed when the call settles.
func (call *Call) Done() <-chan struct{} { return call.done }

// Err returns the call's error once it has settled.
func (call *Call) Err() error {
	<-call.done
	return call.err
}

// Wait blocks until the call settles and decodes the result into result,
// which may be nil to discard it.
func (call *Call) Wait(result any) error {
	<-call.done
	if call.err != nil {
		return call.err
	}
	if result == nil || len(call.result) == 0 {
		return nil
	}
	if err := json.Unmarshal(call.result, result); err != nil {
		return fmt.Errorf("client: decode %s result: %w", call.Method, err)
	}
	return nil
}

// Cancel settles the call with ErrCanceled and asks the host to stop it. It
// does nothing if the call already settled.
func (call *Call) Cancel() {
	call.client.abandon(call.ID, ErrCanceled)
}

// finish settles the call. Only the caller that took the call from the
// pending table may call it.
func (call *Call) finish(result json.RawMessage, err error) {
	if call.timer != nil {
		call.timer.Stop()
	}
	if call.stopCtx != nil {
		call.stopCtx()
	}
	call.result, call.err = result, err
	close(call.done)
}

func settled(method string, err error) *Call {
	call := &Call{Method: method, done: make(chan struct{})}
	call.finish(nil, err)
	return call
}

// Go starts a call to method ("Service.Method") and returns without waiting.
// Cancelling ctx cancels the call.
func (c *Client) Go(ctx context.Context, method string, args ...any) *Call {
	var co callOptions
	wireArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		if o, ok := a.(CallOption); ok {
			o(&co)
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return settled(method, fmt.Errorf("client: encode argument %d of %s: %w", len(wireArgs), method, err))
		}
		wireArgs = append(wireArgs, raw)
	}
	timeout := c.timeout
	if co.hasTimeout {
		timeout = co.timeout
	}

	if err := ctx.Err(); err != nil {
		return settled(method, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx)))
	}

	call := &Call{ID: c.newID(), Method: method, client: c, done: make(chan struct{}), sending: true}
	msg, err := wire.Encode(wire.Request{CallID: call.ID, Method: method, Args: wireArgs})
	if err != nil {
		return settled(method, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return settled(method, ErrClosed)
	}
	if _, dup := c.pending[call.ID]; dup {
		c.mu.Unlock()
		return settled(method, fmt.Errorf("client: call id %q already in flight", call.ID))
	}
	c.pending[call.ID] = call
	if timeout > 0 {
		id := call.ID
		call.timer = c.clock.AfterFunc(timeout, func() { c.abandon(id, ErrTimeout) })
	}
	if ctx.Done() != nil {
		id := call.ID
		call.stopCtx = context.AfterFunc(ctx, func() {
			c.abandon(id, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx)))
		})
	}
	c.mu.Unlock()

	sendErr := c.ch.Send(msg)

	c.mu.Lock()
	call.sending = false
	cancelNow := call.cancelAfterSend && sendErr == nil
	c.mu.Unlock()

	if sendErr != nil {
		if call, ok := c.take(call.ID); ok {
			call.finish(nil, fmt.Errorf("client: send %s: %w", method, sendErr))
		}
	}
	if cancelNow {
		c.sendCancel(call.ID)
	}
	return call
}

// Call invokes method, waits for it and decodes the result into result.
func (c *Client) Call(ctx context.Context, method string, result any, args ...any) error {
	return c.Go(ctx, method, args...).Wait(result)
}

// take removes and returns the pending call with id.
func (c *Client) take(id string) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return call, ok
}

// abandon settles a still pending call locally and sends a best-effort cancel.
func (c *Client) abandon(id string, err error) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	deferred := call.sending
	call.cancelAfterSend = deferred
	c.mu.Unlock()

	call.finish(nil, err)
	c.log().Debug("call abandoned", slog.String("call_id", id), slog.String("method", call.Method), slog.Any("error", err))
	if !deferred {
		c.sendCancel(id)
	}
}

func (c *Client) sendCancel(id string) {
	msg, encErr := wire.Encode(wire.Cancel{Cancel: id})
	if encErr != nil {
		return
	}
	if sendErr := c.ch.Send(msg); sendErr != nil {
		c.log().Debug("cancel not delivered", slog.String("call_id", id), slog.Any("error", sendErr))
	}
}

func (c *Client) receive(raw string) {
	msg, err := wire.Decode(raw)
	if err != nil {
		c.log().Debug("dropping malformed message", slog.Any("error", err))
		return
	}
	switch msg.Kind {
	case wire.KindResponse:
		resp := msg.Response
		call, ok := c.take(resp.CallID)
		if !ok {
			// Already settled by a timeout or cancel, or never ours.
			c.log().Debug("response for unknown call", slog.String("call_id", resp.CallID))
			return
		}
		if resp.Error != nil {
			call.finish(nil, &CallError{Type: resp.Error.Type, Message: resp.Error.Message})
			return
		}
		call.finish(resp.Result, nil)

	case wire.KindEvent:
		c.emit(msg.Event.Event, msg.Event.Data)

	default:
		c.log().Debug("ignoring unexpected message", slog.String("kind", msg.Kind.String()))
	}
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close settles every pending call with ErrClosed. Later calls fail with
// ErrClosed. The channel is left open.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if call, ok := c.take(id); ok {
			call.finish(nil, ErrClosed)
		}
	}
	return nil
}

// Package testutil provides testing helpers for code served through a bridge.
// It depends only on the wire package, so it can be used from any package,
// including the bridge package's own tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/broady/bridge/wire"
)

// DefaultTimeout bounds every wait in a Peer.
const DefaultTimeout = 5 * time.Second

// Attacher is implemented by *bridge.Bridge.
type Attacher interface {
	Attach(ch wire.Channel) (detach func())
}

// Peer is the client side of an in-memory channel attached to a bridge. It
// speaks raw wire messages so tests can observe exactly what the host sends.
type Peer struct {
	t      testing.TB
	end    *wire.PipeEnd
	host   *wire.PipeEnd
	detach func()
	nextID atomic.Uint64

	// Timeout bounds Next, Response and Event.
	Timeout time.Duration

	inbox chan wire.Message

	mu      sync.Mutex
	pending []wire.Message
}

// NewPeer attaches a new pipe to a and returns its client end. The pipe is
// detached and closed when the test ends.
func NewPeer(t testing.TB, a Attacher) *Peer {
	t.Helper()
	host, end := wire.Pipe()
	p := &Peer{
		t:       t,
		end:     end,
		host:    host,
		Timeout: DefaultTimeout,
		inbox:   make(chan wire.Message, 256),
	}
	end.OnReceive(func(raw string) {
		msg, err := wire.Decode(raw)
		if err != nil {
			t.Errorf("host sent malformed message %q: %v", raw, err)
			return
		}
		p.inbox <- msg
	})
	p.detach = a.Attach(host)
	t.Cleanup(p.Close)
	return p
}

// Close detaches the pipe and closes both ends.
func (p *Peer) Close() {
	p.detach()
	_ = p.end.Close()
	_ = p.host.Close()
}

// Detach detaches the pipe from the bridge without closing it.
func (p *Peer) Detach() {
	p.detach()
}

// SendRaw sends msg verbatim.
func (p *Peer) SendRaw(msg string) {
	p.t.Helper()
	if err := p.end.Send(msg); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

// Request sends a call request with a fresh id and returns the id.
func (p *Peer) Request(method string, args ...any) string {
	p.t.Helper()
	id := "call-" + strconv.FormatUint(p.nextID.Add(1), 10)
	p.RequestID(id, method, args...)
	return id
}

// RequestID sends a call request with the given id. Each arg is encoded as
// JSON unless it is already a json.RawMessage.
func (p *Peer) RequestID(id, method string, args ...any) {
	p.t.Helper()
	req := wire.Request{CallID: id, Method: method, Args: make([]json.RawMessage, len(args))}
	for i, a := range args {
		if raw, ok := a.(json.RawMessage); ok {
			req.Args[i] = raw
			continue
		}
		b, err := json.Marshal(a)
		if err != nil {
			p.t.Fatalf("encode argument %d: %v", i, err)
		}
		req.Args[i] = b
	}
	p.send(req)
}

// Cancel sends a cancel request for id.
func (p *Peer) Cancel(id string) {
	p.t.Helper()
	p.send(wire.Cancel{Cancel: id})
}

func (p *Peer) send(v any) {
	p.t.Helper()
	msg, err := wire.Encode(v)
	if err != nil {
		p.t.Fatalf("encode: %v", err)
	}
	p.SendRaw(msg)
}

// Call sends a request and waits for its response.
func (p *Peer) Call(method string, args ...any) *wire.Response {
	p.t.Helper()
	return p.Response(p.Request(method, args...))
}

// Next returns the next message not yet consumed by Response or Event.
func (p *Peer) Next() wire.Message {
	p.t.Helper()
	p.mu.Lock()
	if len(p.pending) > 0 {
		msg := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
		return msg
	}
	p.mu.Unlock()
	return p.receive()
}

func (p *Peer) receive() wire.Message {
	p.t.Helper()
	select {
	case msg := <-p.inbox:
		return msg
	case <-time.After(p.Timeout):
		p.t.Fatalf("no message from host after %v", p.Timeout)
		return wire.Message{}
	}
}

// take waits for the first message matching match, buffering others.
func (p *Peer) take(match func(wire.Message) bool) wire.Message {
	p.t.Helper()
	p.mu.Lock()
	if i := slices.IndexFunc(p.pending, match); i >= 0 {
		msg := p.pending[i]
		p.pending = slices.Delete(p.pending, i, i+1)
		p.mu.Unlock()
		return msg
	}
	p.mu.Unlock()
	for {
		msg := p.receive()
		if match(msg) {
			return msg
		}
		p.mu.Lock()
		p.pending = append(p.pending, msg)
		p.mu.Unlock()
	}
}

// Response waits for the response to call id.
func (p *Peer) Response(id string) *wire.Response {
	p.t.Helper()
	msg := p.take(func(m wire.Message) bool {
		return m.Kind == wire.KindResponse && m.Response.CallID == id
	})
	return msg.Response
}

// Event waits for the next event named name.
func (p *Peer) Event(name string) *wire.Event {
	p.t.Helper()
	msg := p.take(func(m wire.Message) bool {
		return m.Kind == wire.KindEvent && m.Event.Event == name
	})
	return msg.Event
}

// ExpectNone fails if a message arrives within d.
func (p *Peer) ExpectNone(d time.Duration) {
	p.t.Helper()
	p.mu.Lock()
	n := len(p.pending)
	p.mu.Unlock()
	if n > 0 {
		p.t.Errorf("unexpected buffered messages: %d", n)
		return
	}
	select {
	case msg := <-p.inbox:
		p.t.Errorf("unexpected message: %+v", msg)
	case <-time.After(d):
	}
}

// AssertResult checks that resp succeeded with a result equal to want once
// both are encoded as JSON. A nil want expects an absent result.
func AssertResult(t testing.TB, resp *wire.Response, want any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("call %s failed: %v", resp.CallID, resp.Error)
	}
	if want == nil {
		if resp.Result != nil {
			t.Errorf("result = %s, want none", resp.Result)
		}
		return
	}
	wantJSON, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("encode want: %v", err)
	}
	var got, exp any
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("decode result %s: %v", resp.Result, err)
	}
	_ = json.Unmarshal(wantJSON, &exp)
	gotJSON, _ := json.Marshal(got)
	expJSON, _ := json.Marshal(exp)
	if string(gotJSON) != string(expJSON) {
		t.Errorf("result = %s, want %s", gotJSON, expJSON)
	}
}

// AssertError checks that resp failed with the given error type.
func AssertError(t testing.TB, resp *wire.Response, typ string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("call %s succeeded with %s, want %s error", resp.CallID, resp.Result, typ)
	}
	if resp.Error.Type != typ {
		t.Errorf("error type = %q (%s), want %q", resp.Error.Type, resp.Error.Message, typ)
	}
	if resp.Result != nil {
		t.Errorf("failed response carries result %s", resp.Result)
	}
}

// AssertStatus checks that an HTTP response has the expected status code.
func AssertStatus(t testing.TB, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d\nBody: %s", expectedStatus, w.Code, w.Body.String())
	}
}

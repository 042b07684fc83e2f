package bridge

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strconv"
	"testing"

	"github.com/broady/bridge/testutil"
)

// Calc is the main fixture service.
type Calc struct {
	started chan string
	release chan struct{}
	done    chan error
}

func newCalc() *Calc {
	return &Calc{
		started: make(chan string, 8),
		release: make(chan struct{}),
		done:    make(chan error, 8),
	}
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Signup struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"gte=13"`
}

func (*Calc) Add(a, b int) int { return a + b }

func (*Calc) Div(a, b int) (int, error) {
	if b == 0 {
		return 0, NewError(CodeInvalidArgument, "division by zero")
	}
	return a / b, nil
}

func (*Calc) Sum(label string, nums ...int) string {
	total := 0
	for _, n := range nums {
		total += n
	}
	return label + "=" + strconv.Itoa(total)
}

func (*Calc) Greet(greeting, name string) string { return greeting + ", " + name }

func (*Calc) Origin() Point { return Point{} }

func (*Calc) Move(p *Point, dx int) *Point {
	if p == nil {
		return nil
	}
	return &Point{X: p.X + dx, Y: p.Y}
}

func (*Calc) Nothing() {}

func (*Calc) Fail() error { return errors.New("disk on fire") }

func (*Calc) Typed() error { return typedErr{} }

func (*Calc) Joined() error {
	return errors.Join(NewError(CodeNotFound, "a missing"), errors.New("b missing"))
}

func (*Calc) Panic() int { panic("boom") }

func (*Calc) SignUp(s Signup) string { return s.Email }

func (*Calc) SignUpPtr(s *Signup) bool { return s != nil }

func (*Calc) Whoami(ctx context.Context, call *CallContext) ([]string, error) {
	service, method, _ := MethodFromContext(ctx)
	return []string{service, method, call.ID, call.EndpointID()}, nil
}

// Slow blocks until the call is cancelled or released.
func (c *Calc) Slow(ctx context.Context, id string) (string, error) {
	c.started <- id
	defer func() { c.done <- ctx.Err() }()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.release:
		return "released " + id, nil
	}
}

func (*Calc) Later(v int) Future[int] {
	f := NewFuture[int]()
	go f.Resolve(v * 2)
	return f
}

func (*Calc) LaterPtr(fail bool) *Future[string] {
	if fail {
		f := Rejected[string](NewError(CodeNotFound, "gone"))
		return &f
	}
	f := Resolved("ready")
	return &f
}

func (*Calc) NilFuture() *Future[int] { return nil }

func (*Calc) Tick() Future[struct{}] { return Resolved(struct{}{}) }

func (*Calc) Chan() <-chan int {
	ch := make(chan int, 1)
	ch <- 42
	return ch
}

func (*Calc) Closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (*Calc) Count(n int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range n {
			if !yield(i) {
				return
			}
		}
	}
}

func (*Calc) Announce(call *CallContext, msg string) error {
	return call.Reply("announcement", msg)
}

func (*Calc) Broadcast(call *CallContext, msg string) error {
	return call.Emit("broadcast", msg)
}

// Unencodable returns a value whose encoding panics.
func (*Calc) Unencodable() explosive { return explosive{} }

// Bad has an unsupported result list and is skipped at registration.
func (*Calc) Bad() (int, int) { return 0, 0 }

func (*Calc) String() string { return "calc" }

type explosive struct{}

func (explosive) MarshalJSON() ([]byte, error) { panic("encoder blew up") }

type typedErr struct{}

func (typedErr) Error() string     { return "quota used up" }
func (typedErr) ErrorType() string { return "quota" }

var quiet = slog.New(slog.DiscardHandler)

// newTestBridge registers a fresh Calc and returns both with a connected peer.
func newTestBridge(t *testing.T, opts ...ServiceOption) (*Bridge, *Calc, *testutil.Peer) {
	t.Helper()
	b := NewBridge().WithLogger(quiet)
	calc := newCalc()
	if err := b.Register(calc, opts...); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b, calc, testutil.NewPeer(t, b)
}

package bridge

import (
	"context"
	"errors"
	"sync"
)

var errNilFuture = errors.New("bridge: uninitialized future")

// Future is a value that becomes available later. A service method returning
// Future[T] or *Future[T] is asynchronous: the bridge waits for the future
// under the call's context and replies with its value.
//
// Future[struct{}] carries no value.
type Future[T any] struct {
	st *futureState[T]
}

type futureState[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an unsettled future.
func NewFuture[T any]() Future[T] {
	return Future[T]{st: &futureState[T]{done: make(chan struct{})}}
}

// Resolved returns a future holding v.
func Resolved[T any](v T) Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future holding err.
func Rejected[T any](err error) Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Async runs fn on a new goroutine and returns a future for its result.
func Async[T any](ctx context.Context, fn func(context.Context) (T, error)) Future[T] {
	f := NewFuture[T]()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with v. It reports false if the future was
// already settled.
func (f Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err.
func (f Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f Future[T]) settle(v T, err error) bool {
	if f.st == nil {
		return false
	}
	settled := false
	f.st.once.Do(func() {
		f.st.value, f.st.err = v, err
		close(f.st.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is settled.
func (f Future[T]) Done() <-chan struct{} {
	if f.st == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.st.done
}

// Await waits for the future or for ctx to end.
func (f Future[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if f.st == nil {
		return zero, errNilFuture
	}
	select {
	case <-f.st.done:
		return f.st.value, f.st.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// awaitAny lets the bridge wait on any instantiation.
func (f Future[T]) awaitAny(ctx context.Context) (any, error) {
	v, err := f.Await(ctx)
	if err != nil {
		return nil, err
	}
	if _, void := any(v).(struct{}); void {
		return nil, nil
	}
	return v, nil
}

type awaiter interface {
	awaitAny(ctx context.Context) (any, error)
}

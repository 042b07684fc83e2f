package bridge

import "sync"

// Dispatcher runs outbound sends on the execution context that owns the
// channels. Dispatch may be called from any goroutine; fn must run on the
// owning context in the order dispatched.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher. Embedders whose UI loop has
// its own "run on main thread" primitive can pass it directly.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// SerialDispatcher runs functions one at a time on a single goroutine.
type SerialDispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialDispatcher starts a dispatcher goroutine. Call Close to stop it.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Dispatch queues fn. It never blocks; functions dispatched after Close are
// dropped.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// Close stops the dispatcher after the queued functions have run.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

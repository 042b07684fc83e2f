package client

import (
	"encoding/json"
	"log/slog"
	"slices"
)

type listener struct {
	id   uint64
	fn   func(json.RawMessage)
	once bool
}

// On registers fn for event pushes named event. data is nil for events
// without a payload. The returned function removes the listener.
func (c *Client) On(event string, fn func(data json.RawMessage)) (off func()) {
	return c.listen(event, fn, false)
}

// Once registers fn for the next push of event only.
func (c *Client) Once(event string, fn func(data json.RawMessage)) (off func()) {
	return c.listen(event, fn, true)
}

// Off removes every listener for event.
func (c *Client) Off(event string) {
	c.mu.Lock()
	delete(c.listeners, event)
	c.mu.Unlock()
}

func (c *Client) listen(event string, fn func(json.RawMessage), once bool) func() {
	c.mu.Lock()
	c.nextLis++
	l := &listener{id: c.nextLis, fn: fn, once: once}
	c.listeners[event] = append(c.listeners[event], l)
	c.mu.Unlock()
	return func() { c.remove(event, l.id) }
}

func (c *Client) remove(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := slices.DeleteFunc(slices.Clone(c.listeners[event]), func(l *listener) bool { return l.id == id })
	if len(ls) == 0 {
		delete(c.listeners, event)
		return
	}
	c.listeners[event] = ls
}

// emit runs the listeners for event in registration order. Once listeners are
// removed before any listener runs.
func (c *Client) emit(event string, data json.RawMessage) {
	c.mu.Lock()
	ls := c.listeners[event]
	if slices.ContainsFunc(ls, func(l *listener) bool { return l.once }) {
		kept := slices.DeleteFunc(slices.Clone(ls), func(l *listener) bool { return l.once })
		if len(kept) == 0 {
			delete(c.listeners, event)
		} else {
			c.listeners[event] = kept
		}
	}
	c.mu.Unlock()

	if len(ls) == 0 {
		c.log().Debug("event without listeners", slog.String("event", event))
		return
	}
	for _, l := range ls {
		l.fn(data)
	}
}

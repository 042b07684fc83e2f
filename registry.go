package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/broady/bridge/internal/convention"
	"github.com/broady/bridge/wire"
)

// Bridge dispatches calls arriving on attached channels to registered
// services and pushes events back out.
type Bridge struct {
	mu        sync.RWMutex
	services  map[string]*service
	endpoints map[*endpoint]struct{}

	// inflight maps call id to *inflightCall.
	inflight sync.Map

	ctx    context.Context
	cancel context.CancelFunc

	dispatcher         Dispatcher
	ownDispatcher      *SerialDispatcher
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	logger             *slog.Logger
	validate           *validator.Validate
}

// NewBridge returns a Bridge with no services. Outbound messages go through a
// SerialDispatcher unless WithDispatcher is used.
func NewBridge() *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		services:  make(map[string]*service),
		endpoints: make(map[*endpoint]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WithErrorTransformer adds a custom error transformer.
// It returns the bridge for chaining.
func (b *Bridge) WithErrorTransformer(fn ErrorTransformer) *Bridge {
	b.errorTransformer = fn
	return b
}

// WithMaskInternalErrors replaces the message of internal errors with a
// generic one. The original error is still logged and seen by interceptors.
func (b *Bridge) WithMaskInternalErrors() *Bridge {
	b.maskInternalErrors = true
	return b
}

// WithUnaryInterceptor adds an interceptor. Interceptors run in the order
// added.
func (b *Bridge) WithUnaryInterceptor(i UnaryInterceptor) *Bridge {
	b.interceptors = append(b.interceptors, i)
	return b
}

// WithLogger sets a custom logger for the bridge.
// If not set, slog.Default() will be used.
func (b *Bridge) WithLogger(logger *slog.Logger) *Bridge {
	b.logger = logger
	return b
}

// WithDispatcher routes outbound sends through d.
func (b *Bridge) WithDispatcher(d Dispatcher) *Bridge {
	b.dispatcher = d
	return b
}

// WithValidator replaces the validator used on struct arguments.
func (b *Bridge) WithValidator(v *validator.Validate) *Bridge {
	b.validate = v
	return b
}

func (b *Bridge) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

func (b *Bridge) dispatch(fn func()) {
	b.mu.Lock()
	if b.dispatcher == nil {
		b.ownDispatcher = NewSerialDispatcher()
		b.dispatcher = b.ownDispatcher
	}
	d := b.dispatcher
	b.mu.Unlock()
	d.Dispatch(fn)
}

// ServiceOption configures a registration.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	name     string
	ignore   map[string]bool
	defaults map[string][]any
}

// Named overrides the service name, which defaults to the type name.
func Named(name string) ServiceOption {
	return func(c *serviceConfig) { c.name = name }
}

// Ignore excludes methods from the callable surface.
func Ignore(methods ...string) ServiceOption {
	return func(c *serviceConfig) {
		for _, m := range methods {
			c.ignore[m] = true
		}
	}
}

// Defaults declares default values for the trailing wire parameters of
// method. They are used when a call supplies fewer arguments.
//
//	b.Register(&Greeter{}, bridge.Defaults("Greet", "world"))
func Defaults(method string, values ...any) ServiceOption {
	return func(c *serviceConfig) { c.defaults[method] = values }
}

// declarations holds the annotations compiled into generated registration
// files, keyed by qualified type name ("import/path.Type").
var declarations sync.Map

type declaration struct {
	name   string
	ignore []string
}

// Declare records the service name and ignored methods that source
// annotations give the type named typeName ("import/path.Type"). Register
// applies them to any service of that type. bridgegen writes the calls into
// the package it scans, so the Go surface matches the generated stubs.
func Declare(typeName, serviceName string, ignore ...string) {
	declarations.Store(typeName, declaration{name: serviceName, ignore: ignore})
}

func declared(t reflect.Type) (declaration, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return declaration{}, false
	}
	d, ok := declarations.Load(t.PkgPath() + "." + t.Name())
	if !ok {
		return declaration{}, false
	}
	return d.(declaration), true
}

// Register makes the exported methods of svc callable as "Name.Method".
// svc is normally a pointer to a struct. Methods whose results are not (),
// (T), (error) or (T, error) are skipped with a warning.
//
// A name and ignore list recorded with Declare apply first; Named and Ignore
// override and extend them. Registering a second service under the same name
// replaces the first.
func (b *Bridge) Register(svc any, opts ...ServiceOption) error {
	if svc == nil {
		return errors.New("bridge: nil service")
	}
	v := reflect.ValueOf(svc)
	cfg := &serviceConfig{ignore: make(map[string]bool), defaults: make(map[string][]any)}
	if d, ok := declared(v.Type()); ok {
		cfg.name = d.name
		for _, m := range d.ignore {
			cfg.ignore[m] = true
		}
	}
	for _, o := range opts {
		o(cfg)
	}

	name := cfg.name
	if name == "" {
		name = reflect.Indirect(v).Type().Name()
	}
	if name == "" {
		return fmt.Errorf("bridge: cannot derive a service name from %T; use Named", svc)
	}
	if strings.Contains(name, wire.MethodSeparator) {
		return fmt.Errorf("bridge: service name %q must not contain %q", name, wire.MethodSeparator)
	}

	s, err := newService(name, v, cfg, b.log())
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, dup := b.services[name]; dup {
		b.log().Warn("duplicate service registration",
			slog.String("service", name),
			slog.String("previous", prev.typ.String()),
			slog.String("replacement", s.typ.String()))
	}
	b.services[name] = s
	return nil
}

// Services returns the registered service names, sorted.
func (b *Bridge) Services() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.services))
	for n := range b.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *Bridge) lookup(serviceName, methodName string) (*method, error) {
	b.mu.RLock()
	s, ok := b.services[serviceName]
	b.mu.RUnlock()
	if !ok {
		return nil, Errorf(CodeNotFound, "unknown service %q", serviceName)
	}
	m, ok := s.methods[methodName]
	if !ok {
		return nil, Errorf(CodeNotFound, "unknown method %q on service %q", methodName, serviceName)
	}
	return m, nil
}

// endpoint is one attached channel.
type endpoint struct {
	ch       wire.Channel
	mu       sync.RWMutex
	detached bool
}

func (e *endpoint) isDetached() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.detached
}

// Attach starts serving calls arriving on ch. Responses go back to the channel
// a request came from; events go to every attached channel. The returned
// function detaches ch; messages arriving afterwards are ignored.
func (b *Bridge) Attach(ch wire.Channel) (detach func()) {
	ep := &endpoint{ch: ch}
	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()

	ch.OnReceive(func(msg string) {
		if ep.isDetached() {
			return
		}
		go b.handle(ep, msg)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			ep.mu.Lock()
			ep.detached = true
			ep.mu.Unlock()

			b.mu.Lock()
			delete(b.endpoints, ep)
			b.mu.Unlock()
		})
	}
}

// Emit pushes an event to every attached channel. data may be nil. It is safe
// to call from any goroutine.
func (b *Bridge) Emit(event string, data any) error {
	b.mu.RLock()
	eps := make([]*endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		eps = append(eps, ep)
	}
	b.mu.RUnlock()
	return b.emitTo(eps, event, data)
}

func (b *Bridge) emitTo(eps []*endpoint, event string, data any) error {
	if event == "" {
		return errors.New("bridge: empty event name")
	}
	ev := wire.Event{Event: event}
	if data != nil {
		raw, err := marshal(data)
		if err != nil {
			return fmt.Errorf("bridge: encode %s payload: %w", event, err)
		}
		ev.Data = raw
	}
	msg, err := wire.Encode(ev)
	if err != nil {
		return err
	}
	b.dispatch(func() {
		for _, ep := range eps {
			b.sendRaw(ep, msg)
		}
	})
	return nil
}

// send encodes v and queues it for ep.
func (b *Bridge) send(ep *endpoint, v any) {
	msg, err := wire.Encode(v)
	if err != nil {
		b.log().Error("failed to encode message", slog.Any("error", err))
		return
	}
	b.dispatch(func() { b.sendRaw(ep, msg) })
}

// sendRaw runs on the dispatcher.
func (b *Bridge) sendRaw(ep *endpoint, msg string) {
	if ep.isDetached() {
		return
	}
	if err := ep.ch.Send(msg); err != nil {
		b.log().Warn("send failed", slog.Any("error", err))
	}
}

// Close cancels every in-flight call and stops the default dispatcher after
// queued messages are sent.
func (b *Bridge) Close() {
	b.cancel()
	b.mu.Lock()
	d := b.ownDispatcher
	b.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

// isHookMethod is shared with build-time discovery.
func isHookMethod(name string) bool {
	return convention.IsHookMethod(name)
}

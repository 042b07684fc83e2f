package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

var (
	contextType     = reflect.TypeFor[context.Context]()
	callContextType = reflect.TypeFor[*CallContext]()
	errorType       = reflect.TypeFor[error]()
	awaiterType     = reflect.TypeFor[awaiter]()
)

// service is a registered instance and its dispatch table, built once at
// registration.
type service struct {
	name    string
	typ     reflect.Type
	methods map[string]*method
}

type paramKind int

const (
	paramWire paramKind = iota
	paramContext
	paramCall
)

// resultKind classifies what a method returns after its optional error.
type resultKind int

const (
	resultNone resultKind = iota
	resultValue
	resultAwaiter
	resultChan
	resultSeq
)

type method struct {
	service string
	name    string
	fn      reflect.Value
	typ     reflect.Type

	kinds []paramKind

	// wire are the parameter types supplied from the wire, in order.
	wire     []reflect.Type
	variadic bool

	// defaults holds default values for the trailing wire parameters.
	defaults []reflect.Value

	result   resultKind
	hasValue bool
	hasError bool
}

func newService(name string, v reflect.Value, cfg *serviceConfig, logger *slog.Logger) (*service, error) {
	s := &service{name: name, typ: v.Type(), methods: make(map[string]*method)}

	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		mt := t.Method(i)
		if !mt.IsExported() || isHookMethod(mt.Name) || cfg.ignore[mt.Name] {
			continue
		}
		m, err := newMethod(name, mt.Name, v.Method(i))
		if err != nil {
			logger.Warn("skipping method", slog.String("service", name), slog.String("method", mt.Name), slog.Any("error", err))
			continue
		}
		s.methods[mt.Name] = m
	}

	for mname, values := range cfg.defaults {
		m, ok := s.methods[mname]
		if !ok {
			return nil, fmt.Errorf("bridge: defaults for unknown method %s.%s", name, mname)
		}
		if err := m.setDefaults(values); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newMethod(service, name string, fn reflect.Value) (*method, error) {
	ft := fn.Type()
	m := &method{service: service, name: name, fn: fn, typ: ft, variadic: ft.IsVariadic()}

	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		switch {
		case in == contextType:
			m.kinds = append(m.kinds, paramContext)
		case in == callContextType:
			m.kinds = append(m.kinds, paramCall)
		default:
			m.kinds = append(m.kinds, paramWire)
			m.wire = append(m.wire, in)
		}
	}
	if m.variadic && m.kinds[len(m.kinds)-1] != paramWire {
		return nil, fmt.Errorf("variadic injected parameter")
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.hasError = true
		} else {
			m.hasValue = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("second result must be error, got %s", ft.Out(1))
		}
		m.hasValue, m.hasError = true, true
	default:
		return nil, fmt.Errorf("results must be (), (T), (error) or (T, error)")
	}
	if m.hasValue {
		m.result = classifyResult(ft.Out(0))
	}
	return m, nil
}

func classifyResult(t reflect.Type) resultKind {
	switch {
	case t.Implements(awaiterType):
		return resultAwaiter
	case t.Kind() == reflect.Chan && t.ChanDir()&reflect.RecvDir != 0:
		return resultChan
	case isSeq(t):
		return resultSeq
	default:
		return resultValue
	}
}

// isSeq reports whether t is an iter.Seq instantiation.
func isSeq(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.PkgPath() != "iter" {
		return false
	}
	return t.NumIn() == 1 && t.NumOut() == 0 && t.CanSeq()
}

func (m *method) setDefaults(values []any) error {
	wire := m.wire
	if m.variadic {
		wire = wire[:len(wire)-1]
	}
	if len(values) > len(wire) {
		return fmt.Errorf("bridge: %d defaults for %s.%s, which has %d parameters", len(values), m.service, m.name, len(wire))
	}
	offset := len(wire) - len(values)
	m.defaults = make([]reflect.Value, len(wire))
	for i, val := range values {
		pt := wire[offset+i]
		if val == nil {
			if !nilable(pt) {
				return fmt.Errorf("bridge: nil default for %s parameter %d of %s.%s", pt, offset+i, m.service, m.name)
			}
			m.defaults[offset+i] = reflect.Zero(pt)
			continue
		}
		rv := reflect.ValueOf(val)
		switch {
		case rv.Type().AssignableTo(pt):
		case rv.Type().ConvertibleTo(pt):
			rv = rv.Convert(pt)
		default:
			return fmt.Errorf("bridge: default %T not assignable to %s parameter %d of %s.%s", val, pt, offset+i, m.service, m.name)
		}
		m.defaults[offset+i] = rv
	}
	return nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// qualifiedName returns "Service.Method".
func (m *method) qualifiedName() string {
	return m.service + "." + m.name
}

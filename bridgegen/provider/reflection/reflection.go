// Package reflection classifies run-time reflect.Types into the generator's
// intermediate representation. It lets a running bridge describe its own
// callable surface without source access.
//
// Unlike the source provider it cannot read doc comments or constants, so
// named basic types map to their underlying primitive instead of an enum and
// record docs are empty.
package reflection

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/internal/convention"
)

var (
	timeType      = reflect.TypeFor[time.Time]()
	durationType  = reflect.TypeFor[time.Duration]()
	numberType    = reflect.TypeFor[json.Number]()
	rawType       = reflect.TypeFor[json.RawMessage]()
	uuidType      = reflect.TypeFor[uuid.UUID]()
	bigIntType    = reflect.TypeFor[big.Int]()
	bigFloatType  = reflect.TypeFor[big.Float]()
	bigRatType    = reflect.TypeFor[big.Rat]()
	contextType   = reflect.TypeFor[context.Context]()
	emptyStruct   = reflect.TypeFor[struct{}]()
	nullableTypes = map[reflect.Type]ir.TypeDescriptor{
		reflect.TypeFor[sql.NullString]():  ir.Nullable(ir.String()),
		reflect.TypeFor[sql.NullBool]():    ir.Nullable(ir.Bool()),
		reflect.TypeFor[sql.NullByte]():    ir.Nullable(ir.Uint(8)),
		reflect.TypeFor[sql.NullInt16]():   ir.Nullable(ir.Int(16)),
		reflect.TypeFor[sql.NullInt32]():   ir.Nullable(ir.Int(32)),
		reflect.TypeFor[sql.NullInt64]():   ir.Nullable(ir.Int(64)),
		reflect.TypeFor[sql.NullFloat64](): ir.Nullable(ir.Float(64)),
		reflect.TypeFor[sql.NullTime]():    ir.Nullable(ir.DateTime()),
	}
)

// Provider converts reflect types. Records declared in one of the owner
// packages carry their fields; others are builtin references. A Provider is
// not safe for concurrent use.
type Provider struct {
	owners map[string]bool
	named  map[reflect.Type]*ir.NamedDescriptor
}

// New returns a provider owning the given package paths.
func New(owners ...string) *Provider {
	p := &Provider{owners: make(map[string]bool), named: make(map[reflect.Type]*ir.NamedDescriptor)}
	for _, o := range owners {
		p.owners[o] = true
	}
	return p
}

// Own adds a package path to the owner set.
func (p *Provider) Own(pkg string) {
	p.owners[pkg] = true
}

// Owners returns the owner package paths.
func (p *Provider) Owners() []string {
	out := make([]string, 0, len(p.owners))
	for o := range p.owners {
		out = append(out, o)
	}
	return out
}

// Convert classifies t.
func (p *Provider) Convert(t reflect.Type) ir.TypeDescriptor {
	if t == nil {
		return ir.Any()
	}
	if d := p.special(t); d != nil {
		return d
	}

	switch t.Kind() {
	case reflect.Bool:
		return ir.Bool()
	case reflect.String:
		return ir.String()
	case reflect.Int:
		return ir.Int(0)
	case reflect.Int8:
		return ir.Int(8)
	case reflect.Int16:
		return ir.Int(16)
	case reflect.Int32:
		return ir.Int(32)
	case reflect.Int64:
		return ir.Int(64)
	case reflect.Uint, reflect.Uintptr:
		return ir.Uint(0)
	case reflect.Uint8:
		return ir.Uint(8)
	case reflect.Uint16:
		return ir.Uint(16)
	case reflect.Uint32:
		return ir.Uint(32)
	case reflect.Uint64:
		return ir.Uint(64)
	case reflect.Float32:
		return ir.Float(32)
	case reflect.Float64:
		return ir.Float(64)
	case reflect.Interface:
		return ir.Any()

	case reflect.Pointer:
		if isFuture(t.Elem()) {
			return p.future(t.Elem())
		}
		inner := p.Convert(t.Elem())
		switch inner.Kind() {
		case ir.KindPrimitive, ir.KindEnum, ir.KindArray:
			return ir.Nullable(inner)
		}
		return inner

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return ir.Bytes()
		}
		return ir.Sequence(p.Convert(t.Elem()))

	case reflect.Array:
		return ir.Array(p.Convert(t.Elem()), t.Len())

	case reflect.Map:
		return ir.Map(p.Convert(t.Key()), p.Convert(t.Elem()))

	case reflect.Chan:
		if t.ChanDir()&reflect.RecvDir != 0 {
			return ir.Async(p.asyncElement(t.Elem()))
		}

	case reflect.Func:
		if isSeq(t) {
			return ir.ReadOnlySequence(p.Convert(t.In(0).In(0)))
		}

	case reflect.Struct:
		if t.NumField() == 0 {
			return ir.Void()
		}
		if t.Name() == "" {
			return ir.Unknown(t.String())
		}
		return p.record(t)
	}
	return ir.Unknown(t.String())
}

func (p *Provider) special(t reflect.Type) ir.TypeDescriptor {
	switch t {
	case timeType:
		return ir.DateTime()
	case durationType:
		return ir.Duration()
	case numberType, bigIntType, bigFloatType, bigRatType:
		return ir.Decimal()
	case rawType:
		return ir.Any()
	case uuidType:
		return ir.UUID()
	}
	if d, ok := nullableTypes[t]; ok {
		return d
	}
	switch {
	case t.PkgPath() == "cloud.google.com/go/civil" && t.Name() == "Date":
		return ir.Date()
	case t.PkgPath() == "database/sql" && strings.HasPrefix(t.Name(), "Null["):
		if f, ok := t.FieldByName("V"); ok {
			inner := p.Convert(f.Type)
			if inner.Kind() == ir.KindNullable {
				return inner
			}
			return ir.Nullable(inner)
		}
	case isFuture(t):
		return p.future(t)
	}
	return nil
}

// isFuture recognises the bridge Future instantiations by package and name.
func isFuture(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.PkgPath() == convention.Module &&
		strings.HasPrefix(t.Name(), convention.FutureType+"[")
}

// future reads the element type from the Await method's first result.
func (p *Provider) future(t reflect.Type) ir.TypeDescriptor {
	m, ok := t.MethodByName("Await")
	if !ok || m.Type.NumOut() == 0 {
		return ir.Async(nil)
	}
	return ir.Async(p.asyncElement(m.Type.Out(0)))
}

func (p *Provider) asyncElement(t reflect.Type) ir.TypeDescriptor {
	if t == emptyStruct {
		return nil
	}
	return p.Convert(t)
}

func isSeq(t reflect.Type) bool {
	if t.PkgPath() != "iter" || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func && yield.NumIn() == 1 && yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool
}

func (p *Provider) record(t reflect.Type) ir.TypeDescriptor {
	if d, ok := p.named[t]; ok {
		return d
	}
	d := &ir.NamedDescriptor{
		NamedKind: ir.KindRecord,
		Name:      syntheticName(t.Name()),
		Package:   t.PkgPath(),
		Builtin:   !p.owners[t.PkgPath()],
	}
	p.named[t] = d
	if d.Builtin {
		return d
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		jsonName, jsonSkip := convention.JSONName(f.Tag.Get("json"))
		if f.Anonymous && jsonName == "" && !jsonSkip {
			if embedded := p.Convert(f.Type); embedded.Kind() == ir.KindRecord {
				d.Embeds = append(d.Embeds, embedded)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		opts := convention.ParseTag(f.Tag.Get(convention.TagName))
		d.Fields = append(d.Fields, ir.FieldDescriptor{
			Name:      f.Name,
			Type:      p.Convert(f.Type),
			JSONName:  jsonName,
			Ignored:   jsonSkip || opts[convention.TagIgnore],
			Nullable:  opts[convention.TagNullable],
			NonNull:   opts[convention.TagNonNull],
			Reference: isReferenceShaped(f.Type),
		})
	}
	return d
}

// syntheticName turns "Page[example.com/api.User]" into "Page_User".
func syntheticName(name string) string {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name
	}
	base := name[:open]
	args := strings.TrimSuffix(name[open+1:], "]")
	parts := []string{base}
	for _, a := range splitTypeArgs(args) {
		a = strings.TrimLeft(a, "*")
		suffix := ""
		for strings.HasPrefix(a, "[]") {
			a = strings.TrimLeft(a[2:], "*")
			suffix += "List"
		}
		head := a
		if j := strings.IndexByte(a, '['); j >= 0 {
			head = a[:j]
		}
		if i := strings.LastIndexByte(head, '.'); i >= 0 {
			a = a[i+1:]
		}
		parts = append(parts, syntheticName(a)+suffix)
	}
	return strings.Join(parts, "_")
}

// splitTypeArgs splits on top-level commas.
func splitTypeArgs(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func isReferenceShaped(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	case reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// Method describes one method from its function type. injected reports which
// parameters are supplied by the host rather than the wire.
func (p *Provider) Method(name string, fn reflect.Type, injected func(reflect.Type) bool) (ir.MethodDescriptor, bool) {
	m := ir.MethodDescriptor{Name: name, ReturnType: ir.Void()}
	arg := 0
	for i := 0; i < fn.NumIn(); i++ {
		in := fn.In(i)
		if in == contextType || (injected != nil && injected(in)) {
			continue
		}
		m.Parameters = append(m.Parameters, ir.ParamDescriptor{
			Name:     argName(arg),
			Type:     p.Convert(in),
			Variadic: fn.IsVariadic() && i == fn.NumIn()-1,
		})
		arg++
	}

	errType := reflect.TypeFor[error]()
	switch fn.NumOut() {
	case 0:
	case 1:
		if fn.Out(0) != errType {
			m.ReturnType = p.Convert(fn.Out(0))
		}
	case 2:
		if fn.Out(1) != errType {
			return m, false
		}
		m.ReturnType = p.Convert(fn.Out(0))
	default:
		return m, false
	}
	if async, ok := m.ReturnType.(*ir.AsyncDescriptor); ok {
		m.ReturnType, m.IsAsync = async.Element, true
		if m.ReturnType == nil {
			m.ReturnType = ir.Void()
		}
	}
	return m, true
}

func argName(i int) string {
	return "arg" + strconv.Itoa(i)
}

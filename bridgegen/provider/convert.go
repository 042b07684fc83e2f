package provider

import (
	"fmt"
	"go/constant"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/internal/convention"
)

// converter turns go/types types into descriptors. Named types are memoised so
// recursive records resolve to the same descriptor.
type converter struct {
	prog     *Program
	named    map[string]*ir.NamedDescriptor // key: ID
	warnings []ir.Warning
	warned   map[string]bool
}

func newConverter(p *Program) *converter {
	return &converter{
		prog:   p,
		named:  make(map[string]*ir.NamedDescriptor),
		warned: make(map[string]bool),
	}
}

func (c *converter) convert(t types.Type) ir.TypeDescriptor {
	t = types.Unalias(t)

	switch typ := t.(type) {
	case *types.Basic:
		return c.convertBasic(typ)

	case *types.Named:
		return c.convertNamed(typ)

	case *types.Pointer:
		return c.convertPointer(typ)

	case *types.Slice:
		if isByte(typ.Elem()) {
			return ir.Bytes()
		}
		return ir.Sequence(c.convert(typ.Elem()))

	case *types.Array:
		return ir.Array(c.convert(typ.Elem()), int(typ.Len()))

	case *types.Map:
		return ir.Map(c.convert(typ.Key()), c.convert(typ.Elem()))

	case *types.Chan:
		if typ.Dir() == types.RecvOnly {
			return ir.Async(c.asyncElement(typ.Elem()))
		}
		c.warn("UNSUPPORTED_TYPE", fmt.Sprintf("channel type %s is not supported", typ), typ.String())
		return ir.Unknown(typ.String())

	case *types.Interface:
		return ir.Any()

	case *types.Struct:
		if typ.NumFields() == 0 {
			return ir.Void()
		}
		c.warn("ANONYMOUS_STRUCT", fmt.Sprintf("anonymous struct %s mapped to unknown", typ), typ.String())
		return ir.Unknown(typ.String())

	default:
		c.warn("UNSUPPORTED_TYPE", fmt.Sprintf("type %s is not supported", t), t.String())
		return ir.Unknown(t.String())
	}
}

func (c *converter) convertBasic(b *types.Basic) ir.TypeDescriptor {
	switch b.Kind() {
	case types.Bool, types.UntypedBool:
		return ir.Bool()
	case types.String, types.UntypedString:
		return ir.String()
	case types.Int, types.UntypedInt, types.UntypedRune:
		return ir.Int(0)
	case types.Int8:
		return ir.Int(8)
	case types.Int16:
		return ir.Int(16)
	case types.Int32:
		return ir.Int(32)
	case types.Int64:
		return ir.Int(64)
	case types.Uint, types.Uintptr:
		return ir.Uint(0)
	case types.Uint8:
		return ir.Uint(8)
	case types.Uint16:
		return ir.Uint(16)
	case types.Uint32:
		return ir.Uint(32)
	case types.Uint64:
		return ir.Uint(64)
	case types.Float32:
		return ir.Float(32)
	case types.Float64, types.UntypedFloat:
		return ir.Float(64)
	case types.UntypedNil:
		return ir.Any()
	default:
		c.warn("UNSUPPORTED_TYPE", fmt.Sprintf("basic type %s is not supported", b), b.String())
		return ir.Unknown(b.String())
	}
}

// convertPointer handles *T. Pointers to value shapes are nullable wrappers;
// pointers to records and reference shapes are transparent.
func (c *converter) convertPointer(p *types.Pointer) ir.TypeDescriptor {
	elem := types.Unalias(p.Elem())
	if named, ok := elem.(*types.Named); ok && isRuntimeType(named, convention.FutureType) {
		return c.convertNamed(named)
	}

	inner := c.convert(elem)
	switch inner.Kind() {
	case ir.KindPrimitive, ir.KindEnum, ir.KindArray:
		return ir.Nullable(inner)
	}
	return inner
}

// asyncElement converts the value type of an asynchronous wrapper; struct{}
// means the wrapper carries nothing.
func (c *converter) asyncElement(t types.Type) ir.TypeDescriptor {
	if s, ok := types.Unalias(t).(*types.Struct); ok && s.NumFields() == 0 {
		return nil
	}
	return c.convert(t)
}

func (c *converter) convertNamed(named *types.Named) ir.TypeDescriptor {
	obj := named.Obj()
	pkgPath := ""
	if obj.Pkg() != nil {
		pkgPath = obj.Pkg().Path()
	}

	if special := c.convertSpecial(named, pkgPath, obj.Name()); special != nil {
		return special
	}

	// The universe error type and other interfaces.
	if _, ok := named.Underlying().(*types.Interface); ok {
		return ir.Any()
	}

	switch u := named.Underlying().(type) {
	case *types.Struct:
		return c.record(named, pkgPath)
	case *types.Basic:
		if c.prog.Owns(pkgPath) {
			if consts := enumConstants(named); len(consts) > 0 {
				return c.enum(named, pkgPath, consts)
			}
		}
		return c.convertBasic(u)
	default:
		return c.convert(u)
	}
}

// convertSpecial recognises the closed allowlist of well-known named types.
func (c *converter) convertSpecial(named *types.Named, pkgPath, name string) ir.TypeDescriptor {
	args := named.TypeArgs()
	switch pkgPath {
	case "time":
		switch name {
		case "Time":
			return ir.DateTime()
		case "Duration":
			return ir.Duration()
		}
	case "encoding/json":
		switch name {
		case "Number":
			return ir.Decimal()
		case "RawMessage":
			return ir.Any()
		}
	case "math/big":
		switch name {
		case "Int", "Float", "Rat":
			return ir.Decimal()
		}
	case "github.com/google/uuid":
		if name == "UUID" {
			return ir.UUID()
		}
	case "cloud.google.com/go/civil":
		if name == "Date" {
			return ir.Date()
		}
	case "database/sql":
		switch name {
		case "Null":
			if args != nil && args.Len() == 1 {
				return nullableOf(c.convert(args.At(0)))
			}
		case "NullString":
			return ir.Nullable(ir.String())
		case "NullBool":
			return ir.Nullable(ir.Bool())
		case "NullByte":
			return ir.Nullable(ir.Uint(8))
		case "NullInt16":
			return ir.Nullable(ir.Int(16))
		case "NullInt32":
			return ir.Nullable(ir.Int(32))
		case "NullInt64":
			return ir.Nullable(ir.Int(64))
		case "NullFloat64":
			return ir.Nullable(ir.Float(64))
		case "NullTime":
			return ir.Nullable(ir.DateTime())
		}
	case "iter":
		if name == "Seq" && args != nil && args.Len() == 1 {
			return ir.ReadOnlySequence(c.convert(args.At(0)))
		}
	case convention.Module:
		if name == convention.FutureType && args != nil && args.Len() == 1 {
			return ir.Async(c.asyncElement(args.At(0)))
		}
	}
	return nil
}

func nullableOf(inner ir.TypeDescriptor) ir.TypeDescriptor {
	if inner.Kind() == ir.KindNullable {
		return inner
	}
	return ir.Nullable(inner)
}

func (c *converter) record(named *types.Named, pkgPath string) ir.TypeDescriptor {
	name := syntheticName(named)
	id := pkgPath + "." + name
	if d, ok := c.named[id]; ok {
		return d
	}

	d := &ir.NamedDescriptor{
		NamedKind: ir.KindRecord,
		Name:      name,
		Package:   pkgPath,
		Builtin:   !c.prog.Owns(pkgPath),
	}
	// Insert before converting fields so self references terminate.
	c.named[id] = d
	if d.Builtin {
		return d
	}

	if args := named.TypeArgs(); args != nil {
		for i := 0; i < args.Len(); i++ {
			d.TypeArgs = append(d.TypeArgs, c.convert(args.At(i)))
		}
	}

	origin := named.Origin().Obj()
	d.Doc = DocText(c.prog.Doc(origin))
	_, d.NullableByDefault = FindDirective(c.prog.Directives(origin), convention.DirectiveNullable)

	st := named.Underlying().(*types.Struct)
	for i := 0; i < st.NumFields(); i++ {
		field := st.Field(i)
		tag := reflect.StructTag(st.Tag(i))
		jsonName, jsonSkip := convention.JSONName(tag.Get("json"))

		if field.Embedded() && jsonName == "" && !jsonSkip {
			if embedded := c.convert(field.Type()); embedded.Kind() == ir.KindRecord {
				d.Embeds = append(d.Embeds, embedded)
				continue
			}
		}
		if !field.Exported() {
			continue
		}

		opts := convention.ParseTag(tag.Get(convention.TagName))
		d.Fields = append(d.Fields, ir.FieldDescriptor{
			Name:      field.Name(),
			Type:      c.convert(field.Type()),
			JSONName:  jsonName,
			Ignored:   jsonSkip || opts[convention.TagIgnore],
			Nullable:  opts[convention.TagNullable],
			NonNull:   opts[convention.TagNonNull],
			Reference: isReferenceShaped(field.Type()),
		})
	}
	return d
}

func (c *converter) enum(named *types.Named, pkgPath string, consts []*types.Const) ir.TypeDescriptor {
	id := pkgPath + "." + named.Obj().Name()
	if d, ok := c.named[id]; ok {
		return d
	}
	d := &ir.NamedDescriptor{
		NamedKind: ir.KindEnum,
		Name:      named.Obj().Name(),
		Package:   pkgPath,
		Doc:       DocText(c.prog.Doc(named.Obj())),
	}
	for _, k := range consts {
		d.Members = append(d.Members, ir.EnumMember{Name: k.Name(), Value: constantValue(k.Val())})
	}
	c.named[id] = d
	return d
}

// enumConstants returns the typed constants of named declared in its package,
// in declaration order.
func enumConstants(named *types.Named) []*types.Const {
	pkg := named.Obj().Pkg()
	if pkg == nil {
		return nil
	}
	var consts []*types.Const
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		k, ok := scope.Lookup(name).(*types.Const)
		if !ok || !types.Identical(k.Type(), named) {
			continue
		}
		consts = append(consts, k)
	}
	sort.SliceStable(consts, func(i, j int) bool { return consts[i].Pos() < consts[j].Pos() })
	return consts
}

// constantValue converts a constant to string, int64, float64 or bool.
func constantValue(v constant.Value) any {
	switch v.Kind() {
	case constant.String:
		return constant.StringVal(v)
	case constant.Int:
		if i64, ok := constant.Int64Val(v); ok {
			return i64
		}
		f, _ := constant.Float64Val(v)
		return f
	case constant.Float:
		f, _ := constant.Float64Val(v)
		return f
	case constant.Bool:
		return constant.BoolVal(v)
	default:
		return nil
	}
}

// syntheticName names generic instantiations "Name_Arg1_Arg2".
func syntheticName(named *types.Named) string {
	name := named.Obj().Name()
	args := named.TypeArgs()
	if args == nil || args.Len() == 0 {
		return name
	}
	parts := []string{name}
	for i := 0; i < args.Len(); i++ {
		parts = append(parts, typeArgName(args.At(i)))
	}
	return strings.Join(parts, "_")
}

func typeArgName(t types.Type) string {
	switch typ := types.Unalias(t).(type) {
	case *types.Named:
		return syntheticName(typ)
	case *types.Pointer:
		return typeArgName(typ.Elem())
	case *types.Slice:
		return typeArgName(typ.Elem()) + "List"
	case *types.Map:
		return "Map_" + typeArgName(typ.Key()) + "_" + typeArgName(typ.Elem())
	default:
		s := strings.NewReplacer(" ", "", "{", "", "}", "", ".", "_", "/", "_").Replace(t.String())
		return s
	}
}

// isReferenceShaped reports whether t is a pointer to a struct, a slice, a
// map or an interface.
func isReferenceShaped(t types.Type) bool {
	switch u := types.Unalias(t).Underlying().(type) {
	case *types.Pointer:
		_, isStruct := types.Unalias(u.Elem()).Underlying().(*types.Struct)
		return isStruct
	case *types.Slice, *types.Map, *types.Interface:
		return true
	}
	return false
}

func isByte(t types.Type) bool {
	b, ok := types.Unalias(t).(*types.Basic)
	return ok && b.Kind() == types.Uint8
}

// isRuntimeType reports whether named is the bridge runtime type with the given
// name.
func isRuntimeType(named *types.Named, name string) bool {
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == convention.Module && obj.Name() == name
}

func (c *converter) warn(code, msg, typeName string) {
	key := code + "\x00" + typeName
	if c.warned[key] {
		return
	}
	c.warned[key] = true
	c.warnings = append(c.warnings, ir.Warning{Code: code, Message: msg, TypeName: typeName})
}

// Package ir defines the intermediate representation shared by the bridge
// generator's providers, collector and emitters.
//
// Host types are classified into a closed set of shapes. Providers (go/types
// based for generation, reflect based for a running bridge) produce
// descriptors; everything downstream only switches on Kind.
package ir

import "strconv"

// Kind identifies the shape of a type descriptor.
type Kind int

const (
	KindUnknown   Kind = iota // anything outside the supported shapes
	KindVoid                  // no value (no result, struct{})
	KindPrimitive             // see PrimitiveFamily
	KindArray                 // fixed-length array [N]T
	KindSequence              // ordered sequence: []T, iter.Seq[T]
	KindMap                   // map[K]V
	KindNullable              // nullable value wrapper: *T over a value shape, sql.Null[T]
	KindAsync                 // asynchronous wrapper: Future[T], <-chan T
	KindEnum                  // defined basic type with typed constants
	KindRecord                // named struct
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "Void"
	case KindPrimitive:
		return "Primitive"
	case KindArray:
		return "Array"
	case KindSequence:
		return "Sequence"
	case KindMap:
		return "Map"
	case KindNullable:
		return "Nullable"
	case KindAsync:
		return "Async"
	case KindEnum:
		return "Enum"
	case KindRecord:
		return "Record"
	default:
		return "Unknown"
	}
}

// TypeDescriptor is a classified handle to a host type.
type TypeDescriptor interface {
	// Kind returns the shape for type switching.
	Kind() Kind

	// String returns a Go-like rendering used in warnings and tests.
	String() string

	sealed()
}

type base struct{}

func (base) sealed() {}

// VoidDescriptor is the absence of a value.
type VoidDescriptor struct{ base }

// Kind returns KindVoid.
func (*VoidDescriptor) Kind() Kind     { return KindVoid }
func (*VoidDescriptor) String() string { return "void" }

// Void returns the void descriptor.
func Void() *VoidDescriptor { return &VoidDescriptor{} }

// ArrayDescriptor is a fixed-length array.
type ArrayDescriptor struct {
	base
	Element TypeDescriptor
	Length  int
}

// Kind returns KindArray.
func (*ArrayDescriptor) Kind() Kind { return KindArray }
func (d *ArrayDescriptor) String() string {
	return "[" + strconv.Itoa(d.Length) + "]" + d.Element.String()
}

// Array returns a fixed-length array descriptor.
func Array(element TypeDescriptor, length int) *ArrayDescriptor {
	return &ArrayDescriptor{Element: element, Length: length}
}

// SequenceDescriptor is an ordered collection allowing duplicates.
// ReadOnly marks iterator shapes that the runtime collects before encoding.
type SequenceDescriptor struct {
	base
	Element  TypeDescriptor
	ReadOnly bool
}

// Kind returns KindSequence.
func (*SequenceDescriptor) Kind() Kind { return KindSequence }
func (d *SequenceDescriptor) String() string {
	if d.ReadOnly {
		return "iter.Seq[" + d.Element.String() + "]"
	}
	return "[]" + d.Element.String()
}

// Sequence returns a slice descriptor.
func Sequence(element TypeDescriptor) *SequenceDescriptor {
	return &SequenceDescriptor{Element: element}
}

// ReadOnlySequence returns an iterator sequence descriptor.
func ReadOnlySequence(element TypeDescriptor) *SequenceDescriptor {
	return &SequenceDescriptor{Element: element, ReadOnly: true}
}

// MapDescriptor is a key-value mapping.
type MapDescriptor struct {
	base
	Key   TypeDescriptor
	Value TypeDescriptor
}

// Kind returns KindMap.
func (*MapDescriptor) Kind() Kind { return KindMap }
func (d *MapDescriptor) String() string {
	return "map[" + d.Key.String() + "]" + d.Value.String()
}

// Map returns a map descriptor.
func Map(key, value TypeDescriptor) *MapDescriptor {
	return &MapDescriptor{Key: key, Value: value}
}

// NullableDescriptor wraps a value shape that may be null on the wire.
type NullableDescriptor struct {
	base
	Element TypeDescriptor
}

// Kind returns KindNullable.
func (*NullableDescriptor) Kind() Kind       { return KindNullable }
func (d *NullableDescriptor) String() string { return "*" + d.Element.String() }

// Nullable returns a nullable wrapper descriptor.
func Nullable(element TypeDescriptor) *NullableDescriptor {
	return &NullableDescriptor{Element: element}
}

// AsyncDescriptor wraps a value produced later. Element is Void for a wrapper
// around nothing.
type AsyncDescriptor struct {
	base
	Element TypeDescriptor
}

// Kind returns KindAsync.
func (*AsyncDescriptor) Kind() Kind { return KindAsync }
func (d *AsyncDescriptor) String() string {
	return "Future[" + d.Element.String() + "]"
}

// Async returns an asynchronous wrapper descriptor. A nil element means the
// wrapper carries no value.
func Async(element TypeDescriptor) *AsyncDescriptor {
	if element == nil {
		element = Void()
	}
	return &AsyncDescriptor{Element: element}
}

// UnknownDescriptor is a type outside the supported shapes (channels, funcs,
// complex numbers and the like).
type UnknownDescriptor struct {
	base
	GoType string
}

// Kind returns KindUnknown.
func (*UnknownDescriptor) Kind() Kind { return KindUnknown }
func (d *UnknownDescriptor) String() string {
	if d.GoType == "" {
		return "unknown"
	}
	return d.GoType
}

// Unknown returns an unknown descriptor for the named Go type.
func Unknown(goType string) *UnknownDescriptor {
	return &UnknownDescriptor{GoType: goType}
}

// Unwrap strips nullable and async layers and returns the innermost descriptor.
func Unwrap(t TypeDescriptor) TypeDescriptor {
	for {
		switch d := t.(type) {
		case *NullableDescriptor:
			t = d.Element
		case *AsyncDescriptor:
			t = d.Element
		default:
			return t
		}
	}
}

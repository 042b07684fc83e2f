package ir

import "strconv"

// PrimitiveFamily identifies the category of a primitive type.
type PrimitiveFamily int

const (
	FamilyString         PrimitiveFamily = iota
	FamilyBool                           // bool
	FamilyInt                            // signed integer (see BitSize)
	FamilyUint                           // unsigned integer (see BitSize)
	FamilyFloat                          // floating point (see BitSize)
	FamilyDecimal                        // json.Number, big.Float, big.Rat
	FamilyDate                           // civil date without offset
	FamilyDateTimeOffset                 // time.Time (RFC 3339 string in JSON)
	FamilyUUID                           // uuid.UUID
	FamilyDuration                       // time.Duration (nanoseconds in JSON)
	FamilyAny                            // interface{} / any / json.RawMessage
	FamilyByte                           // byte, only meaningful as a sequence element
)

// String returns the name of the family.
func (f PrimitiveFamily) String() string {
	switch f {
	case FamilyString:
		return "String"
	case FamilyBool:
		return "Bool"
	case FamilyInt:
		return "Int"
	case FamilyUint:
		return "Uint"
	case FamilyFloat:
		return "Float"
	case FamilyDecimal:
		return "Decimal"
	case FamilyDate:
		return "Date"
	case FamilyDateTimeOffset:
		return "DateTimeOffset"
	case FamilyUUID:
		return "UUID"
	case FamilyDuration:
		return "Duration"
	case FamilyAny:
		return "Any"
	case FamilyByte:
		return "Byte"
	default:
		return "Unknown"
	}
}

// PrimitiveDescriptor represents a built-in primitive type.
type PrimitiveDescriptor struct {
	base
	Family PrimitiveFamily

	// BitSize is the width of numeric families: 0 for platform-dependent
	// int/uint, otherwise 8, 16, 32 or 64. Ignored for other families.
	BitSize int
}

// Kind returns KindPrimitive.
func (*PrimitiveDescriptor) Kind() Kind { return KindPrimitive }

func (d *PrimitiveDescriptor) String() string {
	switch d.Family {
	case FamilyInt, FamilyUint, FamilyFloat:
		if d.BitSize > 0 {
			return d.Family.String() + strconv.Itoa(d.BitSize)
		}
	}
	return d.Family.String()
}

// IsBytes reports whether t is a byte sequence ([]byte).
func IsBytes(t TypeDescriptor) bool {
	seq, ok := t.(*SequenceDescriptor)
	if !ok || seq.ReadOnly {
		return false
	}
	p, ok := seq.Element.(*PrimitiveDescriptor)
	return ok && p.Family == FamilyByte
}

// Convenience constructors.

// String returns a string primitive.
func String() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyString} }

// Bool returns a bool primitive.
func Bool() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyBool} }

// Int returns a signed integer primitive of the given bit size.
func Int(bitSize int) *PrimitiveDescriptor {
	return &PrimitiveDescriptor{Family: FamilyInt, BitSize: bitSize}
}

// Uint returns an unsigned integer primitive of the given bit size.
func Uint(bitSize int) *PrimitiveDescriptor {
	return &PrimitiveDescriptor{Family: FamilyUint, BitSize: bitSize}
}

// Float returns a floating point primitive of the given bit size.
func Float(bitSize int) *PrimitiveDescriptor {
	return &PrimitiveDescriptor{Family: FamilyFloat, BitSize: bitSize}
}

// Decimal returns an arbitrary precision number primitive.
func Decimal() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyDecimal} }

// DateTime returns a timestamp-with-offset primitive.
func DateTime() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyDateTimeOffset} }

// Date returns a civil date primitive.
func Date() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyDate} }

// UUID returns a universally unique identifier primitive.
func UUID() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyUUID} }

// Duration returns a duration primitive.
func Duration() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyDuration} }

// Any returns the untyped primitive.
func Any() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyAny} }

// Byte returns the byte primitive.
func Byte() *PrimitiveDescriptor { return &PrimitiveDescriptor{Family: FamilyByte, BitSize: 8} }

// Bytes returns a byte sequence.
func Bytes() *SequenceDescriptor { return Sequence(Byte()) }

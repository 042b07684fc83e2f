package ir

// NamedDescriptor is a declared enumeration or record type.
//
// Providers fill the declaration data (Members for enums; Fields, Embeds and
// NullableByDefault for records) only for types declared in the scanned
// packages. Types from other packages carry Builtin == true and no
// declaration data.
type NamedDescriptor struct {
	base

	// NamedKind is KindEnum or KindRecord.
	NamedKind Kind

	// Name is the simple type name. Instantiated generics get a synthetic
	// name such as "Page_User".
	Name string

	// Package is the import path of the declaring package; empty for
	// universe types.
	Package string

	// Builtin marks types declared outside the scanned package set.
	Builtin bool

	// Members are the enumeration constants in declaration order. Duplicate
	// values under different names are preserved.
	Members []EnumMember

	// Fields are the fields declared directly on the record, excluding
	// embedded fields.
	Fields []FieldDescriptor

	// Embeds are the record's embedded struct fields without a json name, in
	// declaration order. The first one is the base type.
	Embeds []TypeDescriptor

	// NullableByDefault is the type-level nullability default from a
	// //bridge:nullable directive.
	NullableByDefault bool

	// TypeArgs are the type arguments of an instantiated generic record.
	TypeArgs []TypeDescriptor

	// Doc is the declaration's doc comment, without directives.
	Doc string
}

// Kind returns KindEnum or KindRecord.
func (d *NamedDescriptor) Kind() Kind { return d.NamedKind }

func (d *NamedDescriptor) String() string { return d.ID() }

// ID returns the fully qualified identity used as the model table key.
func (d *NamedDescriptor) ID() string {
	if d.Package == "" {
		return d.Name
	}
	return d.Package + "." + d.Name
}

// EnumMember is one enumeration constant.
type EnumMember struct {
	Name string

	// Value is a string, int64, float64 or bool; nil when the provider could
	// not read a value.
	Value any
}

// FieldDescriptor is a field declared on a record.
type FieldDescriptor struct {
	// Name is the Go field name.
	Name string

	// Type is the field's type descriptor.
	Type TypeDescriptor

	// JSONName is the name from the json tag, empty when absent.
	JSONName string

	// Ignored is set by json:"-" or bridge:"-".
	Ignored bool

	// Nullable and NonNull carry the field-level nullability annotation.
	Nullable bool
	NonNull  bool

	// Reference marks reference-shaped Go types (pointer to struct, slice,
	// map, interface), the only ones a nullability annotation applies to.
	Reference bool
}

package ir

import "sort"

// ModelKind distinguishes the two model shapes.
type ModelKind int

const (
	ModelRecord ModelKind = iota
	ModelEnum
)

func (k ModelKind) String() string {
	if k == ModelEnum {
		return "enum"
	}
	return "record"
}

// ModelDescriptor is a composite type collected for emission.
type ModelDescriptor struct {
	// ID is the fully qualified identity (the table key).
	ID string

	// Name is the simple name used in generated code.
	Name string

	Kind ModelKind

	// Properties lists the members declared directly on a record.
	Properties []Property

	// EnumValues lists an enumeration's named values.
	EnumValues []EnumValue

	// BaseTypeName is the ID of the record's base model, empty for none.
	BaseTypeName string

	Doc string
}

// Property is one record member.
type Property struct {
	Name       string
	Type       TypeDescriptor
	IsOptional bool

	// WireName overrides Name on the wire; empty means Name verbatim.
	WireName string
}

// EffectiveName returns the property name used on the wire.
func (p Property) EffectiveName() string {
	if p.WireName != "" {
		return p.WireName
	}
	return p.Name
}

// EnumValue is one named enumeration value. Value is nil when absent.
type EnumValue struct {
	Name  string
	Value any
}

// ModelTable is the deduplicated set of models keyed by identity.
// It is not safe for concurrent use.
type ModelTable struct {
	models map[string]*ModelDescriptor
}

// NewModelTable returns an empty table.
func NewModelTable() *ModelTable {
	return &ModelTable{models: make(map[string]*ModelDescriptor)}
}

// Add inserts m unless its ID is already present. It reports whether m was
// inserted.
func (t *ModelTable) Add(m *ModelDescriptor) bool {
	if _, ok := t.models[m.ID]; ok {
		return false
	}
	t.models[m.ID] = m
	return true
}

// Has reports whether id is present.
func (t *ModelTable) Has(id string) bool {
	if t == nil {
		return false
	}
	_, ok := t.models[id]
	return ok
}

// Lookup returns the model with the given id.
func (t *ModelTable) Lookup(id string) (*ModelDescriptor, bool) {
	if t == nil {
		return nil, false
	}
	m, ok := t.models[id]
	return m, ok
}

// Len returns the number of models.
func (t *ModelTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.models)
}

// Keys returns the model ids in sorted order.
func (t *ModelTable) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.models))
	for k := range t.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Models returns the models sorted by id.
func (t *ModelTable) Models() []*ModelDescriptor {
	keys := t.Keys()
	out := make([]*ModelDescriptor, len(keys))
	for i, k := range keys {
		out[i] = t.models[k]
	}
	return out
}

// ByName returns the models whose simple name is name, sorted by id. More than
// one result means two packages declare a model with the same name.
func (t *ModelTable) ByName(name string) []*ModelDescriptor {
	var out []*ModelDescriptor
	for _, m := range t.Models() {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Package collect builds the model table: the records and enumerations
// reachable from service signatures and event payloads.
package collect

import (
	"fmt"
	"strings"

	"github.com/broady/bridge/bridgegen/ir"
)

// MultipleBases is the warning code for a record with more than one embedded
// base struct.
const MultipleBases = "MULTIPLE_BASES"

// Collector walks type descriptors and records models into a table.
// Models are only recorded for types declared in the owner packages.
type Collector struct {
	table    *ir.ModelTable
	owners   map[string]bool
	warnings []ir.Warning
}

// New returns a Collector that adds to table. owners are the import paths of
// the scanned packages.
func New(table *ir.ModelTable, owners ...string) *Collector {
	c := &Collector{table: table, owners: make(map[string]bool, len(owners))}
	for _, o := range owners {
		c.owners[o] = true
	}
	return c
}

// Table returns the table being filled.
func (c *Collector) Table() *ir.ModelTable { return c.table }

// Warnings returns the warnings reported so far.
func (c *Collector) Warnings() []ir.Warning { return c.warnings }

// Collect records every model reachable from t. Collecting the same type
// twice is a no-op.
func (c *Collector) Collect(t ir.TypeDescriptor) {
	switch d := t.(type) {
	case nil:
	case *ir.NullableDescriptor:
		c.Collect(d.Element)
	case *ir.AsyncDescriptor:
		c.Collect(d.Element)
	case *ir.ArrayDescriptor:
		c.Collect(d.Element)
	case *ir.SequenceDescriptor:
		c.Collect(d.Element)
	case *ir.MapDescriptor:
		c.Collect(d.Key)
		c.Collect(d.Value)
	case *ir.NamedDescriptor:
		if d.Builtin || !c.owners[d.Package] {
			return
		}
		switch d.NamedKind {
		case ir.KindEnum:
			c.enum(d)
		case ir.KindRecord:
			c.record(d)
		}
	}
}

func (c *Collector) enum(d *ir.NamedDescriptor) {
	m := &ir.ModelDescriptor{
		ID:   d.ID(),
		Name: d.Name,
		Kind: ir.ModelEnum,
		Doc:  d.Doc,
	}
	for _, member := range d.Members {
		m.EnumValues = append(m.EnumValues, ir.EnumValue{Name: member.Name, Value: member.Value})
	}
	c.table.Add(m)
}

func (c *Collector) record(d *ir.NamedDescriptor) {
	if c.table.Has(d.ID()) {
		return
	}
	m := &ir.ModelDescriptor{
		ID:   d.ID(),
		Name: d.Name,
		Kind: ir.ModelRecord,
		Doc:  d.Doc,
	}
	// Added before recursing so self-referential records terminate.
	c.table.Add(m)

	for _, arg := range d.TypeArgs {
		c.Collect(arg)
	}

	if base := c.base(d); base != nil {
		m.BaseTypeName = base.ID()
		c.Collect(base)
	}

	for _, f := range d.Fields {
		if f.Ignored {
			continue
		}
		m.Properties = append(m.Properties, ir.Property{
			Name:       f.Name,
			Type:       f.Type,
			IsOptional: isOptional(f, d.NullableByDefault),
			WireName:   f.JSONName,
		})
	}
	for _, p := range m.Properties {
		c.Collect(p.Type)
	}
}

// base returns the record's base: its first embedded record, when that record
// belongs to the owner packages.
func (c *Collector) base(d *ir.NamedDescriptor) *ir.NamedDescriptor {
	if len(d.Embeds) == 0 {
		return nil
	}
	if len(d.Embeds) > 1 {
		names := make([]string, 0, len(d.Embeds)-1)
		for _, e := range d.Embeds[1:] {
			names = append(names, e.String())
		}
		c.warnings = append(c.warnings, ir.Warning{
			Code:     MultipleBases,
			Message:  fmt.Sprintf("%s embeds more than one struct; only %s is used as the base, ignoring %s", d.Name, d.Embeds[0], strings.Join(names, ", ")),
			TypeName: d.ID(),
		})
	}
	base, ok := d.Embeds[0].(*ir.NamedDescriptor)
	if !ok || base.NamedKind != ir.KindRecord || base.Builtin || !c.owners[base.Package] {
		return nil
	}
	return base
}

// isOptional applies only to reference-shaped fields: the field annotation
// wins, then the declaring type's default.
func isOptional(f ir.FieldDescriptor, nullableByDefault bool) bool {
	if !f.Reference {
		return false
	}
	if f.Nullable {
		return true
	}
	if f.NonNull {
		return false
	}
	return nullableByDefault
}

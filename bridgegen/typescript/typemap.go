package typescript

import "github.com/broady/bridge/bridgegen/ir"

// Map returns the TypeScript type expression for t. Records render by name
// only when models contains them; anything else unrecognised is "unknown".
func Map(t ir.TypeDescriptor, models *ir.ModelTable) string {
	switch d := t.(type) {
	case nil:
		return "void"
	case *ir.VoidDescriptor:
		return "void"
	case *ir.AsyncDescriptor:
		return Map(d.Element, models)
	case *ir.NullableDescriptor:
		return Map(d.Element, models) + " | null"
	case *ir.PrimitiveDescriptor:
		return mapPrimitive(d)
	case *ir.ArrayDescriptor:
		return elementExpr(d.Element, models) + "[]"
	case *ir.SequenceDescriptor:
		if ir.IsBytes(d) {
			return "string"
		}
		return elementExpr(d.Element, models) + "[]"
	case *ir.MapDescriptor:
		return "Record<" + Map(d.Key, models) + ", " + Map(d.Value, models) + ">"
	case *ir.NamedDescriptor:
		switch d.NamedKind {
		case ir.KindEnum:
			return escapeReservedWord(d.Name)
		case ir.KindRecord:
			if models.Has(d.ID()) {
				return escapeReservedWord(d.Name)
			}
		}
	}
	return "unknown"
}

func mapPrimitive(p *ir.PrimitiveDescriptor) string {
	switch p.Family {
	case ir.FamilyString, ir.FamilyDate, ir.FamilyDateTimeOffset, ir.FamilyUUID:
		return "string"
	case ir.FamilyBool:
		return "boolean"
	case ir.FamilyInt, ir.FamilyUint, ir.FamilyFloat, ir.FamilyDecimal, ir.FamilyDuration, ir.FamilyByte:
		return "number"
	default:
		return "unknown"
	}
}

// elementExpr parenthesises union element types so "T | null" becomes
// "(T | null)[]" rather than "T | null[]".
func elementExpr(t ir.TypeDescriptor, models *ir.ModelTable) string {
	s := Map(t, models)
	if _, ok := t.(*ir.NullableDescriptor); ok {
		return "(" + s + ")"
	}
	return s
}

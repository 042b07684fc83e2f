// Package typescript renders bridge services, events and models as
// TypeScript modules.
package typescript

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/broady/bridge/bridgegen/ir"
)

//go:embed runtime.ts
var runtimeSource string

// Output file names.
const (
	ModelsFile  = "models.ts"
	EventsFile  = "events.ts"
	IndexFile   = "index.ts"
	RuntimeFile = "runtime.ts"
)

// Warning codes.
const (
	NameCollision = "NAME_COLLISION"
	InvalidEvent  = "INVALID_EVENT"
)

// callPrimitive is the runtime binding every stub imports.
const callPrimitive = "call"

// Input is everything emitted in one run.
type Input struct {
	Services []ir.ServiceDescriptor
	Events   []ir.EventDescriptor
	Models   *ir.ModelTable
}

// File is one emitted module. Content does not include the hash header.
type File struct {
	Path    string
	Content []byte
}

// Emitter renders modules.
type Emitter struct {
	// RuntimeImport is the module stubs import the call primitive from. Empty
	// means the bundled runtime.ts is emitted and imported as "./runtime".
	RuntimeImport string

	// DefaultTimeoutMs is the per-call timeout the bundled runtime starts
	// with. Zero means none.
	DefaultTimeoutMs int

	// EmitComments copies doc comments into JSDoc blocks.
	EmitComments bool
}

// Emit renders every output module, sorted by path.
func (e *Emitter) Emit(in Input) ([]File, []ir.Warning) {
	var files []File
	var warnings []ir.Warning

	for _, svc := range in.Services {
		var buf bytes.Buffer
		e.emitService(&buf, svc, in.Models)
		files = append(files, File{Path: ServiceFile(svc.Name), Content: buf.Bytes()})
	}

	var models bytes.Buffer
	warnings = append(warnings, e.emitModels(&models, in.Models)...)
	files = append(files, File{Path: ModelsFile, Content: models.Bytes()})

	if len(in.Events) > 0 {
		var buf bytes.Buffer
		warnings = append(warnings, e.emitEvents(&buf, in.Events, in.Models)...)
		files = append(files, File{Path: EventsFile, Content: buf.Bytes()})
	}

	if e.RuntimeImport == "" {
		files = append(files, File{Path: RuntimeFile, Content: []byte(e.runtime())})
	}

	var index bytes.Buffer
	e.emitIndex(&index, in.Services, len(in.Events) > 0)
	files = append(files, File{Path: IndexFile, Content: index.Bytes()})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, warnings
}

// ServiceFile returns the module name for a service.
func ServiceFile(service string) string {
	return service + ".ts"
}

func (e *Emitter) runtime() string {
	if e.DefaultTimeoutMs <= 0 {
		return runtimeSource
	}
	return strings.Replace(runtimeSource, "let defaultTimeout = 0;", fmt.Sprintf("let defaultTimeout = %d;", e.DefaultTimeoutMs), 1)
}

func (e *Emitter) runtimeModule() string {
	if e.RuntimeImport != "" {
		return e.RuntimeImport
	}
	return "./runtime"
}

func (e *Emitter) emitService(buf *bytes.Buffer, svc ir.ServiceDescriptor, models *ir.ModelTable) {
	fmt.Fprintf(buf, "import { %s } from %q;\n", callPrimitive, e.runtimeModule())

	used := make(map[string]bool)
	for _, m := range svc.Methods {
		for _, p := range m.Parameters {
			modelNames(p.Type, models, used)
		}
		modelNames(m.ReturnType, models, used)
	}
	writeTypeImport(buf, used)

	for _, m := range svc.Methods {
		buf.WriteString("\n")
		if e.EmitComments {
			emitJSDoc(buf, "", m.Doc)
		}

		names := paramNames(m.Parameters)
		params := make([]string, len(m.Parameters))
		args := make([]string, len(m.Parameters))
		for i, p := range m.Parameters {
			params[i] = names[i] + ": " + Map(p.Type, models)
			args[i] = names[i]
			if p.Variadic {
				params[i] = "..." + params[i]
				args[i] = "..." + args[i]
			}
		}
		ret := Map(m.ReturnType, models)

		fmt.Fprintf(buf, "export async function %s(%s): Promise<%s> {\n", escapeReservedWord(m.Name), strings.Join(params, ", "), ret)
		fmt.Fprintf(buf, "  return %s<%s>(%q, [%s]);\n", callPrimitive, ret, m.QualifiedName(svc.Name), strings.Join(args, ", "))
		buf.WriteString("}\n")
	}
}

// paramNames returns distinct binding names for params that do not shadow
// the imported call primitive.
func paramNames(params []ir.ParamDescriptor) []string {
	taken := map[string]bool{callPrimitive: true}
	names := make([]string, len(params))
	for i, p := range params {
		name := sanitizeIdentifier(p.Name)
		for taken[name] {
			name += "_"
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func (e *Emitter) emitModels(buf *bytes.Buffer, models *ir.ModelTable) []ir.Warning {
	var warnings []ir.Warning
	emitted := make(map[string]string)

	for i, m := range models.Models() {
		if prev, ok := emitted[m.Name]; ok {
			warnings = append(warnings, ir.Warning{
				Code:     NameCollision,
				Message:  fmt.Sprintf("%s and %s both render as %s; skipping %s", prev, m.ID, m.Name, m.ID),
				TypeName: m.ID,
			})
			continue
		}
		emitted[m.Name] = m.ID

		if i > 0 {
			buf.WriteString("\n")
		}
		if e.EmitComments {
			emitJSDoc(buf, "", m.Doc)
		}
		switch m.Kind {
		case ir.ModelEnum:
			emitEnum(buf, m)
		default:
			emitRecord(buf, m, models)
		}
	}
	return warnings
}

func emitRecord(buf *bytes.Buffer, m *ir.ModelDescriptor, models *ir.ModelTable) {
	fmt.Fprintf(buf, "export interface %s", escapeReservedWord(m.Name))
	if m.BaseTypeName != "" {
		if base, ok := models.Lookup(m.BaseTypeName); ok {
			fmt.Fprintf(buf, " extends %s", escapeReservedWord(base.Name))
		}
	}
	if len(m.Properties) == 0 {
		buf.WriteString(" {}\n")
		return
	}
	buf.WriteString(" {\n")
	for _, p := range m.Properties {
		buf.WriteString("  ")
		buf.WriteString(propertyKey(p.EffectiveName()))
		if p.IsOptional {
			buf.WriteString("?")
		}
		buf.WriteString(": ")
		buf.WriteString(Map(p.Type, models))
		buf.WriteString(";\n")
	}
	buf.WriteString("}\n")
}

func emitEnum(buf *bytes.Buffer, m *ir.ModelDescriptor) {
	fmt.Fprintf(buf, "export enum %s {\n", escapeReservedWord(m.Name))
	for _, v := range m.EnumValues {
		fmt.Fprintf(buf, "  %s = %s,\n", propertyKey(v.Name), formatEnumValue(v.Value))
	}
	buf.WriteString("}\n")
}

// formatEnumValue renders numbers bare and strings quoted. Absent values
// render as 0.
func formatEnumValue(value any) string {
	switch v := value.(type) {
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return "0"
	}
}

// emitEvents writes the listener helpers. Events whose identifier is empty or
// already taken by an earlier event are skipped with a warning.
func (e *Emitter) emitEvents(buf *bytes.Buffer, events []ir.EventDescriptor, models *ir.ModelTable) []ir.Warning {
	var warnings []ir.Warning
	var kept []ir.EventDescriptor
	ids := make(map[string]string)
	for _, ev := range events {
		id := EventIdentifier(ev.WireName)
		if id == "" {
			warnings = append(warnings, ir.Warning{
				Code:    InvalidEvent,
				Message: fmt.Sprintf("event %q has no letters or digits to name its helpers; skipping it", ev.WireName),
			})
			continue
		}
		if prev, ok := ids[id]; ok {
			warnings = append(warnings, ir.Warning{
				Code:    NameCollision,
				Message: fmt.Sprintf("events %q and %q both render as on%s; skipping %q", prev, ev.WireName, id, ev.WireName),
			})
			continue
		}
		ids[id] = ev.WireName
		kept = append(kept, ev)
	}

	fmt.Fprintf(buf, "import { on, once, off } from %q;\n", e.runtimeModule())

	used := make(map[string]bool)
	for _, ev := range kept {
		modelNames(ev.PayloadType, models, used)
	}
	writeTypeImport(buf, used)

	for _, ev := range kept {
		id := EventIdentifier(ev.WireName)
		payload := Map(ev.PayloadType, models)
		handler := fmt.Sprintf("handler: (payload: %s) => void", payload)

		buf.WriteString("\n")
		fmt.Fprintf(buf, "export function on%s(%s): () => void {\n", id, handler)
		fmt.Fprintf(buf, "  return on<%s>(%q, handler);\n", payload, ev.WireName)
		buf.WriteString("}\n\n")
		fmt.Fprintf(buf, "export function once%s(%s): () => void {\n", id, handler)
		fmt.Fprintf(buf, "  return once<%s>(%q, handler);\n", payload, ev.WireName)
		buf.WriteString("}\n\n")
		fmt.Fprintf(buf, "export function off%s(%s): void {\n", id, handler)
		fmt.Fprintf(buf, "  off<%s>(%q, handler);\n", payload, ev.WireName)
		buf.WriteString("}\n")
	}
	return warnings
}

func (e *Emitter) emitIndex(buf *bytes.Buffer, services []ir.ServiceDescriptor, hasEvents bool) {
	buf.WriteString("export * from \"./models\";\n")
	if e.RuntimeImport == "" {
		buf.WriteString("export * from \"./runtime\";\n")
	}
	if hasEvents {
		buf.WriteString("export * from \"./events\";\n")
	}
	for _, svc := range services {
		fmt.Fprintf(buf, "export * as %s from %q;\n", sanitizeIdentifier(svc.Name), "./"+svc.Name)
	}
}

// modelNames adds the simple names of every model t refers to.
func modelNames(t ir.TypeDescriptor, models *ir.ModelTable, into map[string]bool) {
	switch d := t.(type) {
	case *ir.NullableDescriptor:
		modelNames(d.Element, models, into)
	case *ir.AsyncDescriptor:
		modelNames(d.Element, models, into)
	case *ir.ArrayDescriptor:
		modelNames(d.Element, models, into)
	case *ir.SequenceDescriptor:
		modelNames(d.Element, models, into)
	case *ir.MapDescriptor:
		modelNames(d.Key, models, into)
		modelNames(d.Value, models, into)
	case *ir.NamedDescriptor:
		if models.Has(d.ID()) {
			into[escapeReservedWord(d.Name)] = true
		}
	}
}

func writeTypeImport(buf *bytes.Buffer, names map[string]bool) {
	if len(names) == 0 {
		return
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	fmt.Fprintf(buf, "import type { %s } from \"./models\";\n", strings.Join(sorted, ", "))
}

func emitJSDoc(buf *bytes.Buffer, indent, doc string) {
	if doc == "" {
		return
	}
	lines := strings.Split(doc, "\n")
	if len(lines) == 1 {
		fmt.Fprintf(buf, "%s/** %s */\n", indent, strings.TrimSpace(lines[0]))
		return
	}
	buf.WriteString(indent + "/**\n")
	for _, line := range lines {
		buf.WriteString(strings.TrimRight(indent+" * "+strings.TrimSpace(line), " ") + "\n")
	}
	buf.WriteString(indent + " */\n")
}

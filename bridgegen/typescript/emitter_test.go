package typescript

import (
	"strings"
	"testing"

	"github.com/broady/bridge/bridgegen/ir"
)

const pkg = "example.com/api"

func files(t *testing.T, e *Emitter, in Input) map[string]string {
	t.Helper()
	out, _ := e.Emit(in)
	m := make(map[string]string, len(out))
	for i, f := range out {
		if i > 0 && out[i-1].Path >= f.Path {
			t.Errorf("files not sorted: %s before %s", out[i-1].Path, f.Path)
		}
		m[f.Path] = string(f.Content)
	}
	return m
}

func basicInput() Input {
	return Input{
		Services: []ir.ServiceDescriptor{{
			Name: "Basic",
			Methods: []ir.MethodDescriptor{{
				Name:       "Add",
				Parameters: []ir.ParamDescriptor{{Name: "a", Type: ir.Int(0)}, {Name: "b", Type: ir.Int(0)}},
				ReturnType: ir.Int(0),
			}},
		}},
		Models: ir.NewModelTable(),
	}
}

func assertContains(t *testing.T, name, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("%s missing %q\n--- got ---\n%s", name, w, got)
		}
	}
}

func assertNotContains(t *testing.T, name, got string, notWant ...string) {
	t.Helper()
	for _, w := range notWant {
		if strings.Contains(got, w) {
			t.Errorf("%s should not contain %q\n--- got ---\n%s", name, w, got)
		}
	}
}

func TestEmit_Basic(t *testing.T) {
	out := files(t, &Emitter{}, basicInput())

	for _, name := range []string{"Basic.ts", ModelsFile, RuntimeFile, IndexFile} {
		if _, ok := out[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
	if _, ok := out[EventsFile]; ok {
		t.Error("events.ts emitted without events")
	}

	stub := out["Basic.ts"]
	if n := strings.Count(stub, "export async function"); n != 1 {
		t.Errorf("stub has %d functions, want 1", n)
	}
	assertContains(t, "Basic.ts", stub,
		`import { call } from "./runtime";`,
		"export async function Add(a: number, b: number): Promise<number> {",
		`  return call<number>("Basic.Add", [a, b]);`,
	)
	assertNotContains(t, "Basic.ts", stub, "import type")

	assertContains(t, IndexFile, out[IndexFile],
		`export * from "./models";`,
		`export * from "./runtime";`,
		`export * as Basic from "./Basic";`,
	)
	assertNotContains(t, IndexFile, out[IndexFile], "./events")
}

func TestEmit_RuntimeImport(t *testing.T) {
	out := files(t, &Emitter{RuntimeImport: "@acme/bridge-runtime"}, basicInput())

	if _, ok := out[RuntimeFile]; ok {
		t.Error("runtime.ts emitted with an external runtime")
	}
	assertContains(t, "Basic.ts", out["Basic.ts"], `import { call } from "@acme/bridge-runtime";`)
	assertNotContains(t, IndexFile, out[IndexFile], "./runtime")
}

func TestEmit_DefaultTimeout(t *testing.T) {
	out := files(t, &Emitter{DefaultTimeoutMs: 5000}, basicInput())
	assertContains(t, RuntimeFile, out[RuntimeFile], "let defaultTimeout = 5000;")

	out = files(t, &Emitter{}, basicInput())
	assertContains(t, RuntimeFile, out[RuntimeFile], "let defaultTimeout = 0;")
}

func TestEmit_ServiceSignatures(t *testing.T) {
	user := &ir.NamedDescriptor{NamedKind: ir.KindRecord, Name: "User", Package: pkg}
	models := ir.NewModelTable()
	models.Add(&ir.ModelDescriptor{ID: user.ID(), Name: "User"})

	in := Input{
		Services: []ir.ServiceDescriptor{{
			Name: "Users",
			Methods: []ir.MethodDescriptor{
				{Name: "Get", Parameters: []ir.ParamDescriptor{{Name: "id", Type: ir.String()}}, ReturnType: ir.Nullable(user), Doc: "Get loads a user."},
				{Name: "Watch", Parameters: []ir.ParamDescriptor{{Name: "id", Type: ir.String()}}, ReturnType: user, IsAsync: true},
				{Name: "Reset", ReturnType: ir.Void()},
				{Name: "delete", Parameters: []ir.ParamDescriptor{{Name: "new", Type: ir.String()}}, ReturnType: ir.Void()},
			},
		}},
		Models: models,
	}
	out := files(t, &Emitter{EmitComments: true}, in)
	stub := out["Users.ts"]

	assertContains(t, "Users.ts", stub,
		`import type { User } from "./models";`,
		"/** Get loads a user. */",
		"export async function Get(id: string): Promise<User | null> {",
		`return call<User | null>("Users.Get", [id]);`,
		"export async function Watch(id: string): Promise<User> {",
		"export async function Reset(): Promise<void> {",
		`return call<void>("Users.Reset", []);`,
		"export async function delete_(new_: string): Promise<void> {",
		`return call<void>("Users.delete", [new_]);`,
	)
	if n := strings.Count(stub, "export async function"); n != 4 {
		t.Errorf("stub has %d functions, want 4", n)
	}

	out = files(t, &Emitter{}, in)
	assertNotContains(t, "Users.ts", out["Users.ts"], "/**")
}

func TestEmit_ParameterNames(t *testing.T) {
	in := Input{
		Services: []ir.ServiceDescriptor{{
			Name: "Jobs",
			Methods: []ir.MethodDescriptor{
				{Name: "Run", Parameters: []ir.ParamDescriptor{{Name: "call", Type: ir.String()}, {Name: "call_", Type: ir.Int(0)}}, ReturnType: ir.Void()},
				{Name: "Touch", Parameters: []ir.ParamDescriptor{{Name: "ids", Type: ir.Sequence(ir.String()), Variadic: true}}, ReturnType: ir.Void()},
				{Name: "Tag", Parameters: []ir.ParamDescriptor{
					{Name: "id", Type: ir.String()},
					{Name: "tags", Type: ir.Sequence(ir.String()), Variadic: true},
				}, ReturnType: ir.Bool()},
				{Name: "Replace", Parameters: []ir.ParamDescriptor{{Name: "ids", Type: ir.Sequence(ir.String())}}, ReturnType: ir.Void()},
			},
		}},
		Models: ir.NewModelTable(),
	}
	stub := files(t, &Emitter{}, in)["Jobs.ts"]

	assertContains(t, "Jobs.ts", stub,
		`import { call } from "./runtime";`,
		"export async function Run(call_: string, call__: number): Promise<void> {",
		`  return call<void>("Jobs.Run", [call_, call__]);`,
		"export async function Touch(...ids: string[]): Promise<void> {",
		`  return call<void>("Jobs.Touch", [...ids]);`,
		"export async function Tag(id: string, ...tags: string[]): Promise<boolean> {",
		`  return call<boolean>("Jobs.Tag", [id, ...tags]);`,
		"export async function Replace(ids: string[]): Promise<void> {",
		`  return call<void>("Jobs.Replace", [ids]);`,
	)
	assertNotContains(t, "Jobs.ts", stub, "(call: string")
}

func TestEmit_Models(t *testing.T) {
	models := ir.NewModelTable()
	models.Add(&ir.ModelDescriptor{
		ID:   pkg + ".Entity",
		Name: "Entity",
		Properties: []ir.Property{
			{Name: "ID", WireName: "id", Type: ir.String()},
		},
	})
	models.Add(&ir.ModelDescriptor{
		ID:           pkg + ".Order",
		Name:         "Order",
		BaseTypeName: pkg + ".Entity",
		Doc:          "Order is a purchase.\nIt has items.",
		Properties: []ir.Property{
			{Name: "Items", WireName: "items", Type: ir.Sequence(ir.String()), IsOptional: true},
			{Name: "Note", WireName: "note", Type: ir.Nullable(ir.String())},
			{Name: "Meta", WireName: "created-at", Type: ir.DateTime()},
			{Name: "Status", WireName: "status", Type: &ir.NamedDescriptor{NamedKind: ir.KindEnum, Name: "Status", Package: pkg}},
		},
	})
	models.Add(&ir.ModelDescriptor{
		ID:   pkg + ".Empty",
		Name: "Empty",
	})
	models.Add(&ir.ModelDescriptor{
		ID:   pkg + ".Status",
		Name: "Status",
		Kind: ir.ModelEnum,
		EnumValues: []ir.EnumValue{
			{Name: "Open", Value: "open"},
			{Name: "Closed", Value: "closed"},
		},
	})
	models.Add(&ir.ModelDescriptor{
		ID:   pkg + ".Priority",
		Name: "Priority",
		Kind: ir.ModelEnum,
		EnumValues: []ir.EnumValue{
			{Name: "Low", Value: int64(0)},
			{Name: "High", Value: int64(1)},
			{Name: "Urgent", Value: int64(1)},
			{Name: "Unset", Value: nil},
		},
	})

	out := files(t, &Emitter{EmitComments: true}, Input{Models: models})
	got := out[ModelsFile]

	assertContains(t, ModelsFile, got,
		"export interface Entity {\n  id: string;\n}",
		"/**\n * Order is a purchase.\n * It has items.\n */",
		"export interface Order extends Entity {",
		"  items?: string[];",
		"  note: string | null;",
		`  "created-at": string;`,
		"  status: Status;",
		"export interface Empty {}",
		"export enum Status {\n  Open = \"open\",\n  Closed = \"closed\",\n}",
		"  High = 1,\n  Urgent = 1,\n  Unset = 0,",
	)
	// Models are sorted by id.
	if strings.Index(got, "interface Empty") > strings.Index(got, "interface Entity") {
		t.Error("models not sorted by id")
	}
}

func TestEmit_NameCollision(t *testing.T) {
	models := ir.NewModelTable()
	models.Add(&ir.ModelDescriptor{ID: "a.com/v1.User", Name: "User"})
	models.Add(&ir.ModelDescriptor{ID: "a.com/v2.User", Name: "User"})

	out, warnings := (&Emitter{}).Emit(Input{Models: models})
	if len(warnings) != 1 || warnings[0].Code != NameCollision || warnings[0].TypeName != "a.com/v2.User" {
		t.Errorf("warnings = %v", warnings)
	}
	for _, f := range out {
		if f.Path == ModelsFile {
			if n := strings.Count(string(f.Content), "export interface User"); n != 1 {
				t.Errorf("User emitted %d times", n)
			}
		}
	}
}

func TestEmit_Events(t *testing.T) {
	created := &ir.NamedDescriptor{NamedKind: ir.KindRecord, Name: "UserCreated", Package: pkg}
	models := ir.NewModelTable()
	models.Add(&ir.ModelDescriptor{ID: created.ID(), Name: created.Name})

	in := basicInput()
	in.Models = models
	in.Events = []ir.EventDescriptor{
		{WireName: "user-created", PayloadType: created},
		{WireName: "tick", PayloadType: ir.Int(64)},
	}
	out := files(t, &Emitter{}, in)
	events, ok := out[EventsFile]
	if !ok {
		t.Fatal("events.ts not emitted")
	}
	assertContains(t, EventsFile, events,
		`import { on, once, off } from "./runtime";`,
		`import type { UserCreated } from "./models";`,
		"export function onUserCreated(handler: (payload: UserCreated) => void): () => void {",
		`  return on<UserCreated>("user-created", handler);`,
		"export function onceUserCreated(handler: (payload: UserCreated) => void): () => void {",
		"export function offUserCreated(handler: (payload: UserCreated) => void): void {",
		`  off<UserCreated>("user-created", handler);`,
		"export function onTick(handler: (payload: number) => void): () => void {",
	)
	assertContains(t, IndexFile, out[IndexFile], `export * from "./events";`)
}

func TestEmit_EventCollision(t *testing.T) {
	in := basicInput()
	in.Events = []ir.EventDescriptor{
		{WireName: "---", PayloadType: ir.Int(0)},
		{WireName: "user-created", PayloadType: ir.String()},
		{WireName: "user_created", PayloadType: ir.Int(0)},
	}
	out, warnings := (&Emitter{}).Emit(in)
	if len(warnings) != 2 || warnings[0].Code != InvalidEvent || warnings[1].Code != NameCollision {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[1].Message, `"user_created"`) {
		t.Errorf("collision warning names the wrong event: %s", warnings[1].Message)
	}

	var events string
	for _, f := range out {
		if f.Path == EventsFile {
			events = string(f.Content)
		}
	}
	if n := strings.Count(events, "export function onUserCreated("); n != 1 {
		t.Errorf("onUserCreated emitted %d times\n%s", n, events)
	}
	assertContains(t, EventsFile, events, `on<string>("user-created", handler)`)
	assertNotContains(t, EventsFile, events, `"user_created"`, "export function on(")
}

func TestFormatEnumValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"a\"b", `"a\"b"`},
		{int64(-3), "-3"},
		{7, "7"},
		{uint64(9), "9"},
		{1.5, "1.5"},
		{true, "1"},
		{false, "0"},
		{nil, "0"},
	}
	for _, tt := range tests {
		if got := formatEnumValue(tt.in); got != tt.want {
			t.Errorf("formatEnumValue(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

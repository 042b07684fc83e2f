package bridgegen

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/broady/bridge"
	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/sink"
	"github.com/broady/bridge/bridgegen/testdata/shop"
	"github.com/broady/bridge/testutil"
)

const testdata = "github.com/broady/bridge/bridgegen/testdata/"

var quiet = slog.New(slog.DiscardHandler)

func analysis() *Analysis {
	return &Analysis{
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

func TestHash(t *testing.T) {
	a := Hash([][]byte{[]byte("package a"), []byte("package b")})
	if len(a) != 16 {
		t.Errorf("Hash length = %d, want 16", len(a))
	}
	if b := Hash([][]byte{[]byte("package a"), []byte("package b")}); a != b {
		t.Error("Hash is not deterministic")
	}
	if c := Hash([][]byte{[]byte("package a"), []byte("package c")}); a == c {
		t.Error("Hash ignores content changes")
	}
}

func TestEmit_WritesHeader(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	g := FromPackage("unused").WithLogger(quiet)

	res, err := g.emit(ctx, s, analysis(), "0123456789abcdef")
	if err != nil {
		t.Fatalf("emit() error = %v", err)
	}
	if res.Skipped {
		t.Error("first run skipped")
	}
	want := []string{"Basic.ts", "index.ts", "models.ts", "runtime.ts"}
	if !slices.Equal(res.Written, want) {
		t.Errorf("Written = %v, want %v", res.Written, want)
	}
	for _, path := range want {
		content := string(s.Get(path))
		if !strings.HasPrefix(content, "// bridge-hash: 0123456789abcdef\n") {
			t.Errorf("%s missing hash header: %q", path, content[:min(len(content), 40)])
		}
	}
}

func TestEmit_SkipsWhenUpToDate(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	g := FromPackage("unused").WithLogger(quiet)

	if _, err := g.emit(ctx, s, analysis(), "aaaaaaaaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	res, err := g.emit(ctx, s, analysis(), "aaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || len(res.Written) != 0 {
		t.Errorf("second run = %+v, want skipped", res)
	}
	if n := s.Writes("Basic.ts"); n != 1 {
		t.Errorf("Basic.ts written %d times, want 1", n)
	}

	res, err = g.Force().emit(ctx, s, analysis(), "aaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || s.Writes("Basic.ts") != 2 {
		t.Errorf("forced run skipped or did not rewrite: %+v", res)
	}
}

func TestEmit_MissingFileRegenerates(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	g := FromPackage("unused").WithLogger(quiet)

	if _, err := g.emit(ctx, s, analysis(), "aaaaaaaaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	_ = s.Remove(ctx, "models.ts")
	res, err := g.emit(ctx, s, analysis(), "aaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || s.Get("models.ts") == nil {
		t.Error("missing output not regenerated")
	}
}

func TestEmit_RemovesStale(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	g := FromPackage("unused").WithLogger(quiet)

	// A service from an earlier run and a hand-written module.
	_ = s.WriteFile(ctx, "Old.ts", []byte(HashPrefix+"1111111111111111\nexport {};\n"))
	_ = s.WriteFile(ctx, "custom.ts", []byte("export const x = 1;\n"))
	_ = s.WriteFile(ctx, "README.md", []byte(HashPrefix+"1111111111111111\n"))

	res, err := g.emit(ctx, s, analysis(), "2222222222222222")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Removed, []string{"Old.ts"}) {
		t.Errorf("Removed = %v, want [Old.ts]", res.Removed)
	}
	if s.Get("Old.ts") != nil {
		t.Error("stale generated file kept")
	}
	if s.Get("custom.ts") == nil {
		t.Error("hand-written file removed")
	}
	if s.Get("README.md") == nil {
		t.Error("file with another extension removed")
	}
}

func TestEmit_RuntimeImport(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	g := FromPackage("unused").WithLogger(quiet).WithRuntimeImport("@acme/rt").WithoutComments()

	if _, err := g.emit(ctx, s, analysis(), "3333333333333333"); err != nil {
		t.Fatal(err)
	}
	if s.Get("runtime.ts") != nil {
		t.Error("runtime.ts written with an external runtime")
	}
	if !strings.Contains(string(s.Get("Basic.ts")), `from "@acme/rt"`) {
		t.Errorf("Basic.ts = %s", s.Get("Basic.ts"))
	}
}

func TestToSink(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()

	goSink := sink.NewMemorySink()

	res, err := FromPackage(testdata + "shop").
		WithSiblings(testdata + "shop/common").
		WithGoSink(goSink).
		WithLogger(quiet).
		ToSink(ctx, s)
	if err != nil {
		t.Fatalf("ToSink() error = %v", err)
	}
	if len(res.Inputs) != 2 {
		t.Errorf("Inputs = %v", res.Inputs)
	}
	for _, path := range []string{"Orders.ts", "models.ts", "events.ts", "runtime.ts", "index.ts"} {
		if s.Get(path) == nil {
			t.Errorf("%s not written", path)
		}
	}

	orders := string(s.Get("Orders.ts"))
	for _, want := range []string{
		"export async function Get(id: string): Promise<Order> {",
		"export async function Watch(id: string): Promise<Order> {",
		"export async function Close(id: string): Promise<void> {",
		"export async function Items(): Promise<Item[]> {",
		"export async function Touch(...ids: string[]): Promise<number> {",
		`return call<number>("Orders.Touch", [...ids]);`,
		`return call<Page_Order>("Orders.List", [status, limit]);`,
	} {
		if !strings.Contains(orders, want) {
			t.Errorf("Orders.ts missing %q\n%s", want, orders)
		}
	}
	for _, notWant := range []string{"Debug", "String", "Pair", "internal"} {
		if strings.Contains(orders, "function "+notWant+"(") {
			t.Errorf("Orders.ts exposes %s", notWant)
		}
	}

	models := string(s.Get("models.ts"))
	for _, want := range []string{
		"export interface Order extends Entity {",
		"export interface Entity {",
		"export enum Priority {",
		"export interface Page_Order {",
	} {
		if !strings.Contains(models, want) {
			t.Errorf("models.ts missing %q", want)
		}
	}

	if !strings.Contains(string(s.Get("events.ts")), "export function onOrderCreated(") {
		t.Error("events.ts missing onOrderCreated")
	}

	if !res.Registration || goSink.Get(RegistrationFile) == nil {
		t.Errorf("%s not written", RegistrationFile)
	}

	again, err := FromPackage(testdata+"shop").WithSiblings(testdata+"shop/common").WithGoSink(goSink).WithLogger(quiet).ToSink(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped || again.Hash != res.Hash {
		t.Errorf("unchanged inputs regenerated: %+v", again)
	}
}

func TestAnalyze_Warnings(t *testing.T) {
	a, err := FromPackage(testdata + "shop").WithLogger(quiet).Analyze(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var codes []string
	for _, w := range a.Warnings {
		codes = append(codes, w.Code)
	}
	if !slices.Contains(codes, "UNSUPPORTED_SIGNATURE") {
		t.Errorf("warnings = %v, want UNSUPPORTED_SIGNATURE", codes)
	}
}

// body drops the hash header line.
func body(content []byte) string {
	_, rest, _ := strings.Cut(string(content), "\n")
	return rest
}

func TestRegistration_Golden(t *testing.T) {
	goSink := sink.NewMemorySink()
	_, err := FromPackage(testdata+"shop").
		WithSiblings(testdata+"shop/common").
		WithGoSink(goSink).
		WithLogger(quiet).
		ToSink(context.Background(), sink.NewMemorySink())
	if err != nil {
		t.Fatal(err)
	}

	golden, err := os.ReadFile(filepath.Join("testdata", "shop", RegistrationFile))
	if err != nil {
		t.Fatal(err)
	}
	got := goSink.Get(RegistrationFile)
	if !strings.HasPrefix(string(got), HashPrefix) {
		t.Errorf("%s missing hash header", RegistrationFile)
	}
	if body(got) != body(golden) {
		t.Errorf("%s differs from testdata/shop/%s\n--- got ---\n%s", RegistrationFile, RegistrationFile, got)
	}
}

func TestRegistration_HostServesStubNames(t *testing.T) {
	b := bridge.NewBridge().WithLogger(quiet)
	t.Cleanup(b.Close)
	if err := b.Register(&shop.OrderService{}); err != nil {
		t.Fatal(err)
	}
	if got := b.Services(); !slices.Equal(got, []string{"Orders"}) {
		t.Fatalf("Services() = %v, want [Orders]", got)
	}

	p := testutil.NewPeer(t, b)
	// Touch is variadic: the stub spreads the ids as separate arguments.
	testutil.AssertResult(t, p.Call("Orders.Touch", "a", "b", "c"), 3)
	testutil.AssertResult(t, p.Call("Orders.Touch"), 0)
	testutil.AssertError(t, p.Call("Orders.Debug"), string(bridge.CodeNotFound))
	testutil.AssertError(t, p.Call("OrderService.Touch", "a"), string(bridge.CodeNotFound))
}

func TestRegistration(t *testing.T) {
	tests := []struct {
		name     string
		services []ir.ServiceDescriptor
		want     []string
	}{
		{"type name only", []ir.ServiceDescriptor{{Name: "Basic", TypeName: "Basic"}}, nil},
		{"renamed", []ir.ServiceDescriptor{{Name: "Orders", TypeName: "OrderService"}}, []string{
			`bridge.Declare("example.com/api.OrderService", "Orders")`,
		}},
		{"ignored", []ir.ServiceDescriptor{{Name: "Basic", TypeName: "Basic", Ignored: []string{"Debug", "Reset"}}}, []string{
			`bridge.Declare("example.com/api.Basic", "Basic", "Debug", "Reset")`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := registration("api", "example.com/api", tt.services)
			if err != nil {
				t.Fatal(err)
			}
			if tt.want == nil {
				if src != nil {
					t.Errorf("unexpected registration file:\n%s", src)
				}
				return
			}
			for _, w := range append([]string{
				"// Code generated by bridgegen. DO NOT EDIT.",
				"package api",
				`import "github.com/broady/bridge"`,
			}, tt.want...) {
				if !strings.Contains(string(src), w) {
					t.Errorf("missing %q\n%s", w, src)
				}
			}
		})
	}
}

func TestEmit_RegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	goSink := sink.NewMemorySink()
	g := FromPackage("unused").WithGoSink(goSink).WithLogger(quiet)

	a := analysis()
	a.PackageName, a.PackagePath = "api", "example.com/api"
	a.Services[0].TypeName = "Calculator"

	res, err := g.emit(ctx, s, a, "4444444444444444")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Registration || !strings.HasPrefix(string(goSink.Get(RegistrationFile)), HashPrefix+"4444444444444444\n") {
		t.Fatalf("registration not written: %+v", res)
	}

	// Removing the file alone makes the output stale.
	_ = goSink.Remove(ctx, RegistrationFile)
	if res, err = g.emit(ctx, s, a, "4444444444444444"); err != nil || res.Skipped {
		t.Fatalf("missing registration did not regenerate: %+v, %v", res, err)
	}

	// Once nothing needs declaring, the generated file goes away.
	a.Services[0].TypeName = "Basic"
	if res, err = g.emit(ctx, s, a, "5555555555555555"); err != nil {
		t.Fatal(err)
	}
	if goSink.Get(RegistrationFile) != nil || !slices.Contains(res.Removed, RegistrationFile) {
		t.Errorf("stale registration kept: %+v", res)
	}

	// A hand-written file of the same name is left alone.
	_ = goSink.WriteFile(ctx, RegistrationFile, []byte("package api\n"))
	if _, err = g.Force().emit(ctx, s, a, "5555555555555555"); err != nil {
		t.Fatal(err)
	}
	if goSink.Get(RegistrationFile) == nil {
		t.Error("hand-written file removed")
	}

	if res, err = FromPackage("unused").WithoutRegistration().WithGoSink(goSink).WithLogger(quiet).emit(ctx, s, a, "6666666666666666"); err != nil || res.Registration {
		t.Errorf("WithoutRegistration wrote a file: %+v, %v", res, err)
	}
}

func TestToSink_SettingsInvalidateOutput(t *testing.T) {
	ctx := context.Background()
	s := sink.NewMemorySink()
	gen := func() *Generator {
		return FromPackage(testdata + "basic").WithGoSink(sink.NewMemorySink()).WithLogger(quiet)
	}

	first, err := gen().ToSink(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(s.Get("Basic.ts")), "/**") {
		t.Fatalf("Basic.ts has no doc comments:\n%s", s.Get("Basic.ts"))
	}

	second, err := gen().WithRuntimeImport("@app/rt").WithoutComments().ToSink(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if second.Skipped || second.Hash == first.Hash {
		t.Fatalf("changed settings skipped regeneration: %+v", second)
	}
	if s.Get("runtime.ts") != nil || !slices.Contains(second.Removed, "runtime.ts") {
		t.Errorf("runtime.ts kept with an external runtime: removed %v", second.Removed)
	}
	basic := string(s.Get("Basic.ts"))
	if !strings.Contains(basic, `from "@app/rt"`) || strings.Contains(basic, "/**") {
		t.Errorf("Basic.ts not regenerated:\n%s", basic)
	}

	third, err := gen().WithDefaultTimeout(1500).ToSink(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if third.Skipped || !strings.Contains(string(s.Get("runtime.ts")), "let defaultTimeout = 1500;") {
		t.Errorf("timeout change not applied: %+v", third)
	}

	// The same settings hash the same.
	again, err := gen().WithDefaultTimeout(1500).ToSink(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped || again.Hash != third.Hash {
		t.Errorf("unchanged settings regenerated: %+v", again)
	}
}

// Package bridgegen generates TypeScript client stubs for bridge services.
//
// It loads a Go package, discovers the types marked with //bridge:service and
// //bridge:event, collects the records and enums they reference and writes
// one module per service plus models.ts, events.ts, runtime.ts and index.ts.
//
// When a service is renamed by its directive or has //bridge:ignore methods,
// bridge_gen.go is also written into the scanned package so the host serves
// the same surface.
//
// Every output file starts with a hash of the Go sources and the generator
// settings it was produced from. When the hash on disk matches, generation is
// skipped.
//
//	res, err := bridgegen.FromPackage("./api").
//	    WithLogger(logger).
//	    ToDir(ctx, "./web/src/bridge")
package bridgegen

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/broady/bridge/bridgegen/collect"
	"github.com/broady/bridge/bridgegen/discover"
	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/provider"
	"github.com/broady/bridge/bridgegen/sink"
	"github.com/broady/bridge/bridgegen/typescript"
	"github.com/broady/bridge/internal/convention"
)

// HashPrefix starts the first line of every generated file.
const HashPrefix = "// bridge-hash: "

// OutputExt is the extension of generated files; stale cleanup only
// considers files with it.
const OutputExt = ".ts"

// formatVersion is folded into the hash. Bump it when emitted output changes
// shape so existing output is not mistaken for current.
const formatVersion = 2

// Generator provides a fluent API for code generation.
// Create with FromPackage or FromConfig and configure with method chaining.
type Generator struct {
	cfg    Config
	force  bool
	goSink sink.Store
	logger *slog.Logger
}

// FromPackage creates a Generator for the Go package matching pattern.
func FromPackage(pattern string) *Generator {
	return &Generator{cfg: Config{Package: pattern}}
}

// FromConfig creates a Generator from a loaded Config.
func FromConfig(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// WithSiblings adds packages whose records are collected as models.
func (g *Generator) WithSiblings(patterns ...string) *Generator {
	g.cfg.Siblings = append(g.cfg.Siblings, patterns...)
	return g
}

// InDir sets the working directory for package resolution.
func (g *Generator) InDir(dir string) *Generator {
	g.cfg.Dir = dir
	return g
}

// WithRuntimeImport makes stubs import the call primitive from module
// instead of the bundled runtime.ts.
func (g *Generator) WithRuntimeImport(module string) *Generator {
	g.cfg.RuntimeImport = module
	return g
}

// WithDefaultTimeout sets the bundled runtime's default call timeout.
func (g *Generator) WithDefaultTimeout(ms int) *Generator {
	g.cfg.DefaultTimeoutMs = ms
	return g
}

// WithoutComments disables copying Go doc comments into the output.
func (g *Generator) WithoutComments() *Generator {
	off := false
	g.cfg.Comments = &off
	return g
}

// WithoutRegistration disables writing bridge_gen.go into the scanned
// package.
func (g *Generator) WithoutRegistration() *Generator {
	off := false
	g.cfg.Registration = &off
	return g
}

// WithGoSink writes bridge_gen.go to s instead of the scanned package's
// directory.
func (g *Generator) WithGoSink(s sink.Store) *Generator {
	g.goSink = s
	return g
}

// Force regenerates even when the output is up to date.
func (g *Generator) Force() *Generator {
	g.force = true
	return g
}

// WithLogger sets the logger for warnings and progress.
func (g *Generator) WithLogger(logger *slog.Logger) *Generator {
	g.logger = logger
	return g
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

// Analysis is the result of discovery and model collection.
type Analysis struct {
	Program *provider.Program

	// PackageName and PackagePath identify the scanned package.
	PackageName string
	PackagePath string

	Services []ir.ServiceDescriptor
	Events   []ir.EventDescriptor
	Models   *ir.ModelTable
	Warnings []ir.Warning
}

// Analyze loads the package and discovers services, events and models
// without writing anything.
func (g *Generator) Analyze(ctx context.Context) (*Analysis, error) {
	prog, err := provider.Load(ctx, provider.LoadOptions{
		Dir:      g.cfg.Dir,
		Package:  g.cfg.Package,
		Siblings: g.cfg.Siblings,
	})
	if err != nil {
		return nil, err
	}

	services, warnings := discover.Services(prog)
	events := discover.Events(prog)

	table := ir.NewModelTable()
	c := collect.New(table, prog.Owners()...)
	for _, svc := range services {
		for _, m := range svc.Methods {
			for _, p := range m.Parameters {
				c.Collect(p.Type)
			}
			c.Collect(m.ReturnType)
		}
	}
	for _, ev := range events {
		c.Collect(ev.PayloadType)
	}

	warnings = append(warnings, prog.Warnings()...)
	warnings = append(warnings, c.Warnings()...)

	return &Analysis{
		Program:     prog,
		PackageName: prog.Target.Name,
		PackagePath: prog.Target.PkgPath,
		Services:    services,
		Events:   events,
		Models:   table,
		Warnings: warnings,
	}, nil
}

// Result describes one generation run.
type Result struct {
	// Hash covers the inputs and the generator settings.
	Hash string

	// Inputs are the Go source files the hash covers, sorted. Generated
	// files carrying the hash marker are excluded.
	Inputs []string

	// Skipped is true when every output file already carried Hash.
	Skipped bool

	// Written and Removed list the relative paths written and deleted.
	Written []string
	Removed []string

	// Registration reports whether bridge_gen.go was written.
	Registration bool

	Warnings []ir.Warning
}

// ToDir generates into a directory on the local filesystem.
func (g *Generator) ToDir(ctx context.Context, dir string) (*Result, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	return g.ToSink(ctx, sink.NewFilesystemSink(dir))
}

// ToSink generates into s.
func (g *Generator) ToSink(ctx context.Context, s sink.Store) (*Result, error) {
	a, err := g.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	contents, err := a.Program.ReadFiles()
	if err != nil {
		return nil, err
	}
	var paths []string
	var inputs [][]byte
	for i, path := range a.Program.Files() {
		if bytes.HasPrefix(contents[i], []byte(HashPrefix)) {
			continue
		}
		paths = append(paths, path)
		inputs = append(inputs, contents[i])
	}
	res, err := g.emit(ctx, s, a, Hash(append(inputs, g.settings())))
	if err != nil {
		return nil, err
	}
	res.Inputs = paths
	return res, nil
}

// settings renders everything besides the inputs that shapes the output.
func (g *Generator) settings() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "format=%d\n", formatVersion)
	fmt.Fprintf(&b, "version=%s\n", generatorVersion())
	fmt.Fprintf(&b, "runtimeImport=%s\n", strconv.Quote(g.cfg.RuntimeImport))
	fmt.Fprintf(&b, "defaultTimeoutMs=%d\n", g.cfg.DefaultTimeoutMs)
	fmt.Fprintf(&b, "comments=%t\n", g.cfg.comments())
	fmt.Fprintf(&b, "registration=%t\n", g.cfg.registration())
	return []byte(b.String())
}

// generatorVersion returns the version of the module providing bridgegen.
func generatorVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if bi.Main.Path == convention.Module {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if dep.Path == convention.Module {
			if dep.Replace != nil {
				return dep.Replace.Path + "@" + dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}

func (g *Generator) emit(ctx context.Context, s sink.Store, a *Analysis, hash string) (*Result, error) {
	logger := g.log()
	em := &typescript.Emitter{
		RuntimeImport:    g.cfg.RuntimeImport,
		DefaultTimeoutMs: g.cfg.DefaultTimeoutMs,
		EmitComments:     g.cfg.comments(),
	}
	files, ws := em.Emit(typescript.Input{
		Services: a.Services,
		Events:   a.Events,
		Models:   a.Models,
	})

	res := &Result{Hash: hash, Warnings: append(a.Warnings, ws...)}
	for _, w := range res.Warnings {
		logger.Warn(w.Message, "code", w.Code, "type", w.TypeName)
	}

	goStore := g.goStore(a)
	var reg []byte
	if goStore != nil {
		var err error
		if reg, err = registration(a.PackageName, a.PackagePath, a.Services); err != nil {
			return nil, err
		}
	}

	header := HashPrefix + hash
	if !g.force {
		upToDate, err := upToDate(ctx, s, files, header)
		if err != nil {
			return nil, err
		}
		if upToDate && reg != nil {
			head, err := goStore.ReadHead(ctx, RegistrationFile)
			upToDate = err == nil && head == header
		}
		if upToDate {
			logger.Debug("output up to date", "hash", hash)
			res.Skipped = true
			return res, nil
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	for _, f := range files {
		content := withHeader(header, f.Content)
		eg.Go(func() error {
			if err := s.WriteFile(egctx, f.Path, content); err != nil {
				return fmt.Errorf("write %s: %w", f.Path, err)
			}
			return nil
		})
		res.Written = append(res.Written, f.Path)
	}
	if reg != nil {
		content := withHeader(header, reg)
		eg.Go(func() error {
			if err := goStore.WriteFile(egctx, RegistrationFile, content); err != nil {
				return fmt.Errorf("write %s: %w", RegistrationFile, err)
			}
			return nil
		})
		res.Registration = true
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	removed, err := removeStale(ctx, s, files)
	if err != nil {
		return nil, err
	}
	res.Removed = removed
	if reg == nil && goStore != nil {
		ok, err := removeRegistration(ctx, goStore)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Removed = append(res.Removed, RegistrationFile)
		}
	}

	logger.Info("generated", "files", len(res.Written), "registration", res.Registration, "removed", len(res.Removed), "hash", hash)
	return res, nil
}

func withHeader(header string, body []byte) []byte {
	content := make([]byte, 0, len(header)+1+len(body))
	content = append(content, header...)
	content = append(content, '\n')
	return append(content, body...)
}

// Hash returns the 16 hex digit content hash of inputs, in order.
func Hash(inputs [][]byte) string {
	d := xxhash.New()
	for _, in := range inputs {
		_, _ = d.Write(in)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// upToDate reports whether every file in files exists in s with header as
// its first line.
func upToDate(ctx context.Context, s sink.Store, files []typescript.File, header string) (bool, error) {
	for _, f := range files {
		head, err := s.ReadHead(ctx, f.Path)
		if err != nil {
			return false, nil
		}
		if head != header {
			return false, nil
		}
	}
	return true, ctx.Err()
}

// removeStale deletes generated files left from earlier runs. Files without
// the hash marker were not written by the generator and are kept.
func removeStale(ctx context.Context, s sink.Store, files []typescript.File) ([]string, error) {
	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f.Path] = true
	}

	existing, err := s.List(ctx, OutputExt)
	if err != nil {
		return nil, fmt.Errorf("list output: %w", err)
	}
	var removed []string
	for _, path := range existing {
		if current[path] {
			continue
		}
		head, err := s.ReadHead(ctx, path)
		if err != nil || !strings.HasPrefix(head, HashPrefix) {
			continue
		}
		if err := s.Remove(ctx, path); err != nil {
			return removed, fmt.Errorf("remove stale %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

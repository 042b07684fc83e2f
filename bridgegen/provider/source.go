// Package provider extracts type information from Go code and converts it into
// the bridge intermediate representation.
//
// The source provider loads packages with golang.org/x/tools/go/packages and
// walks go/types. Package reflection does the same for reflect.Type in a
// running bridge.
package provider

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/internal/convention"
	"golang.org/x/tools/go/packages"
)

// LoadOptions configures Load.
type LoadOptions struct {
	// Dir is the working directory for package resolution. Empty means the
	// current directory.
	Dir string

	// Package is the target package pattern: an import path or a directory.
	Package string

	// Siblings are additional package patterns whose types count as
	// belonging to the scanned set (their records are collected too).
	Siblings []string
}

// Program is a loaded target package plus its siblings.
type Program struct {
	// Target is the package scanned for services and events.
	Target *packages.Package

	// Siblings are the additional owner packages.
	Siblings []*packages.Package

	owners map[string]bool
	docs   map[token.Pos]*ast.CommentGroup

	conv *converter
}

// Load loads the target and sibling packages with full type information.
func Load(ctx context.Context, opts LoadOptions) (*Program, error) {
	if opts.Package == "" {
		return nil, fmt.Errorf("no package specified")
	}

	cfg := &packages.Config{
		Context: ctx,
		Dir:     opts.Dir,
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo,
	}

	// Resolve the target's import path first so it can be told apart from
	// the siblings, whatever order packages.Load returns roots in.
	matched, err := packages.Load(&packages.Config{Context: ctx, Dir: opts.Dir, Mode: packages.NeedName}, opts.Package)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve package %q: %w", opts.Package, err)
	}
	if len(matched) != 1 {
		return nil, fmt.Errorf("pattern %q matched %d packages; specify a single package", opts.Package, len(matched))
	}
	targetPath := matched[0].PkgPath

	patterns := append([]string{opts.Package}, opts.Siblings...)
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching %q", opts.Package)
	}

	var target *packages.Package
	var siblings []*packages.Package
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, fmt.Errorf("package %s has errors: %v", pkg.PkgPath, pkg.Errors[0])
		}
		if pkg.PkgPath == targetPath && target == nil {
			target = pkg
			continue
		}
		siblings = append(siblings, pkg)
	}
	if target == nil {
		return nil, fmt.Errorf("package %s not among loaded packages", targetPath)
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].PkgPath < siblings[j].PkgPath })

	return newProgram(target, siblings), nil
}

func newProgram(target *packages.Package, siblings []*packages.Package) *Program {
	p := &Program{
		Target:   target,
		Siblings: siblings,
		owners:   make(map[string]bool),
		docs:     make(map[token.Pos]*ast.CommentGroup),
	}
	for _, pkg := range p.Packages() {
		p.owners[pkg.PkgPath] = true
		for _, f := range pkg.Syntax {
			indexDocs(f, p.docs)
		}
	}
	p.conv = newConverter(p)
	return p
}

// Packages returns the target followed by the siblings.
func (p *Program) Packages() []*packages.Package {
	return append([]*packages.Package{p.Target}, p.Siblings...)
}

// Owns reports whether pkgPath belongs to the scanned package set.
func (p *Program) Owns(pkgPath string) bool {
	return p.owners[pkgPath]
}

// Owners returns the scanned package paths, sorted.
func (p *Program) Owners() []string {
	out := make([]string, 0, len(p.owners))
	for k := range p.owners {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Files returns the absolute paths of every compiled Go file of the scanned
// packages, sorted.
func (p *Program) Files() []string {
	var files []string
	for _, pkg := range p.Packages() {
		files = append(files, pkg.CompiledGoFiles...)
	}
	sort.Strings(files)
	return files
}

// Dirs returns the directories of the scanned packages, sorted and unique.
func (p *Program) Dirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range p.Files() {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ReadFiles returns the contents of Files in the same order.
func (p *Program) ReadFiles() ([][]byte, error) {
	files := p.Files()
	out := make([][]byte, len(files))
	for i, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", f, err)
		}
		out[i] = b
	}
	return out, nil
}

// Doc returns the doc comment attached to a type or function declaration.
func (p *Program) Doc(obj types.Object) *ast.CommentGroup {
	return p.docs[obj.Pos()]
}

// Directives returns the bridge directives in obj's doc comment.
func (p *Program) Directives(obj types.Object) []Directive {
	return parseDirectives(p.Doc(obj))
}

// Convert classifies a go/types type.
func (p *Program) Convert(t types.Type) ir.TypeDescriptor {
	return p.conv.convert(t)
}

// Warnings returns the warnings produced by conversion so far.
func (p *Program) Warnings() []ir.Warning {
	return p.conv.warnings
}

// Directive is one parsed //bridge: comment line.
type Directive struct {
	Name string
	Args []string
}

func parseDirectives(cg *ast.CommentGroup) []Directive {
	if cg == nil {
		return nil
	}
	var out []Directive
	for _, c := range cg.List {
		if name, args, ok := convention.ParseDirective(c.Text); ok {
			out = append(out, Directive{Name: name, Args: args})
		}
	}
	return out
}

// FindDirective returns the first directive with the given name.
func FindDirective(ds []Directive, name string) (Directive, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return Directive{}, false
}

// indexDocs records the doc comment of every type spec and function
// declaration in f, keyed by the position of the declared name.
func indexDocs(f *ast.File, docs map[token.Pos]*ast.CommentGroup) {
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Doc != nil {
				docs[d.Name.Pos()] = d.Doc
			}
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
				}
				if doc != nil {
					docs[ts.Name.Pos()] = doc
				}
			}
		}
	}
}

// DocText returns the comment text with directive lines removed.
func DocText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	// CommentGroup.Text already drops //go: style directives; bridge
	// directives contain no space after // and are dropped the same way.
	return strings.TrimSpace(cg.Text())
}

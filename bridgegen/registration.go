package bridgegen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/sink"
	"github.com/broady/bridge/internal/convention"
)

// RegistrationFile is the Go file written into the scanned package. Its init
// function hands the service names and ignored methods of the source
// annotations to bridge.Declare, so the host serves exactly the methods the
// stubs call.
const RegistrationFile = "bridge_gen.go"

// registration renders RegistrationFile without its hash header. It returns
// nil when no service is renamed or has ignored methods.
func registration(pkgName, pkgPath string, services []ir.ServiceDescriptor) ([]byte, error) {
	if pkgName == "" {
		return nil, nil
	}
	var decls []ir.ServiceDescriptor
	for _, svc := range services {
		if svc.Name != svc.TypeName || len(svc.Ignored) > 0 {
			decls = append(decls, svc)
		}
	}
	if len(decls) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	buf.WriteString("// Code generated by bridgegen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\nimport %q\n\nfunc init() {\n", pkgName, convention.Module)
	for _, svc := range decls {
		args := []string{strconv.Quote(pkgPath + "." + svc.TypeName), strconv.Quote(svc.Name)}
		for _, m := range svc.Ignored {
			args = append(args, strconv.Quote(m))
		}
		fmt.Fprintf(&buf, "\tbridge.Declare(%s)\n", strings.Join(args, ", "))
	}
	buf.WriteString("}\n")

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", RegistrationFile, err)
	}
	return src, nil
}

// goStore returns where RegistrationFile goes: the sink set with WithGoSink,
// or the scanned package's directory. It returns nil when registration is
// off or there is no package to write into.
func (g *Generator) goStore(a *Analysis) sink.Store {
	if !g.cfg.registration() {
		return nil
	}
	if g.goSink != nil {
		return g.goSink
	}
	if a.Program == nil || len(a.Program.Target.CompiledGoFiles) == 0 {
		return nil
	}
	return sink.NewFilesystemSink(filepath.Dir(a.Program.Target.CompiledGoFiles[0]))
}

// removeRegistration deletes a RegistrationFile left by an earlier run once
// no service needs it. Files without the hash marker are kept.
func removeRegistration(ctx context.Context, s sink.Store) (bool, error) {
	head, err := s.ReadHead(ctx, RegistrationFile)
	if err != nil || !strings.HasPrefix(head, HashPrefix) {
		return false, nil
	}
	if err := s.Remove(ctx, RegistrationFile); err != nil {
		return false, fmt.Errorf("remove stale %s: %w", RegistrationFile, err)
	}
	return true, nil
}

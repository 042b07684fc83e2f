// Package discover finds bridge services and events in a loaded Go package.
//
// A service is an exported named type whose doc comment carries
//
//	//bridge:service [Name]
//
// and an event is an exported type carrying
//
//	//bridge:event <wire-name>
//
// Methods are read from the method set of *T. Parameters of type
// context.Context and *bridge.CallContext are injected at call time and never
// appear in a MethodDescriptor.
package discover

import (
	"fmt"
	"go/types"
	"sort"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/provider"
	"github.com/broady/bridge/internal/convention"
)

// Warning codes.
const (
	UnsupportedSignature = "UNSUPPORTED_SIGNATURE"
	DuplicateService     = "DUPLICATE_SERVICE"
)

// Services returns the services declared in the program's target package,
// sorted by resolved name.
//
// When two types resolve to the same service name the one declared later
// wins and a DUPLICATE_SERVICE warning is reported.
func Services(prog *provider.Program) ([]ir.ServiceDescriptor, []ir.Warning) {
	var warnings []ir.Warning
	byName := make(map[string]ir.ServiceDescriptor)

	for _, tn := range exportedTypes(prog) {
		d, ok := provider.FindDirective(prog.Directives(tn), convention.DirectiveService)
		if !ok {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}

		name := tn.Name()
		if len(d.Args) > 0 && d.Args[0] != "" {
			name = d.Args[0]
		}

		svc := ir.ServiceDescriptor{
			Name:     name,
			TypeName: tn.Name(),
			Doc:      docOf(prog, tn),
		}
		methods, ignored, ws := methods(prog, named, name)
		svc.Methods = methods
		svc.Ignored = ignored
		warnings = append(warnings, ws...)

		if prev, dup := byName[name]; dup {
			warnings = append(warnings, ir.Warning{
				Code:     DuplicateService,
				Message:  fmt.Sprintf("service name %q declared by both %s and %s; using %s", name, prev.TypeName, tn.Name(), tn.Name()),
				TypeName: tn.Name(),
			})
		}
		byName[name] = svc
	}

	services := make([]ir.ServiceDescriptor, 0, len(byName))
	for _, svc := range byName {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, warnings
}

// Events returns the events declared in the program's target package, sorted
// by wire name. Types whose directive has no wire name are skipped.
func Events(prog *provider.Program) []ir.EventDescriptor {
	var events []ir.EventDescriptor
	for _, tn := range exportedTypes(prog) {
		d, ok := provider.FindDirective(prog.Directives(tn), convention.DirectiveEvent)
		if !ok || len(d.Args) == 0 || d.Args[0] == "" {
			continue
		}
		events = append(events, ir.EventDescriptor{
			WireName:    d.Args[0],
			PayloadType: prog.Convert(tn.Type()),
		})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].WireName < events[j].WireName })
	return events
}

// exportedTypes returns the exported type names of the target package in
// declaration order.
func exportedTypes(prog *provider.Program) []*types.TypeName {
	scope := prog.Target.Types.Scope()
	var out []*types.TypeName
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		out = append(out, tn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos() < out[j].Pos() })
	return out
}

func methods(prog *provider.Program, named *types.Named, service string) ([]ir.MethodDescriptor, []string, []ir.Warning) {
	var out []ir.MethodDescriptor
	var ignored []string
	var warnings []ir.Warning

	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		fn, ok := mset.At(i).Obj().(*types.Func)
		if !ok || !fn.Exported() || convention.IsHookMethod(fn.Name()) {
			continue
		}
		if _, ok := provider.FindDirective(prog.Directives(fn), convention.DirectiveIgnore); ok {
			ignored = append(ignored, fn.Name())
			continue
		}

		sig := fn.Type().(*types.Signature)
		ret, isAsync, ok := returnType(prog, sig)
		if !ok {
			warnings = append(warnings, ir.Warning{
				Code:     UnsupportedSignature,
				Message:  fmt.Sprintf("%s.%s: results must be (), (T), (error) or (T, error); got %s", service, fn.Name(), sig.Results()),
				TypeName: named.Obj().Name(),
			})
			continue
		}

		out = append(out, ir.MethodDescriptor{
			Name:       fn.Name(),
			Parameters: params(prog, sig),
			ReturnType: ret,
			IsAsync:    isAsync,
			Doc:        docOf(prog, fn),
		})
	}
	// Method sets are sorted by name; keep that order for stable output.
	return out, ignored, warnings
}

// returnType classifies a method's results and unwraps an asynchronous
// wrapper.
func returnType(prog *provider.Program, sig *types.Signature) (ir.TypeDescriptor, bool, bool) {
	res := sig.Results()
	var value types.Type
	switch res.Len() {
	case 0:
	case 1:
		if !IsError(res.At(0).Type()) {
			value = res.At(0).Type()
		}
	case 2:
		if !IsError(res.At(1).Type()) {
			return nil, false, false
		}
		value = res.At(0).Type()
	default:
		return nil, false, false
	}

	if value == nil {
		return ir.Void(), false, true
	}
	t := prog.Convert(value)
	if async, ok := t.(*ir.AsyncDescriptor); ok {
		return async.Element, true, true
	}
	return t, false, true
}

func params(prog *provider.Program, sig *types.Signature) []ir.ParamDescriptor {
	var out []ir.ParamDescriptor
	for i := 0; i < sig.Params().Len(); i++ {
		p := sig.Params().At(i)
		if IsInjected(p.Type()) {
			continue
		}
		name := p.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("arg%d", i)
		}
		out = append(out, ir.ParamDescriptor{
			Name:     name,
			Type:     prog.Convert(p.Type()),
			Variadic: sig.Variadic() && i == sig.Params().Len()-1,
		})
	}
	return out
}

// IsInjected reports whether t is context.Context or *bridge.CallContext.
func IsInjected(t types.Type) bool {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		return isNamed(ptr.Elem(), convention.Module, convention.CallContextType)
	}
	return isNamed(t, "context", "Context")
}

// IsError reports whether t is the predeclared error type.
func IsError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func isNamed(t types.Type, pkgPath, name string) bool {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == pkgPath && obj.Name() == name
}

func docOf(prog *provider.Program, obj types.Object) string {
	cg := prog.Doc(obj)
	if cg == nil {
		return ""
	}
	return provider.DocText(cg)
}

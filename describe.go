package bridge

import (
	"reflect"
	"sort"

	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/provider/reflection"
)

// Describe returns the callable surface of the registered services, sorted by
// name, in the form the generator discovers from source. Records declared in
// the packages of the registered service types are expanded; others are
// references.
func (b *Bridge) Describe() []ir.ServiceDescriptor {
	b.mu.RLock()
	services := make([]*service, 0, len(b.services))
	for _, s := range b.services {
		services = append(services, s)
	}
	b.mu.RUnlock()
	sort.Slice(services, func(i, j int) bool { return services[i].name < services[j].name })

	p := reflection.New()
	for _, s := range services {
		p.Own(derefType(s.typ).PkgPath())
	}

	out := make([]ir.ServiceDescriptor, 0, len(services))
	for _, s := range services {
		sd := ir.ServiceDescriptor{Name: s.name, TypeName: derefType(s.typ).Name()}
		names := make([]string, 0, len(s.methods))
		for n := range s.methods {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			m, ok := p.Method(n, s.methods[n].typ, isInjected)
			if ok {
				sd.Methods = append(sd.Methods, m)
			}
		}
		out = append(out, sd)
	}
	return out
}

func isInjected(t reflect.Type) bool {
	return t == contextType || t == callContextType
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

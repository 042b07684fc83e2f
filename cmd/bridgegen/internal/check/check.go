package check

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/broady/bridge/bridgegen"
	"github.com/broady/bridge/bridgegen/ir"
	"github.com/broady/bridge/bridgegen/typescript"
	"github.com/broady/bridge/cmd/bridgegen/internal/gen"
)

type Cmd struct {
	gen.Options `embed:""`

	Strict bool `help:"Fail if discovery reports any warning."`
}

func (c *Cmd) Run() error {
	cfg, err := c.Resolve()
	if err != nil {
		return err
	}
	a, err := bridgegen.FromConfig(*cfg).WithLogger(c.Logger()).Analyze(context.Background())
	if err != nil {
		return err
	}
	Print(os.Stdout, a)
	if c.Strict && len(a.Warnings) > 0 {
		return fmt.Errorf("%d warning(s)", len(a.Warnings))
	}
	return nil
}

// Print writes a summary of the analysis in TypeScript notation.
func Print(w io.Writer, a *bridgegen.Analysis) {
	for _, svc := range a.Services {
		fmt.Fprintf(w, "service %s (%s)\n", svc.Name, svc.TypeName)
		for _, m := range svc.Methods {
			params := make([]string, len(m.Parameters))
			for i, p := range m.Parameters {
				params[i] = p.Name + ": " + typescript.Map(p.Type, a.Models)
				if p.Variadic {
					params[i] = "..." + params[i]
				}
			}
			async := ""
			if m.IsAsync {
				async = " [async]"
			}
			fmt.Fprintf(w, "  %s(%s): %s%s\n", m.QualifiedName(svc.Name), strings.Join(params, ", "), typescript.Map(m.ReturnType, a.Models), async)
		}
	}
	for _, ev := range a.Events {
		fmt.Fprintf(w, "event %q: %s\n", ev.WireName, typescript.Map(ev.PayloadType, a.Models))
	}
	for _, m := range a.Models.Models() {
		switch m.Kind {
		case ir.ModelEnum:
			fmt.Fprintf(w, "enum %s (%d values)\n", m.ID, len(m.EnumValues))
		default:
			base := ""
			if m.BaseTypeName != "" {
				base = " extends " + m.BaseTypeName
			}
			fmt.Fprintf(w, "record %s%s (%d properties)\n", m.ID, base, len(m.Properties))
		}
	}
	for _, warn := range a.Warnings {
		fmt.Fprintf(w, "warning %s: %s\n", warn.Code, warn.Message)
	}
}

package check

import (
	"bytes"
	"strings"
	"testing"

	"github.com/broady/bridge/bridgegen"
	"github.com/broady/bridge/bridgegen/ir"
)

func TestPrint(t *testing.T) {
	user := &ir.NamedDescriptor{NamedKind: ir.KindRecord, Name: "User", Package: "example.com/app"}
	role := &ir.NamedDescriptor{NamedKind: ir.KindEnum, Name: "Role", Package: "example.com/app"}

	models := ir.NewModelTable()
	models.Add(&ir.ModelDescriptor{ID: user.ID(), Name: "User", Properties: []ir.Property{{Name: "ID", Type: ir.String()}}, BaseTypeName: "example.com/app.Entity"})
	models.Add(&ir.ModelDescriptor{ID: role.ID(), Name: "Role", Kind: ir.ModelEnum, EnumValues: []ir.EnumValue{{Name: "Admin", Value: "admin"}, {Name: "Guest", Value: "guest"}}})

	a := &bridgegen.Analysis{
		Services: []ir.ServiceDescriptor{{
			Name:     "Users",
			TypeName: "UserService",
			Methods: []ir.MethodDescriptor{
				{Name: "Get", Parameters: []ir.ParamDescriptor{{Name: "id", Type: ir.String()}}, ReturnType: ir.Nullable(user)},
				{Name: "Watch", ReturnType: role, IsAsync: true},
				{Name: "Tag", Parameters: []ir.ParamDescriptor{{Name: "ids", Type: ir.Sequence(ir.String()), Variadic: true}}, ReturnType: ir.Void()},
			},
		}},
		Events:   []ir.EventDescriptor{{WireName: "user-created", PayloadType: user}},
		Models:   models,
		Warnings: []ir.Warning{{Code: "UNSUPPORTED_SIGNATURE", Message: "Users.Stream returns chan<- int"}},
	}

	var buf bytes.Buffer
	Print(&buf, a)
	got := buf.String()

	for _, want := range []string{
		"service Users (UserService)\n",
		"  Users.Get(id: string): User | null\n",
		"  Users.Watch(): Role [async]\n",
		"  Users.Tag(...ids: string[]): void\n",
		`event "user-created": User` + "\n",
		"enum example.com/app.Role (2 values)\n",
		"record example.com/app.User extends example.com/app.Entity (1 properties)\n",
		"warning UNSUPPORTED_SIGNATURE: Users.Stream returns chan<- int\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
}

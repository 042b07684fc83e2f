package reflection

import (
	"context"
	"database/sql"
	"encoding/json"
	"iter"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/broady/bridge/bridgegen/ir"
)

type base struct {
	ID string `json:"id"`
}

type user struct {
	base
	Name    string            `json:"name"`
	Email   *string           `json:"email"`
	Friends []*user           `json:"friends" bridge:"nullable"`
	Labels  map[string]string `json:"labels,omitempty"`
	Secret  string            `json:"-"`
	hidden  int
}

type page[T any] struct {
	Items []T `json:"items"`
}

const self = "github.com/broady/bridge/bridgegen/provider/reflection"

func TestConvert(t *testing.T) {
	p := New(self)

	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"string", reflect.TypeFor[string](), "String"},
		{"int32", reflect.TypeFor[int32](), "Int32"},
		{"uint", reflect.TypeFor[uint](), "Uint"},
		{"float64", reflect.TypeFor[float64](), "Float64"},
		{"bytes", reflect.TypeFor[[]byte](), "[]Byte"},
		{"time", reflect.TypeFor[time.Time](), "DateTimeOffset"},
		{"duration", reflect.TypeFor[time.Duration](), "Duration"},
		{"uuid", reflect.TypeFor[uuid.UUID](), "UUID"},
		{"json number", reflect.TypeFor[json.Number](), "Decimal"},
		{"raw message", reflect.TypeFor[json.RawMessage](), "Any"},
		{"any", reflect.TypeFor[any](), "Any"},
		{"pointer to int", reflect.TypeFor[*int](), "*Int"},
		{"null string", reflect.TypeFor[sql.NullString](), "*String"},
		{"generic null", reflect.TypeFor[sql.Null[int64]](), "*Int64"},
		{"array", reflect.TypeFor[[3]int](), "[3]Int"},
		{"map", reflect.TypeFor[map[string]bool](), "map[String]Bool"},
		{"recv chan", reflect.TypeFor[<-chan int](), "Future[Int]"},
		{"void chan", reflect.TypeFor[<-chan struct{}](), "Future[void]"},
		{"seq", reflect.TypeFor[iter.Seq[string]](), "iter.Seq[String]"},
		{"empty struct", reflect.TypeFor[struct{}](), "void"},
		{"record", reflect.TypeFor[user](), self + ".user"},
		{"generic record", reflect.TypeFor[page[user]](), self + ".page_user"},
		{"pointer to record", reflect.TypeFor[*user](), self + ".user"},
		{"func", reflect.TypeFor[func()](), "func()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Convert(tt.typ).String(); got != tt.want {
				t.Errorf("Convert(%s) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestConvert_Record(t *testing.T) {
	d := New(self).Convert(reflect.TypeFor[user]()).(*ir.NamedDescriptor)

	if d.Builtin {
		t.Fatal("owned record marked builtin")
	}
	if len(d.Embeds) != 1 || d.Embeds[0].String() != self+".base" {
		t.Errorf("Embeds = %v", d.Embeds)
	}

	byName := make(map[string]ir.FieldDescriptor)
	for _, f := range d.Fields {
		byName[f.Name] = f
	}
	if _, ok := byName["hidden"]; ok {
		t.Error("unexported field converted")
	}
	if f := byName["Friends"]; !f.Nullable || !f.Reference {
		t.Errorf("Friends = %+v", f)
	}
	if f := byName["Secret"]; !f.Ignored {
		t.Errorf("Secret = %+v", f)
	}
	if f := byName["Labels"]; f.JSONName != "labels" {
		t.Errorf("Labels JSONName = %q", f.JSONName)
	}

	// Recursive references resolve to the same descriptor.
	friends := byName["Friends"].Type.(*ir.SequenceDescriptor)
	if friends.Element != ir.TypeDescriptor(d) {
		t.Error("recursive record not memoised")
	}
}

func TestConvert_NotOwned(t *testing.T) {
	d := New().Convert(reflect.TypeFor[user]()).(*ir.NamedDescriptor)
	if !d.Builtin || len(d.Fields) != 0 {
		t.Errorf("unowned record = %+v", d)
	}
}

func TestSyntheticName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"User", "User"},
		{"Page[example.com/api.User]", "Page_User"},
		{"Pair[string,int]", "Pair_string_int"},
		{"Page[example.com/api.Box[example.com/api.User]]", "Page_Box_User"},
		{"Page[[]example.com/api.User]", "Page_UserList"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := syntheticName(tt.in); got != tt.want {
				t.Errorf("syntheticName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type svc struct{}

func (svc) Add(ctx context.Context, a, b int) (int, error) { return a + b, nil }
func (svc) Ping()                                          {}
func (svc) Bad() (int, int)                                { return 0, 0 }
func (svc) Later() <-chan string                           { return nil }
func (svc) Sum(label string, n ...int) string              { return label }

func TestMethod(t *testing.T) {
	p := New(self)
	typ := reflect.TypeFor[svc]()

	fn := func(name string) reflect.Type {
		m, ok := typ.MethodByName(name)
		if !ok {
			t.Fatalf("no method %s", name)
		}
		// Drop the receiver.
		in := make([]reflect.Type, 0, m.Type.NumIn()-1)
		for i := 1; i < m.Type.NumIn(); i++ {
			in = append(in, m.Type.In(i))
		}
		out := make([]reflect.Type, 0, m.Type.NumOut())
		for i := 0; i < m.Type.NumOut(); i++ {
			out = append(out, m.Type.Out(i))
		}
		return reflect.FuncOf(in, out, m.Type.IsVariadic())
	}

	add, ok := p.Method("Add", fn("Add"), nil)
	if !ok {
		t.Fatal("Add rejected")
	}
	if len(add.Parameters) != 2 || add.Parameters[0].Name != "arg0" || add.Parameters[1].Name != "arg1" {
		t.Errorf("Add params = %+v", add.Parameters)
	}
	if add.ReturnType.String() != "Int" || add.IsAsync {
		t.Errorf("Add returns %s async=%v", add.ReturnType, add.IsAsync)
	}

	ping, _ := p.Method("Ping", fn("Ping"), nil)
	if ping.ReturnType.Kind() != ir.KindVoid {
		t.Errorf("Ping returns %s", ping.ReturnType)
	}

	later, _ := p.Method("Later", fn("Later"), nil)
	if !later.IsAsync || later.ReturnType.String() != "String" {
		t.Errorf("Later = %+v", later)
	}

	sum, _ := p.Method("Sum", fn("Sum"), nil)
	if len(sum.Parameters) != 2 || sum.Parameters[0].Variadic || !sum.Parameters[1].Variadic {
		t.Errorf("Sum params = %+v", sum.Parameters)
	}
	if add.Parameters[1].Variadic {
		t.Error("Add marked variadic")
	}

	if _, ok := p.Method("Bad", fn("Bad"), nil); ok {
		t.Error("Bad accepted")
	}
}

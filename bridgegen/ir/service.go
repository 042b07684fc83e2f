package ir

// ServiceDescriptor is a discovered service.
type ServiceDescriptor struct {
	// Name is the resolved service name: the directive's explicit name, or the
	// declaring type's simple name.
	Name string

	// TypeName is the declaring Go type's name.
	TypeName string

	Methods []MethodDescriptor

	// Ignored lists the exported methods excluded with //bridge:ignore.
	Ignored []string

	Doc string
}

// MethodDescriptor is one callable method.
type MethodDescriptor struct {
	Name string

	// Parameters excludes injected parameters (context.Context and
	// *bridge.CallContext).
	Parameters []ParamDescriptor

	// ReturnType is the unwrapped result type; Void when there is none.
	ReturnType TypeDescriptor

	// IsAsync records whether ReturnType was unwrapped from an asynchronous
	// wrapper.
	IsAsync bool

	Doc string
}

// QualifiedName returns the wire method identifier "Service.Method".
func (m MethodDescriptor) QualifiedName(service string) string {
	return service + "." + m.Name
}

// ParamDescriptor is a positional parameter.
type ParamDescriptor struct {
	Name string
	Type TypeDescriptor

	// Variadic marks a trailing ...T parameter. Type is then the sequence
	// of T, and callers pass the elements as separate arguments.
	Variadic bool
}

// EventDescriptor is an event the host may push.
type EventDescriptor struct {
	WireName    string
	PayloadType TypeDescriptor
}

// Warning is a non-fatal issue found while discovering or collecting.
type Warning struct {
	// Code is a machine-readable identifier such as "UNSUPPORTED_SIGNATURE".
	Code string

	Message string

	// TypeName is the type that triggered the warning, if any.
	TypeName string
}

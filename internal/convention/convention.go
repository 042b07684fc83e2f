// Package convention holds the naming conventions shared by the build-time
// generator and the run-time bridge, so both sides agree on which methods are
// callable and how annotations are spelled.
package convention

import "strings"

// Module is the import path of the bridge runtime package. Discovery uses it to
// recognise the injected and asynchronous types by identity.
const Module = "github.com/broady/bridge"

// Well-known type names in the runtime package.
const (
	CallContextType = "CallContext"
	FutureType      = "Future"
)

// DirectivePrefix starts every doc-comment directive.
const DirectivePrefix = "//bridge:"

// Directive names.
const (
	DirectiveService  = "service"
	DirectiveEvent    = "event"
	DirectiveIgnore   = "ignore"
	DirectiveNullable = "nullable"
)

// TagName is the struct tag key read for property annotations.
const TagName = "bridge"

// Values of the bridge struct tag.
const (
	TagIgnore   = "-"
	TagNullable = "nullable"
	TagNonNull  = "nonnull"
)

// hookMethods are methods Go code defines to satisfy standard library
// interfaces. They are never part of a service's callable surface.
var hookMethods = map[string]bool{
	"String":          true,
	"GoString":        true,
	"Error":           true,
	"Format":          true,
	"MarshalJSON":     true,
	"UnmarshalJSON":   true,
	"MarshalText":     true,
	"UnmarshalText":   true,
	"MarshalBinary":   true,
	"UnmarshalBinary": true,
}

// IsHookMethod reports whether name is a standard interface hook method.
func IsHookMethod(name string) bool {
	return hookMethods[name]
}

// ParseTag splits a bridge struct tag into its comma separated options.
func ParseTag(tag string) map[string]bool {
	opts := make(map[string]bool)
	for _, part := range strings.Split(tag, ",") {
		if part = strings.TrimSpace(part); part != "" {
			opts[part] = true
		}
	}
	return opts
}

// ParseDirective parses a single comment line. It returns the directive name
// and its arguments, or ok == false if the line is not a bridge directive.
func ParseDirective(line string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(line, DirectivePrefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, DirectivePrefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// JSONName returns the name from a json struct tag and whether the field is
// excluded with json:"-".
func JSONName(tag string) (name string, skip bool) {
	if tag == "" {
		return "", false
	}
	name, _, _ = strings.Cut(tag, ",")
	if name == "-" && !strings.Contains(tag, ",") {
		return "", true
	}
	return name, false
}

package typescript

import (
	"strconv"
	"strings"
	"unicode"
)

// TypeScript reserved words from Appendix B.
var reservedWords = map[string]bool{
	"break":      true,
	"case":       true,
	"catch":      true,
	"class":      true,
	"const":      true,
	"continue":   true,
	"debugger":   true,
	"default":    true,
	"delete":     true,
	"do":         true,
	"else":       true,
	"enum":       true,
	"export":     true,
	"extends":    true,
	"false":      true,
	"finally":    true,
	"for":        true,
	"function":   true,
	"if":         true,
	"implements": true,
	"import":     true,
	"in":         true,
	"instanceof": true,
	"interface":  true,
	"let":        true,
	"new":        true,
	"null":       true,
	"package":    true,
	"private":    true,
	"protected":  true,
	"public":     true,
	"return":     true,
	"static":     true,
	"super":      true,
	"switch":     true,
	"this":       true,
	"throw":      true,
	"true":       true,
	"try":        true,
	"type":       true,
	"typeof":     true,
	"var":        true,
	"void":       true,
	"while":      true,
	"with":       true,
	"yield":      true,
}

// escapeReservedWord appends an underscore to reserved words.
func escapeReservedWord(name string) string {
	if reservedWords[name] {
		return name + "_"
	}
	return name
}

// propertyKey returns name as an object key, quoted when it is not a valid
// identifier.
func propertyKey(name string) string {
	if isIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

func isIdentifier(name string) bool {
	if name == "" || unicode.IsDigit(rune(name[0])) {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			return false
		}
	}
	return true
}

// sanitizeIdentifier makes name usable as a binding identifier.
func sanitizeIdentifier(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	if unicode.IsDigit(rune(name[0])) {
		b.WriteRune('_')
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return escapeReservedWord(b.String())
}

// EventIdentifier converts an event wire name to the suffix of its helper
// functions: separators are dropped, the character after each separator is
// upper-cased and so is the first character. "user-created" becomes
// "UserCreated".
func EventIdentifier(wireName string) string {
	var b strings.Builder
	upper := true
	for _, r := range wireName {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Package dupes declares two types resolving to the same service name.
package dupes

// First is declared first.
//
//bridge:service Greeter
type First struct{}

// Hello greets.
func (*First) Hello() string { return "first" }

// Second wins.
//
//bridge:service Greeter
type Second struct{}

// Hi greets.
func (*Second) Hi() string { return "second" }

// Package basic declares the smallest useful service.
package basic

// Basic does arithmetic.
//
//bridge:service
type Basic struct{}

// Add returns the sum of a and b.
func (*Basic) Add(a, b int) int { return a + b }

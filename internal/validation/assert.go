// Package validation provides fail-fast helpers for constructor contracts.
// A missing dependency panics at wiring time.
package validation

import "fmt"

// AssertNotNil panics if the provided pointer is nil.
//
// Usage:
//
//	validation.AssertNotNil(store, "rule store")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertNotEmpty panics if value is the empty string.
func AssertNotEmpty(value, name string) {
	if value == "" {
		panic(fmt.Sprintf("critical error: %s cannot be empty", name))
	}
}

package ruleengine

import (
	"errors"
	"fmt"
)

// Sentinel errors for ruleset loading. Match them with errors.Is.
var (
	// ErrNotFound indicates the ruleset source does not exist.
	ErrNotFound = errors.New("ruleset not found")

	// ErrParse indicates the ruleset is not valid JSON.
	ErrParse = errors.New("ruleset is malformed")

	// ErrSchema indicates a required field is missing or has the wrong shape.
	ErrSchema = errors.New("ruleset is invalid")
)

// NotFoundError reports a missing ruleset source.
type NotFoundError struct {
	Source string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rules file not found: %s", e.Source)
}

// Is makes errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ParseError wraps the underlying JSON decoding failure.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse rules JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrParse) succeed.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// SchemaError reports a structurally invalid ruleset.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid rules JSON: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid rules JSON: %s", e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSchema) succeed.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

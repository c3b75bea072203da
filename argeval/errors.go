package argeval

import (
	"fmt"
)

// ConfigurationError reports a malformed option table.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid option table: " + e.Reason
}

// UnrecognizedOptionError is raised for an option-looking token that matches no entry.
type UnrecognizedOptionError struct {
	Token string
}

func (e *UnrecognizedOptionError) Error() string {
	return fmt.Sprintf("unrecognized option '%s'", e.Token)
}

// MissingValueError is raised when the argument vector ends before an option got all
// of its values.
type MissingValueError struct {
	Option string
	Want   int
	Got    int
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("option '%s' expects %d value(s) but got %d", e.Option, e.Want, e.Got)
}

// TypeMismatchError is raised when a value cannot be converted to the option's kind.
type TypeMismatchError struct {
	Option string
	Token  string
	Kind   ValueKind
	Err    error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("option '%s': '%s' is not a valid %s", e.Option, e.Token, e.Kind)
}

// Unwrap returns the conversion error.
func (e *TypeMismatchError) Unwrap() error {
	return e.Err
}

// UnexpectedArgumentError is raised for a non-option token when no extra argument
// handler is registered.
type UnexpectedArgumentError struct {
	Token string
}

func (e *UnexpectedArgumentError) Error() string {
	return fmt.Sprintf("unexpected argument '%s'", e.Token)
}

// CallbackFailureError reports a handler that returned a non-zero code. It is only
// raised when the parser aborts on callback failures.
type CallbackFailureError struct {
	Option string
	Code   int
}

func (e *CallbackFailureError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("extra argument handler failed with code %d", e.Code)
	}
	return fmt.Sprintf("option '%s' handler failed with code %d", e.Option, e.Code)
}

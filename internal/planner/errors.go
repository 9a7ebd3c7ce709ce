package planner

import (
	"errors"
	"fmt"
	"strings"
)

// Messages reported for malformed aggregate groups.
const (
	MsgGroupNeedsField  = "At least one field is required for aggregate group"
	MsgGroupNeedsCount  = "Missing aggregate count for group"
	MsgGroupSingleCount = "Only one count is allowed for aggregate group"
)

// ValidationError reports a request the schema accepted but the compiler
// cannot evaluate: unknown fields, operator and kind mismatches, malformed
// aggregate groups, exceeded limits.
type ValidationError struct {
	Message string
	Path    []string
	Value   any
}

func (e *ValidationError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, strings.Join(e.Path, "."))
}

// Extensions exposes structured detail to GraphQL error responses.
func (e *ValidationError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": "VALIDATION_ERROR"}
	if len(e.Path) > 0 {
		ext["path"] = strings.Join(e.Path, ".")
	}
	if e.Value != nil {
		ext["value"] = fmt.Sprintf("%v", e.Value)
	}
	return ext
}

func validationErr(path []string, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Path: append([]string(nil), path...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ExecutionError wraps a driver failure while running a compiled statement.
type ExecutionError struct {
	Cause error
	// Code is the driver error number when known.
	Code uint16
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Extensions exposes structured detail to GraphQL error responses.
func (e *ExecutionError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": "EXECUTION_ERROR"}
	if e.Code != 0 {
		ext["mysql_code"] = e.Code
	}
	return ext
}

// AuthorizationError reports a statement rejected for lack of privileges.
type AuthorizationError struct {
	Message string
	Cause   error
}

func (e *AuthorizationError) Error() string { return e.Message }

func (e *AuthorizationError) Unwrap() error { return e.Cause }

// Extensions exposes structured detail to GraphQL error responses.
func (e *AuthorizationError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": "FORBIDDEN"}
}

package scalars

import (
	"fmt"
	"strings"

	"entitygraph/internal/sqltype"
)

// CoercionError reports a value that could not be converted to or from a scalar kind.
type CoercionError struct {
	Kind   sqltype.Kind
	Value  any
	Reason string
	// Path locates the operand in the request when the error comes from a
	// filter argument.
	Path []string
}

func (e *CoercionError) Error() string {
	msg := fmt.Sprintf("cannot coerce %v (%T) to %s", e.Value, e.Value, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Path) > 0 {
		msg += fmt.Sprintf(" (at %s)", strings.Join(e.Path, "."))
	}
	return msg
}

// Extensions exposes structured detail to GraphQL error responses.
func (e *CoercionError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code":  "COERCION_ERROR",
		"type":  e.Kind.String(),
		"value": fmt.Sprintf("%v", e.Value),
	}
	if len(e.Path) > 0 {
		ext["path"] = strings.Join(e.Path, ".")
	}
	return ext
}

// At returns a copy of e located at path.
func (e *CoercionError) At(path []string) *CoercionError {
	out := *e
	out.Path = append([]string(nil), path...)
	return &out
}

func coercionErr(kind sqltype.Kind, value any, reason string) error {
	return &CoercionError{Kind: kind, Value: value, Reason: reason}
}

// Package scalars converts field values between their storage, internal and
// wire forms. A Registry is built once and shared read-only.
package scalars

import (
	"encoding/json"

	"entitygraph/internal/sqltype"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// Registry holds the coercions for every scalar kind.
// Kinds without an entry fall back to identity coercion.
type Registry struct {
	coercers map[sqltype.Kind]coercer
	types    map[sqltype.Kind]*graphql.Scalar
}

// NewRegistry returns a registry with the built-in coercions.
func NewRegistry() *Registry {
	r := &Registry{coercers: builtinCoercers()}
	r.types = map[sqltype.Kind]*graphql.Scalar{
		sqltype.String:  graphql.String,
		sqltype.Int:     graphql.Int,
		sqltype.Float:   graphql.Float,
		sqltype.Boolean: graphql.Boolean,
	}
	for _, kind := range sqltype.All {
		if _, ok := r.types[kind]; ok {
			continue
		}
		r.types[kind] = r.newScalar(kind)
	}
	return r
}

func (r *Registry) lookup(kind sqltype.Kind) coercer {
	if c, ok := r.coercers[kind]; ok {
		return c
	}
	return r.coercers[sqltype.Object]
}

// Serialize converts an internal or storage value to its wire form.
func (r *Registry) Serialize(kind sqltype.Kind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return r.lookup(kind).serialize(value)
}

// ParseValue converts a wire value to the internal form.
// Values already in internal form are returned unchanged.
func (r *Registry) ParseValue(kind sqltype.Kind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return r.lookup(kind).parse(value)
}

// ParseLiteral converts an inline query literal to the internal form.
func (r *Registry) ParseLiteral(kind sqltype.Kind, valueAST ast.Value) (any, error) {
	raw, ok := literalValue(valueAST)
	if !ok {
		return nil, coercionErr(kind, valueAST, "unsupported literal")
	}
	if kind == sqltype.Object {
		return raw, nil
	}
	return r.ParseValue(kind, raw)
}

// Bind parses a filter value and returns the form passed to the driver as a
// bound parameter.
func (r *Registry) Bind(kind sqltype.Kind, value any) (any, error) {
	parsed, err := r.ParseValue(kind, value)
	if err != nil || parsed == nil {
		return parsed, err
	}
	return r.lookup(kind).toSQL(parsed), nil
}

// GraphQLType returns the schema scalar for a kind.
func (r *Registry) GraphQLType(kind sqltype.Kind) *graphql.Scalar {
	if t, ok := r.types[kind]; ok {
		return t
	}
	return r.types[sqltype.Object]
}

var scalarDescriptions = map[sqltype.Kind]string{
	sqltype.Long:          "64-bit signed integer.",
	sqltype.BigDecimal:    "Arbitrary precision decimal serialized as a string.",
	sqltype.BigInteger:    "Arbitrary precision integer serialized as a string.",
	sqltype.LocalDate:     "Calendar date serialized as YYYY-MM-DD.",
	sqltype.LocalTime:     "Time of day serialized as HH:MM:SS with optional fraction.",
	sqltype.LocalDateTime: "Date and time without zone serialized as YYYY-MM-DDTHH:MM:SS.",
	sqltype.DateTime:      "Instant serialized as RFC 3339 in UTC.",
	sqltype.UUID:          "RFC 4122 UUID.",
	sqltype.Bytes:         "Binary data serialized as base64.",
	sqltype.Object:        "Arbitrary value passed through unchanged.",
}

// newScalar wraps registry coercions in a graphql scalar. graphql-go rejects
// an argument whose parse result is nil before any resolver runs, so input
// that fails coercion is passed through unchanged and the compiler reports
// the typed CoercionError when it binds the operand.
func (r *Registry) newScalar(kind sqltype.Kind) *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        kind.String(),
		Description: scalarDescriptions[kind],
		Serialize: func(value interface{}) interface{} {
			out, err := r.Serialize(kind, value)
			if err != nil {
				return nil
			}
			return out
		},
		ParseValue: func(value interface{}) interface{} {
			out, err := r.ParseValue(kind, value)
			if err != nil {
				return value
			}
			return out
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			out, err := r.ParseLiteral(kind, valueAST)
			if err == nil {
				return out
			}
			raw, _ := literalValue(valueAST)
			return raw
		},
	})
}

// literalValue lowers an AST literal to a plain Go value. Numeric literals keep
// their source text as json.Number so precision survives until the kind parses it.
func literalValue(valueAST ast.Value) (any, bool) {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value, true
	case *ast.IntValue:
		return json.Number(v.Value), true
	case *ast.FloatValue:
		return json.Number(v.Value), true
	case *ast.BooleanValue:
		return v.Value, true
	case *ast.EnumValue:
		return v.Value, true
	case *ast.ListValue:
		out := make([]any, 0, len(v.Values))
		for _, item := range v.Values {
			lowered, ok := literalValue(item)
			if !ok {
				return nil, false
			}
			out = append(out, lowered)
		}
		return out, true
	case *ast.ObjectValue:
		out := make(map[string]any, len(v.Fields))
		for _, field := range v.Fields {
			lowered, ok := literalValue(field.Value)
			if !ok {
				return nil, false
			}
			out[field.Name.Value] = lowered
		}
		return out, true
	default:
		return nil, false
	}
}

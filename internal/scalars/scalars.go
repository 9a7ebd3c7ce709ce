package scalars

import (
	"math"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// NonNegativeInt is used for page limits.
func NonNegativeInt() *graphql.Scalar {
	return boundedInt("NonNegativeInt", "An integer greater than or equal to zero.", 0)
}

// PositiveInt is used for 1-based page starts.
func PositiveInt() *graphql.Scalar {
	return boundedInt("PositiveInt", "An integer greater than or equal to one.", 1)
}

func boundedInt(name, description string, min int) *graphql.Scalar {
	coerce := func(value interface{}) interface{} {
		if parsed, ok := coerceIntAtLeast(value, min); ok {
			return parsed
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize:   coerce,
		ParseValue:  coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			intValue, ok := valueAST.(*ast.IntValue)
			if !ok {
				return nil
			}
			parsed, err := strconv.Atoi(intValue.Value)
			if err != nil || parsed < min {
				return nil
			}
			return parsed
		},
	})
}

func coerceIntAtLeast(value interface{}, min int) (int, bool) {
	switch v := value.(type) {
	case int:
		if v < min {
			return 0, false
		}
		return v, true
	case int32:
		if int(v) < min {
			return 0, false
		}
		return int(v), true
	case int64:
		if v < int64(min) || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || v < float64(min) || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < min {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

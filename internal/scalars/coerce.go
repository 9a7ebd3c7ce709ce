package scalars

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"entitygraph/internal/sqltype"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	localDateLayout     = "2006-01-02"
	localTimeLayout     = "15:04:05.999999999"
	localDateTimeLayout = "2006-01-02T15:04:05.999999999"
	sqlDateTimeLayout   = "2006-01-02 15:04:05.999999999"
)

// coercer holds the conversions for one scalar kind. parse maps an external
// value to the internal representation and must accept internal values
// unchanged; serialize maps internal or storage values to the wire form.
type coercer struct {
	serialize func(any) (any, error)
	parse     func(any) (any, error)
	toSQL     func(any) any
}

func identity(v any) (any, error) { return v, nil }
func sqlIdentity(v any) any        { return v }

func builtinCoercers() map[sqltype.Kind]coercer {
	return map[sqltype.Kind]coercer{
		sqltype.Object: {
			serialize: func(v any) (any, error) {
				if b, ok := v.([]byte); ok {
					return string(b), nil
				}
				return v, nil
			},
			parse: identity,
			toSQL: func(v any) any {
				switch v.(type) {
				case map[string]any, []any:
					encoded, err := json.Marshal(v)
					if err != nil {
						return v
					}
					return string(encoded)
				default:
					return v
				}
			},
		},
		sqltype.String: {
			serialize: serializeString,
			parse:     parseString,
			toSQL:     sqlIdentity,
		},
		sqltype.Int: {
			serialize: func(v any) (any, error) { return parseInt32(v) },
			parse:     parseInt32,
			toSQL:     sqlIdentity,
		},
		sqltype.Long: {
			serialize: func(v any) (any, error) { return parseInt64(sqltype.Long, v) },
			parse:     func(v any) (any, error) { return parseInt64(sqltype.Long, v) },
			toSQL:     sqlIdentity,
		},
		sqltype.Float: {
			serialize: parseFloat,
			parse:     parseFloat,
			toSQL:     sqlIdentity,
		},
		sqltype.BigDecimal: {
			serialize: func(v any) (any, error) {
				parsed, err := parseDecimal(v)
				if err != nil {
					return nil, err
				}
				return decimalString(parsed.(decimal.Decimal)), nil
			},
			parse: parseDecimal,
			toSQL: func(v any) any {
				if d, ok := v.(decimal.Decimal); ok {
					return decimalString(d)
				}
				return v
			},
		},
		sqltype.BigInteger: {
			serialize: func(v any) (any, error) {
				parsed, err := parseBigInteger(v)
				if err != nil {
					return nil, err
				}
				return parsed.(*big.Int).String(), nil
			},
			parse: parseBigInteger,
			toSQL: func(v any) any {
				if b, ok := v.(*big.Int); ok {
					return b.String()
				}
				return v
			},
		},
		sqltype.Boolean: {
			serialize: serializeBoolean,
			parse:     parseBoolean,
			toSQL:     sqlIdentity,
		},
		sqltype.LocalDate: {
			serialize: formatWith(sqltype.LocalDate, parseLocalDate, localDateLayout),
			parse:     parseLocalDate,
			toSQL:     sqlFormat(localDateLayout),
		},
		sqltype.LocalTime: {
			serialize: formatWith(sqltype.LocalTime, parseLocalTime, localTimeLayout),
			parse:     parseLocalTime,
			toSQL:     sqlFormat(localTimeLayout),
		},
		sqltype.LocalDateTime: {
			serialize: formatWith(sqltype.LocalDateTime, parseLocalDateTime, localDateTimeLayout),
			parse:     parseLocalDateTime,
			toSQL:     sqlFormat(sqlDateTimeLayout),
		},
		sqltype.DateTime: {
			serialize: formatWith(sqltype.DateTime, parseDateTime, time.RFC3339Nano),
			parse:     parseDateTime,
			toSQL:     sqlIdentity,
		},
		sqltype.UUID: {
			serialize: func(v any) (any, error) {
				parsed, err := parseUUID(v)
				if err != nil {
					return nil, err
				}
				return parsed.(uuid.UUID).String(), nil
			},
			parse: parseUUID,
			toSQL: func(v any) any {
				if u, ok := v.(uuid.UUID); ok {
					return u.String()
				}
				return v
			},
		},
		sqltype.Bytes: {
			serialize: serializeBytes,
			parse:     parseBytes,
			toSQL:     sqlIdentity,
		},
	}
}

func serializeString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprintf("%v", val), nil
	default:
		return nil, coercionErr(sqltype.String, v, "unsupported value")
	}
}

func parseString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	default:
		return nil, coercionErr(sqltype.String, v, "expected a string")
	}
}

func toInt64(kind sqltype.Kind, v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, coercionErr(kind, v, "out of range")
		}
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return 0, coercionErr(kind, v, "out of range")
		}
		return int64(val), nil
	case float32:
		return toInt64(kind, float64(val))
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, coercionErr(kind, v, "not an integral value")
		}
		return int64(val), nil
	case json.Number:
		return toInt64(kind, string(val))
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, coercionErr(kind, v, "not an integer")
		}
		return parsed, nil
	case []byte:
		return toInt64(kind, string(val))
	default:
		return 0, coercionErr(kind, v, "unsupported value")
	}
}

func parseInt32(v any) (any, error) {
	parsed, err := toInt64(sqltype.Int, v)
	if err != nil {
		return nil, err
	}
	if parsed > math.MaxInt32 || parsed < math.MinInt32 {
		return nil, coercionErr(sqltype.Int, v, "out of 32-bit range")
	}
	return int(parsed), nil
}

func parseInt64(kind sqltype.Kind, v any) (any, error) {
	parsed, err := toInt64(kind, v)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func parseFloat(v any) (any, error) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case json.Number:
		return parseFloat(string(val))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, coercionErr(sqltype.Float, v, "not a number")
		}
		f = parsed
	case []byte:
		return parseFloat(string(val))
	default:
		i, err := toInt64(sqltype.Float, v)
		if err != nil {
			return nil, err
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, coercionErr(sqltype.Float, v, "not a finite number")
	}
	return f, nil
}

func parseDecimal(v any) (any, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(val))
	case []byte:
		return parseDecimal(string(val))
	case json.Number:
		return parseDecimal(string(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, coercionErr(sqltype.BigDecimal, v, "not a finite number")
		}
		d = decimal.NewFromFloat(val)
	case float32:
		return parseDecimal(float64(val))
	case *big.Int:
		if val == nil {
			return nil, coercionErr(sqltype.BigDecimal, v, "nil integer")
		}
		d = decimal.NewFromBigInt(val, 0)
	case *big.Float:
		if val == nil || val.IsInf() {
			return nil, coercionErr(sqltype.BigDecimal, v, "not a finite number")
		}
		d, err = decimal.NewFromString(val.Text('f', -1))
	default:
		i, ierr := toInt64(sqltype.BigDecimal, v)
		if ierr != nil {
			return nil, ierr
		}
		d = decimal.NewFromInt(i)
	}
	if err != nil {
		return nil, coercionErr(sqltype.BigDecimal, v, "not a decimal")
	}
	return d, nil
}

// decimalString renders d keeping its scale, so a DECIMAL(10,2) value of
// 10.50 stays "10.50".
func decimalString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func parseBigInteger(v any) (any, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, coercionErr(sqltype.BigInteger, v, "nil integer")
		}
		return val, nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case string:
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(val), 10)
		if !ok {
			return nil, coercionErr(sqltype.BigInteger, v, "not an integer")
		}
		return parsed, nil
	case []byte:
		return parseBigInteger(string(val))
	case json.Number:
		return parseBigInteger(string(val))
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return nil, coercionErr(sqltype.BigInteger, v, "not an integral value")
		}
		parsed, _ := big.NewFloat(val).Int(nil)
		return parsed, nil
	default:
		i, err := toInt64(sqltype.BigInteger, v)
		if err != nil {
			return nil, err
		}
		return big.NewInt(i), nil
	}
}

func parseBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return nil, coercionErr(sqltype.Boolean, v, "not a boolean")
		}
		return parsed, nil
	default:
		return nil, coercionErr(sqltype.Boolean, v, "expected a boolean")
	}
}

// serializeBoolean also accepts the integer and byte forms drivers return for BIT/TINYINT(1).
func serializeBoolean(v any) (any, error) {
	switch val := v.(type) {
	case []byte:
		if len(val) == 1 && (val[0] == 0 || val[0] == 1) {
			return val[0] == 1, nil
		}
		return parseBoolean(string(val))
	case bool, string:
		return parseBoolean(val)
	default:
		i, err := toInt64(sqltype.Boolean, v)
		if err != nil {
			return nil, err
		}
		return i != 0, nil
	}
}

func parseTimeText(kind sqltype.Kind, v any, layouts ...string) (time.Time, error) {
	var text string
	switch val := v.(type) {
	case string:
		text = strings.TrimSpace(val)
	case []byte:
		text = strings.TrimSpace(string(val))
	default:
		return time.Time{}, coercionErr(kind, v, "unsupported value")
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, coercionErr(kind, v, "unrecognized format")
}

func parseLocalDate(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		parsed, err := parseTimeText(sqltype.LocalDate, v, localDateLayout, sqlDateTimeLayout, time.RFC3339Nano)
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseLocalTime(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		parsed, err := parseTimeText(sqltype.LocalTime, v, localTimeLayout, "15:04")
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	return time.Date(0, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func parseLocalDateTime(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		parsed, err := parseTimeText(sqltype.LocalDateTime, v, localDateTimeLayout, sqlDateTimeLayout, localDateLayout)
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func parseDateTime(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		parsed, err := parseTimeText(sqltype.DateTime, v, time.RFC3339Nano, sqlDateTimeLayout)
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	return t.UTC(), nil
}

func formatWith(kind sqltype.Kind, parse func(any) (any, error), layout string) func(any) (any, error) {
	return func(v any) (any, error) {
		parsed, err := parse(v)
		if err != nil {
			return nil, err
		}
		t, ok := parsed.(time.Time)
		if !ok {
			return nil, coercionErr(kind, v, "unsupported value")
		}
		return t.Format(layout), nil
	}
}

func sqlFormat(layout string) func(any) any {
	return func(v any) any {
		if t, ok := v.(time.Time); ok {
			return t.Format(layout)
		}
		return v
	}
}

func parseUUID(v any) (any, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case string:
		parsed, err := uuid.Parse(val)
		if err != nil {
			return nil, coercionErr(sqltype.UUID, v, err.Error())
		}
		return parsed, nil
	case []byte:
		if len(val) == 16 {
			parsed, err := uuid.FromBytes(val)
			if err != nil {
				return nil, coercionErr(sqltype.UUID, v, err.Error())
			}
			return parsed, nil
		}
		parsed, err := uuid.ParseBytes(val)
		if err != nil {
			return nil, coercionErr(sqltype.UUID, v, err.Error())
		}
		return parsed, nil
	default:
		return nil, coercionErr(sqltype.UUID, v, "unsupported value")
	}
}

func parseBytes(v any) (any, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return nil, coercionErr(sqltype.Bytes, v, "invalid base64")
		}
		return decoded, nil
	default:
		return nil, coercionErr(sqltype.Bytes, v, "expected base64 string")
	}
}

// serializeBytes treats strings as already encoded so that re-serializing is a no-op.
func serializeBytes(v any) (any, error) {
	switch val := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(val), nil
	case string:
		if _, err := base64.StdEncoding.DecodeString(val); err != nil {
			return nil, coercionErr(sqltype.Bytes, v, "invalid base64")
		}
		return val, nil
	default:
		return nil, coercionErr(sqltype.Bytes, v, "unsupported value")
	}
}

// Package sqltype defines the scalar kinds of the entity model and maps SQL
// data types onto them. Every scalar field carries exactly one Kind, and the
// compiler and coercion registry switch over it exhaustively.
package sqltype

import "strings"

// Kind is the scalar type tag of a field.
type Kind int

const (
	// Object is the fallback kind for values with no dedicated coercion.
	Object Kind = iota
	String
	Int
	Long
	Float
	BigDecimal
	BigInteger
	Boolean
	LocalDate
	LocalTime
	LocalDateTime
	DateTime
	UUID
	Bytes
)

// All lists every kind in declaration order.
var All = []Kind{
	Object, String, Int, Long, Float, BigDecimal, BigInteger, Boolean,
	LocalDate, LocalTime, LocalDateTime, DateTime, UUID, Bytes,
}

// FromSQLType converts a SQL data type string to its scalar kind.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching,
// so both INFORMATION_SCHEMA DATA_TYPE and COLUMN_TYPE values are accepted.
func FromSQLType(sqlType string) Kind {
	raw := strings.ToLower(strings.TrimSpace(sqlType))
	unsigned := strings.Contains(raw, "unsigned")
	if idx := strings.IndexAny(raw, "( "); idx != -1 {
		raw = raw[:idx]
	}
	switch raw {
	case "tinyint", "smallint", "mediumint", "int", "integer", "year":
		if unsigned && raw == "int" {
			return Long
		}
		return Int
	case "bigint", "serial":
		if unsigned {
			return BigInteger
		}
		return Long
	case "bit", "bool", "boolean":
		return Boolean
	case "float", "double", "real":
		return Float
	case "decimal", "numeric":
		return BigDecimal
	case "date":
		return LocalDate
	case "time":
		return LocalTime
	case "datetime":
		return LocalDateTime
	case "timestamp":
		return DateTime
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext", "enum", "set", "clob":
		return String
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return Bytes
	case "uuid":
		return UUID
	case "json":
		return Object
	default:
		return Object
	}
}

// ParseKind resolves a kind by its GraphQL name, as written in model files.
func ParseKind(name string) (Kind, bool) {
	for _, k := range All {
		if strings.EqualFold(k.String(), name) {
			return k, true
		}
	}
	return Object, false
}

// String returns the GraphQL scalar type name for schema generation.
func (k Kind) String() string {
	switch k {
	case String:
		return "String"
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Float:
		return "Float"
	case BigDecimal:
		return "BigDecimal"
	case BigInteger:
		return "BigInteger"
	case Boolean:
		return "Boolean"
	case LocalDate:
		return "LocalDate"
	case LocalTime:
		return "LocalTime"
	case LocalDateTime:
		return "LocalDateTime"
	case DateTime:
		return "DateTime"
	case UUID:
		return "UUID"
	case Bytes:
		return "Bytes"
	case Object:
		return "Object"
	default:
		return "Object"
	}
}

// Ordered reports whether values of the kind have a total order usable by
// GT/GE/LT/LE and BETWEEN.
func (k Kind) Ordered() bool {
	switch k {
	case Int, Long, Float, BigDecimal, BigInteger, LocalDate, LocalTime, LocalDateTime, DateTime:
		return true
	case String, Boolean, UUID, Bytes, Object:
		return false
	default:
		return false
	}
}

// Textual reports whether LIKE and LOCATE apply to the kind.
func (k Kind) Textual() bool {
	switch k {
	case String:
		return true
	case Int, Long, Float, BigDecimal, BigInteger, Boolean, LocalDate, LocalTime, LocalDateTime, DateTime, UUID, Bytes, Object:
		return false
	default:
		return false
	}
}

// Filterable reports whether the kind gets a criteria input in where types.
func (k Kind) Filterable() bool {
	return k != Object
}

// CriteriaTypeName returns the name of the shared where-criteria input for the kind.
func (k Kind) CriteriaTypeName() string {
	return k.String() + "Criteria"
}

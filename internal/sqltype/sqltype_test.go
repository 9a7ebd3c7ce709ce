package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromSQLType_IntegerTypes(t *testing.T) {
	intTypes := []string{
		"TINYINT", "tinyint",
		"SMALLINT", "smallint",
		"MEDIUMINT", "mediumint",
		"INT", "int", "int(11)",
		"INTEGER", "integer",
	}

	for _, sqlType := range intTypes {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, Int, FromSQLType(sqlType))
			assert.Equal(t, "Int", FromSQLType(sqlType).String())
			assert.Equal(t, "IntCriteria", FromSQLType(sqlType).CriteriaTypeName())
		})
	}
}

func TestFromSQLType_WideIntegers(t *testing.T) {
	assert.Equal(t, Long, FromSQLType("bigint"))
	assert.Equal(t, Long, FromSQLType("bigint(20)"))
	assert.Equal(t, BigInteger, FromSQLType("bigint(20) unsigned"))
	assert.Equal(t, Long, FromSQLType("int unsigned"))
}

func TestFromSQLType_TemporalTypes(t *testing.T) {
	assert.Equal(t, LocalDate, FromSQLType("DATE"))
	assert.Equal(t, LocalTime, FromSQLType("time"))
	assert.Equal(t, LocalDateTime, FromSQLType("datetime(6)"))
	assert.Equal(t, DateTime, FromSQLType("timestamp"))
}

func TestFromSQLType_Other(t *testing.T) {
	assert.Equal(t, BigDecimal, FromSQLType("decimal(10,2)"))
	assert.Equal(t, Float, FromSQLType("double"))
	assert.Equal(t, Boolean, FromSQLType("boolean"))
	assert.Equal(t, String, FromSQLType("varchar(255)"))
	assert.Equal(t, String, FromSQLType("enum('a','b')"))
	assert.Equal(t, Bytes, FromSQLType("varbinary(16)"))
	assert.Equal(t, Object, FromSQLType("json"))
	assert.Equal(t, Object, FromSQLType("geometry"))
}

func TestKindCapabilities(t *testing.T) {
	for _, k := range All {
		name, ok := ParseKind(k.String())
		assert.True(t, ok, k.String())
		assert.Equal(t, k, name)
	}

	assert.True(t, Int.Ordered())
	assert.True(t, LocalDate.Ordered())
	assert.False(t, String.Ordered())
	assert.False(t, Boolean.Ordered())

	assert.True(t, String.Textual())
	assert.False(t, UUID.Textual())

	assert.False(t, Object.Filterable())
	assert.True(t, Bytes.Filterable())
}

func TestOperatorsFor(t *testing.T) {
	assert.Equal(t, []Operator{EQ, NE, IN, NIN, LIKE, LOCATE, IS_NULL}, OperatorsFor(String))
	assert.Equal(t, []Operator{EQ, NE, GT, GE, LT, LE, BETWEEN, NOT_BETWEEN, IN, NIN, IS_NULL}, OperatorsFor(LocalDate))
	assert.Equal(t, []Operator{EQ, NE, IN, NIN, IS_NULL}, OperatorsFor(Boolean))
	assert.Empty(t, OperatorsFor(Object))
}

func TestParseOperator(t *testing.T) {
	for _, op := range Operators {
		parsed, ok := ParseOperator(op.String())
		assert.True(t, ok)
		assert.Equal(t, op, parsed)
	}
	_, ok := ParseOperator("eq")
	assert.False(t, ok)

	assert.True(t, BETWEEN.TakesList())
	assert.True(t, NIN.TakesList())
	assert.False(t, LOCATE.TakesList())
}

package scalars

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"entitygraph/internal/sqltype"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()

	cases := []struct {
		kind  sqltype.Kind
		value any
	}{
		{sqltype.String, "hello"},
		{sqltype.Int, 42},
		{sqltype.Long, int64(9223372036854775807)},
		{sqltype.Float, 3.25},
		{sqltype.BigDecimal, decimal.RequireFromString("12345.678901234567890")},
		{sqltype.BigInteger, new(big.Int).Lsh(big.NewInt(1), 100)},
		{sqltype.Boolean, true},
		{sqltype.LocalDate, time.Date(2019, 8, 5, 0, 0, 0, 0, time.UTC)},
		{sqltype.LocalTime, time.Date(0, 1, 1, 10, 11, 12, 500, time.UTC)},
		{sqltype.LocalDateTime, time.Date(2019, 8, 5, 10, 11, 12, 0, time.UTC)},
		{sqltype.DateTime, time.Date(2020, 2, 29, 23, 59, 59, 123000000, time.UTC)},
		{sqltype.UUID, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")},
		{sqltype.Bytes, []byte{0, 1, 2, 250}},
		{sqltype.Object, map[string]any{"k": "v"}},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			wire, err := reg.Serialize(tc.kind, tc.value)
			require.NoError(t, err)
			back, err := reg.ParseValue(tc.kind, wire)
			require.NoError(t, err)

			switch want := tc.value.(type) {
			case *big.Int:
				assert.Equal(t, 0, want.Cmp(back.(*big.Int)))
			case time.Time:
				assert.True(t, want.Equal(back.(time.Time)), "%v != %v", want, back)
			case decimal.Decimal:
				assert.True(t, want.Equal(back.(decimal.Decimal)), "%v != %v", want, back)
			default:
				assert.Equal(t, tc.value, back)
			}

			again, err := reg.Serialize(tc.kind, wire)
			require.NoError(t, err)
			assert.Equal(t, wire, again, "serialize must be idempotent on wire values")
		})
	}
}

func TestRegistryParseValueIdempotent(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range sqltype.All {
		var input any
		switch kind {
		case sqltype.String, sqltype.BigDecimal, sqltype.BigInteger, sqltype.Long, sqltype.Int:
			input = "7"
		case sqltype.Float:
			input = 1.5
		case sqltype.Boolean:
			input = false
		case sqltype.LocalDate:
			input = "2019-08-05"
		case sqltype.LocalTime:
			input = "08:30:00"
		case sqltype.LocalDateTime:
			input = "2019-08-05T08:30:00"
		case sqltype.DateTime:
			input = "2019-08-05T08:30:00Z"
		case sqltype.UUID:
			input = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		case sqltype.Bytes:
			input = "AAEC"
		case sqltype.Object:
			input = []any{"a", 1}
		}
		if kind == sqltype.String {
			input = "seven"
		}
		first, err := reg.ParseValue(kind, input)
		require.NoError(t, err, kind.String())
		second, err := reg.ParseValue(kind, first)
		require.NoError(t, err, kind.String())
		assert.Equal(t, first, second, kind.String())
	}
}

func TestRegistryCoercionErrors(t *testing.T) {
	reg := NewRegistry()

	bad := []struct {
		kind  sqltype.Kind
		value any
	}{
		{sqltype.Int, "abc"},
		{sqltype.Int, int64(1) << 40},
		{sqltype.Long, 1.5},
		{sqltype.Float, "NaN"},
		{sqltype.BigDecimal, "1/2"},
		{sqltype.BigInteger, "12.5"},
		{sqltype.Boolean, "maybe"},
		{sqltype.LocalDate, "05/08/2019"},
		{sqltype.LocalTime, "25:00"},
		{sqltype.DateTime, 12},
		{sqltype.UUID, "not-a-uuid"},
		{sqltype.Bytes, "***"},
		{sqltype.String, 12},
	}

	for _, tc := range bad {
		_, err := reg.ParseValue(tc.kind, tc.value)
		require.Error(t, err, "%s %v", tc.kind, tc.value)
		var coercion *CoercionError
		require.True(t, errors.As(err, &coercion), "%T", err)
		assert.Equal(t, tc.kind, coercion.Kind)
		assert.Equal(t, tc.value, coercion.Value)
		assert.Equal(t, "COERCION_ERROR", coercion.Extensions()["code"])
	}
}

func TestCoercionErrorAt(t *testing.T) {
	_, err := NewRegistry().ParseValue(sqltype.LocalDate, "soon")
	var coercion *CoercionError
	require.ErrorAs(t, err, &coercion)

	located := coercion.At([]string{"where", "dueDate", "EQ"})
	assert.Empty(t, coercion.Path)
	assert.Equal(t, "where.dueDate.EQ", located.Extensions()["path"])
	assert.Contains(t, located.Error(), "(at where.dueDate.EQ)")
	assert.Equal(t, "soon", located.Extensions()["value"])
}

func TestRegistryNil(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range sqltype.All {
		out, err := reg.Serialize(kind, nil)
		assert.NoError(t, err)
		assert.Nil(t, out)
		bound, err := reg.Bind(kind, nil)
		assert.NoError(t, err)
		assert.Nil(t, bound)
	}
}

func TestRegistrySerializeStorageValues(t *testing.T) {
	reg := NewRegistry()

	out, err := reg.Serialize(sqltype.Boolean, int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = reg.Serialize(sqltype.Boolean, []byte{0})
	require.NoError(t, err)
	assert.Equal(t, false, out)

	out, err = reg.Serialize(sqltype.LocalDate, []byte("2019-08-05"))
	require.NoError(t, err)
	assert.Equal(t, "2019-08-05", out)

	out, err = reg.Serialize(sqltype.LocalDateTime, []byte("2019-08-05 10:11:12"))
	require.NoError(t, err)
	assert.Equal(t, "2019-08-05T10:11:12", out)

	out, err = reg.Serialize(sqltype.BigDecimal, []byte("10.50"))
	require.NoError(t, err)
	assert.Equal(t, "10.50", out)

	out, err = reg.Serialize(sqltype.Int, int64(5))
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	out, err = reg.Serialize(sqltype.Object, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestRegistryParseLiteral(t *testing.T) {
	reg := NewRegistry()

	v, err := reg.ParseLiteral(sqltype.Long, &ast.IntValue{Value: "9007199254740993"})
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), v)

	v, err = reg.ParseLiteral(sqltype.BigDecimal, &ast.FloatValue{Value: "10.5"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.5").Equal(v.(decimal.Decimal)))

	v, err = reg.ParseLiteral(sqltype.LocalDate, &ast.StringValue{Value: "2019-08-05"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 8, 5, 0, 0, 0, 0, time.UTC), v)

	_, err = reg.ParseLiteral(sqltype.String, &ast.IntValue{Value: "1"})
	assert.Error(t, err)

	v, err = reg.ParseLiteral(sqltype.Object, &ast.ListValue{Values: []ast.Value{
		&ast.StringValue{Value: "x"},
		&ast.BooleanValue{Value: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, []any{"x", true}, v)
}

func TestRegistryBind(t *testing.T) {
	reg := NewRegistry()

	v, err := reg.Bind(sqltype.LocalDate, "2019-08-05")
	require.NoError(t, err)
	assert.Equal(t, "2019-08-05", v)

	v, err = reg.Bind(sqltype.BigInteger, "123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v)

	v, err = reg.Bind(sqltype.UUID, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)

	v, err = reg.Bind(sqltype.LocalDateTime, "2019-08-05T10:11:12")
	require.NoError(t, err)
	assert.Equal(t, "2019-08-05 10:11:12", v)

	v, err = reg.Bind(sqltype.BigDecimal, "1.2500")
	require.NoError(t, err)
	assert.Equal(t, "1.2500", v)

	v, err = reg.Bind(sqltype.BigDecimal, 2.5)
	require.NoError(t, err)
	assert.Equal(t, "2.5", v)

	_, err = reg.Bind(sqltype.Int, "x")
	assert.Error(t, err)
}

func TestRegistryGraphQLType(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range sqltype.All {
		scalar := reg.GraphQLType(kind)
		require.NotNil(t, scalar)
		assert.Equal(t, kind.String(), scalar.Name())
	}
	assert.Same(t, reg.GraphQLType(sqltype.Object), reg.GraphQLType(sqltype.Kind(99)))

	long := reg.GraphQLType(sqltype.Long)
	assert.Equal(t, int64(12), long.ParseValue(float64(12)))
	assert.Equal(t, "twelve", long.ParseValue("twelve"), "bad input is left for the compiler to reject")
	date := reg.GraphQLType(sqltype.LocalDate)
	assert.Equal(t, time.Date(2019, 8, 5, 0, 0, 0, 0, time.UTC), date.ParseLiteral(&ast.StringValue{Value: "2019-08-05"}))
	assert.Equal(t, "soon", date.ParseLiteral(&ast.StringValue{Value: "soon"}))
	assert.Nil(t, date.ParseLiteral(&ast.Variable{}))
	assert.Equal(t, "2019-08-05", reg.GraphQLType(sqltype.LocalDate).Serialize(time.Date(2019, 8, 5, 0, 0, 0, 0, time.UTC)))
}

func TestBoundedIntScalars(t *testing.T) {
	nonNegative := NonNegativeInt()
	assert.Equal(t, 3, nonNegative.Serialize(3))
	assert.Nil(t, nonNegative.Serialize(-1))
	assert.Equal(t, 0, nonNegative.ParseValue(float64(0)))
	assert.Equal(t, 7, nonNegative.ParseLiteral(&ast.IntValue{Value: "7"}))

	positive := PositiveInt()
	assert.Nil(t, positive.ParseValue(0))
	assert.Equal(t, 1, positive.ParseValue("1"))
	assert.Nil(t, positive.ParseLiteral(&ast.IntValue{Value: "0"}))
}

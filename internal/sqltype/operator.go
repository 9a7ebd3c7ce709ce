package sqltype

import "fmt"

// Operator is a where-criteria comparison.
type Operator int

const (
	EQ Operator = iota
	NE
	GT
	GE
	LT
	LE
	BETWEEN
	NOT_BETWEEN
	IN
	NIN
	LIKE
	LOCATE
	// IS_NULL takes a boolean; EQ and NE with a null value behave the same.
	IS_NULL
)

// Operators lists every comparison in schema order.
var Operators = []Operator{EQ, NE, GT, GE, LT, LE, BETWEEN, NOT_BETWEEN, IN, NIN, LIKE, LOCATE, IS_NULL}

func (o Operator) String() string {
	switch o {
	case EQ:
		return "EQ"
	case NE:
		return "NE"
	case GT:
		return "GT"
	case GE:
		return "GE"
	case LT:
		return "LT"
	case LE:
		return "LE"
	case BETWEEN:
		return "BETWEEN"
	case NOT_BETWEEN:
		return "NOT_BETWEEN"
	case IN:
		return "IN"
	case NIN:
		return "NIN"
	case LIKE:
		return "LIKE"
	case LOCATE:
		return "LOCATE"
	case IS_NULL:
		return "IS_NULL"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// ParseOperator resolves an operator by its input field name.
func ParseOperator(name string) (Operator, bool) {
	for _, op := range Operators {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}

// TakesList reports whether the operator value is a list of kind values.
func (o Operator) TakesList() bool {
	switch o {
	case BETWEEN, NOT_BETWEEN, IN, NIN:
		return true
	case EQ, NE, GT, GE, LT, LE, LIKE, LOCATE, IS_NULL:
		return false
	default:
		return false
	}
}

// AppliesTo reports whether the operator is valid for the kind.
func (o Operator) AppliesTo(k Kind) bool {
	if !k.Filterable() {
		return false
	}
	switch o {
	case EQ, NE, IN, NIN, IS_NULL:
		return true
	case GT, GE, LT, LE, BETWEEN, NOT_BETWEEN:
		return k.Ordered()
	case LIKE, LOCATE:
		return k.Textual()
	default:
		return false
	}
}

// OperatorsFor returns the operators valid for the kind in schema order.
func OperatorsFor(k Kind) []Operator {
	var out []Operator
	for _, op := range Operators {
		if op.AppliesTo(k) {
			out = append(out, op)
		}
	}
	return out
}

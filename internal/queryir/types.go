package queryir

import "github.com/roach88/qdsl/internal/schema"

// ValueType is the static type of an expression, used to reject operators
// that do not apply to their operands.
type ValueType int

const (
	// TypeAny is the type of null literals and database function calls.
	// It is compatible with every other type.
	TypeAny ValueType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeBoolean
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	default:
		return "any"
	}
}

func (t ValueType) isNumeric() bool {
	return t == TypeInteger || t == TypeFloat || t == TypeAny
}

func (t ValueType) isString() bool {
	return t == TypeString || t == TypeAny
}

func (t ValueType) isOrdered() bool {
	return t != TypeBoolean
}

// compatible reports whether values of a and b may be compared.
func compatible(a, b ValueType) bool {
	if a == TypeAny || b == TypeAny || a == b {
		return true
	}
	return a.isNumeric() && b.isNumeric()
}

// assignable reports whether a value of type v may be stored in a field of
// type f. Integers widen to floats, nothing narrows.
func assignable(f, v ValueType) bool {
	if f == TypeAny || v == TypeAny || f == v {
		return true
	}
	return f == TypeFloat && v == TypeInteger
}

// merge returns the common type of two branch results, or false when they
// cannot be unified.
func merge(a, b ValueType) (ValueType, bool) {
	switch {
	case a == TypeAny:
		return b, true
	case b == TypeAny || a == b:
		return a, true
	case a.isNumeric() && b.isNumeric():
		return TypeFloat, true
	}
	return TypeAny, false
}

func typeOf(reg *schema.Registry, f schema.Field) ValueType {
	switch reg.ValueType(f) {
	case schema.TypeString:
		return TypeString
	case schema.TypeInteger:
		return TypeInteger
	case schema.TypeFloat:
		return TypeFloat
	case schema.TypeBoolean:
		return TypeBoolean
	}
	return TypeAny
}

package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/ir"
)

func TestStringFunctions(t *testing.T) {
	m := newMember("")

	tests := []struct {
		name string
		expr Expr
		op   UnaryOp
		typ  ValueType
	}{
		{"lower", m.username.Lower(), OpLower, TypeString},
		{"upper", m.username.Upper(), OpUpper, TypeString},
		{"length", m.username.Length(), OpLength, TypeInteger},
		{"stringValue", m.age.StringValue(), OpStringValue, TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.expr.Err())
			u, ok := tt.expr.Node().(*Unary)
			require.True(t, ok)
			assert.Equal(t, tt.op, u.Op)
			assert.Equal(t, tt.typ, tt.expr.Type())
		})
	}
}

func TestOperatorOnIncompatibleTypeIsDeferred(t *testing.T) {
	m := newMember("")

	lowered := m.age.Lower()
	require.Error(t, lowered.Err())
	assert.True(t, IsUnsupportedOperatorError(lowered.Err()))

	// The error survives further chaining.
	chained := lowered.Concat("x").Length()
	assert.ErrorIs(t, chained.Err(), lowered.Err())

	_, err := Select(lowered).From(m.EntityPath).Build()
	require.Error(t, err)
	assert.True(t, IsUnsupportedOperatorError(err))
}

func TestConcat(t *testing.T) {
	m := newMember("")

	ok := m.username.Concat("_").Concat(m.age.StringValue())
	require.NoError(t, ok.Err())
	assert.Equal(t, TypeString, ok.Type())

	bad := m.username.Concat(m.age)
	require.Error(t, bad.Err())
	assert.Equal(t, CodeOperandType, Code(bad.Err()))
}

func TestArithmetic(t *testing.T) {
	m := newMember("")

	plus := m.age.Add(1)
	require.NoError(t, plus.Err())
	assert.Equal(t, TypeInteger, plus.Type())
	b, ok := plus.Node().(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpAdd, b.Op)

	assert.Equal(t, TypeFloat, m.age.Avg().Multiply(2).Type())
	assert.NoError(t, m.age.Subtract(m.id).Err())

	assert.True(t, IsUnsupportedOperatorError(m.username.Add(1).Err()))
	assert.True(t, IsUnsupportedOperatorError(m.age.Add("1").Err()))
	assert.True(t, IsUnsupportedOperatorError(m.age.Add(1.5).Err()))
}

func TestAggregates(t *testing.T) {
	m := newMember("")

	tests := []struct {
		name     string
		expr     Expr
		fn       AggFunc
		typ      ValueType
		distinct bool
	}{
		{"count", m.id.Count(), AggCount, TypeInteger, false},
		{"countDistinct", m.username.CountDistinct(), AggCount, TypeInteger, true},
		{"sum", m.age.Sum(), AggSum, TypeInteger, false},
		{"avg", m.age.Avg(), AggAvg, TypeFloat, false},
		{"max", m.age.Max(), AggMax, TypeInteger, false},
		{"min", m.username.Min(), AggMin, TypeString, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.expr.Err())
			agg, ok := tt.expr.Node().(*Aggregate)
			require.True(t, ok)
			assert.Equal(t, tt.fn, agg.Func)
			assert.Equal(t, tt.distinct, agg.Distinct)
			assert.Equal(t, tt.typ, tt.expr.Type())
		})
	}

	assert.True(t, IsUnsupportedOperatorError(m.username.Sum().Err()))
	assert.True(t, IsUnsupportedOperatorError(m.username.Avg().Err()))
}

func TestAsAndName(t *testing.T) {
	m := newMember("")

	assert.Equal(t, "username", m.username.Name())
	assert.Equal(t, "name", m.username.As("name").Name())
	assert.Equal(t, "", m.age.Max().Name())
	assert.Equal(t, "maxAge", m.age.Max().As("maxAge").Name())

	assert.Error(t, m.age.As("max age").Err())

	// As returns a copy.
	aliased := m.username.As("name")
	assert.Equal(t, "", m.username.Alias())
	assert.Equal(t, "name", aliased.Alias())
}

func TestConstantAndValue(t *testing.T) {
	c := Constant("A")
	require.NoError(t, c.Err())
	cv, ok := c.Node().(*ConstantValue)
	require.True(t, ok)
	assert.Equal(t, ir.String("A"), cv.Value)

	v := Value(int64(7))
	lit, ok := v.Node().(*Literal)
	require.True(t, ok)
	assert.Equal(t, ir.Int(7), lit.Value)
	assert.Equal(t, TypeInteger, v.Type())

	assert.True(t, IsUnsupportedOperatorError(Constant(1.5).Err()))
	assert.True(t, IsUnsupportedOperatorError(Value([]int{1}).Err()))
}

func TestFunction(t *testing.T) {
	m := newMember("")

	f := Function("replace", m.username, "member", "M")
	require.NoError(t, f.Err())
	call, ok := f.Node().(*FuncCall)
	require.True(t, ok)
	assert.Equal(t, "replace", call.Name)
	assert.Len(t, call.Args, 3)
	assert.Equal(t, TypeAny, f.Type())

	// TypeAny results compare with anything.
	assert.NoError(t, PredicateErr(m.username.Eq(Function("lower", m.username))))

	bad := Function("drop table", m.username)
	assert.Equal(t, CodeInvalidFunction, Code(bad.Err()))
}

func TestSimpleCase(t *testing.T) {
	m := newMember("")

	c := m.age.When(10).Then("ten").When(20).Then("twenty").Otherwise("other")
	require.NoError(t, c.Err())
	assert.Equal(t, TypeString, c.Type())

	node, ok := c.Node().(*CaseExpr)
	require.True(t, ok)
	assert.False(t, node.Operand.IsZero())
	require.Len(t, node.Whens, 2)
	assert.Nil(t, node.Whens[0].Cond)
	assert.False(t, node.Else.IsZero())

	mismatch := m.age.When("ten").Then(1).End()
	assert.True(t, IsUnsupportedOperatorError(mismatch.Err()))
}

func TestSearchedCase(t *testing.T) {
	m := newMember("")

	c := Case().
		When(m.age.Between(0, 20)).Then("0-20").
		When(m.age.Between(21, 30)).Then("21-30").
		Otherwise("other")
	require.NoError(t, c.Err())

	node, ok := c.Node().(*CaseExpr)
	require.True(t, ok)
	assert.True(t, node.Operand.IsZero())
	require.Len(t, node.Whens, 2)
	assert.NotNil(t, node.Whens[1].Cond)

	ended := Case().When(m.age.Gt(1)).Then(1).End()
	require.NoError(t, ended.Err())
	assert.True(t, ended.Nullable())

	assert.Error(t, Case().When("not a predicate").Then(1).End().Err())
	assert.Error(t, Case().When(m.age.Gt(1)).Then(1).Otherwise("x").Err())
	assert.Error(t, Case().Otherwise(1).Err())
}

func TestCaseBuilderIsValue(t *testing.T) {
	m := newMember("")

	base := Case().When(m.age.Lt(20)).Then("young")
	a := base.When(m.age.Lt(40)).Then("adult").End()
	b := base.Otherwise("old")

	assert.Len(t, a.Node().(*CaseExpr).Whens, 2)
	assert.Len(t, b.Node().(*CaseExpr).Whens, 1)
}

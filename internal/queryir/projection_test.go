package queryir

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberDto struct {
	Username string
	Age      int
}

type userDto struct {
	Name string
	Age  int
}

type taggedDto struct {
	Login string `qdsl:"username"`
	Years int    `qdsl:"age"`
	Skip  string `qdsl:"-"`
}

func TestConstructorProjection(t *testing.T) {
	m := newMember("")

	p := Constructor(func(username string, age int) memberDto {
		return memberDto{Username: username, Age: age}
	}, m.username, m.age)
	require.NoError(t, ProjectionErr(p))
	assert.Equal(t, reflect.TypeOf((*memberDto)(nil)).Elem(), p.(*ConstructorProjection).ResultType())

	withErr := Constructor(func(username string, age int) (memberDto, error) {
		return memberDto{}, nil
	}, m.username, m.age)
	assert.NoError(t, ProjectionErr(withErr))
}

func TestConstructorProjectionErrors(t *testing.T) {
	m := newMember("")

	tests := []struct {
		name string
		fn   any
		cols []Expr
		code ErrorCode
	}{
		{"three columns two parameters", func(string, int) memberDto { return memberDto{} }, []Expr{m.username, m.age, m.id}, CodeArity},
		{"not a function", memberDto{}, []Expr{m.username}, CodeInvalidTarget},
		{"nil", nil, []Expr{m.username}, CodeInvalidTarget},
		{"variadic", func(...string) memberDto { return memberDto{} }, []Expr{m.username}, CodeInvalidTarget},
		{"no result", func(string) {}, []Expr{m.username}, CodeInvalidTarget},
		{"second result not error", func(string) (memberDto, int) { return memberDto{}, 0 }, []Expr{m.username}, CodeInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ProjectionErr(Constructor(tt.fn, tt.cols...))
			require.Error(t, err)
			assert.True(t, IsProjectionMismatchError(err))
			assert.Equal(t, tt.code, Code(err))
		})
	}
}

func TestFieldProjectionByName(t *testing.T) {
	m := newMember("")

	p := Fields[memberDto](m.username, m.age).(*FieldProjection)
	require.NoError(t, p.err)
	assert.Equal(t, []int{0}, p.FieldIndex(0))
	assert.Equal(t, []int{1}, p.FieldIndex(1))
}

func TestFieldProjectionAlias(t *testing.T) {
	m := newMember("")

	ok := Fields[userDto](m.username.As("name"), m.age)
	assert.NoError(t, ProjectionErr(ok))

	// Without the alias, userDto has no "username" field.
	err := ProjectionErr(Fields[userDto](m.username, m.age))
	require.Error(t, err)
	assert.Equal(t, CodeUnmatchedColumn, Code(err))

	// memberDto has no "name" field.
	err = ProjectionErr(Fields[memberDto](m.username.As("name"), m.age))
	require.Error(t, err)
	assert.True(t, IsProjectionMismatchError(err))

	var pm *ProjectionMismatchError
	require.ErrorAs(t, err, &pm)
	assert.Equal(t, 0, pm.Column)
}

func TestFieldProjectionTags(t *testing.T) {
	m := newMember("")

	p := Fields[taggedDto](m.username, m.age).(*FieldProjection)
	require.NoError(t, p.err)
	assert.Equal(t, []int{0}, p.FieldIndex(0))
	assert.Equal(t, []int{1}, p.FieldIndex(1))

	err := ProjectionErr(Fields[taggedDto](m.username.As("skip")))
	assert.Equal(t, CodeUnmatchedColumn, Code(err))
}

func TestFieldProjectionErrors(t *testing.T) {
	m := newMember("")

	err := ProjectionErr(Fields[int](m.age))
	assert.Equal(t, CodeInvalidTarget, Code(err))

	// Aggregates need an alias to bind by name.
	err = ProjectionErr(Fields[memberDto](m.age.Max()))
	assert.Equal(t, CodeUnmatchedColumn, Code(err))

	assert.NoError(t, ProjectionErr(Fields[memberDto](m.age.Max().As("age"))))
}

func TestProjectionColumns(t *testing.T) {
	m := newMember("")

	assert.Len(t, Single(m.age).Columns(), 1)
	assert.Len(t, Tuple(m.age, m.username).Columns(), 2)
	assert.Len(t, Entity(m.EntityPath).Columns(), 4)
}

func TestProjectionCopiesColumns(t *testing.T) {
	m := newMember("")

	tests := []struct {
		name    string
		project func(exprs []Expr) Projection
	}{
		{"tuple", func(exprs []Expr) Projection { return Tuple(exprs...) }},
		{"constructor", func(exprs []Expr) Projection {
			return Constructor(func(username string, age int) memberDto { return memberDto{} }, exprs...)
		}},
		{"fields", func(exprs []Expr) Projection { return FieldsOf(reflect.TypeOf((*memberDto)(nil)).Elem(), exprs...) }},
		{"select", func(exprs []Expr) Projection { return Select(exprs...).From(m.EntityPath).MustBuild().Projection() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exprs := []Expr{m.username, m.age}
			p := tt.project(exprs)
			require.NoError(t, ProjectionErr(p))

			exprs[0] = m.id
			assert.Equal(t, "username", p.Columns()[0].Name())
		})
	}
}

func TestSelectFingerprintIgnoresCallerSlice(t *testing.T) {
	m := newMember("")
	exprs := []Expr{m.username, m.age}
	b := Select(exprs...).From(m.EntityPath)
	before := b.MustBuild().Fingerprint()

	exprs[0] = m.id
	assert.Equal(t, before, b.MustBuild().Fingerprint())
}

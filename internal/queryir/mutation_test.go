package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateBuild(t *testing.T) {
	m := newMember("")

	u, err := Update(m.EntityPath).
		Set(m.username, "guest").
		Where(m.age.Lt(28)).
		Build()
	require.NoError(t, err)
	assert.Equal(t, UpdateMutation, u.Kind())
	require.Len(t, u.Assignments(), 1)
	assert.Equal(t, "member.username", u.Assignments()[0].Field.Key())
	assert.NotNil(t, u.Where())
	assert.Len(t, u.Fingerprint(), 64)

	add, err := Update(m.EntityPath).Set(m.age, m.age.Add(1)).Build()
	require.NoError(t, err)
	assert.Nil(t, add.Where())
	assert.NotEqual(t, u.Fingerprint(), add.Fingerprint())

	nulled, err := Update(m.EntityPath).SetNull(m.team).Build()
	require.NoError(t, err)
	assert.True(t, isNullLiteral(nulled.Assignments()[0].Value))
}

func TestDeleteBuild(t *testing.T) {
	m := newMember("")

	d, err := Delete(m.EntityPath).Where(m.age.Gt(18)).Build()
	require.NoError(t, err)
	assert.Equal(t, DeleteMutation, d.Kind())
	assert.Empty(t, d.Assignments())
	assert.Equal(t, "member", d.Target().Alias())
}

func TestMutationValidation(t *testing.T) {
	m, tm := newMember(""), newTeam("")
	other := newMember("other")

	tests := []struct {
		name     string
		mutation MutationBuilder
		check    func(error) bool
	}{
		{"update without assignments", Update(m.EntityPath), IsInvalidQueryError},
		{"delete with assignments", Delete(m.EntityPath).Set(m.age, 1), IsInvalidQueryError},
		{"field of another entity", Update(m.EntityPath).Set(tm.name, "x"), IsInvalidQueryError},
		{"field of another alias", Update(m.EntityPath).Set(other.age, 1), IsInvalidQueryError},
		{"primary key", Update(m.EntityPath).Set(m.id, 1), IsInvalidQueryError},
		{"duplicate assignment", Update(m.EntityPath).Set(m.age, 1).Set(m.age, 2), IsInvalidQueryError},
		{"non-field target", Update(m.EntityPath).Set(m.age.Add(1), 1), IsInvalidQueryError},
		{"string into integer", Update(m.EntityPath).Set(m.age, "ten"), IsUnsupportedOperatorError},
		{"null into non-nullable", Update(m.EntityPath).SetNull(m.age), IsUnsupportedOperatorError},
		{"ill-typed expression", Update(m.EntityPath).Set(m.age, m.username.Add(1)), IsUnsupportedOperatorError},
		{"aggregate value", Update(m.EntityPath).Set(m.age, m.age.Max()), IsInvalidQueryError},
		{"where out of scope", Delete(m.EntityPath).Where(tm.name.Eq("teamA")), IsInvalidQueryError},
		{"float literal", Update(m.EntityPath).Set(m.age, 1.5), IsUnsupportedOperatorError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mutation.Build()
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestMutationWhereIgnoresNil(t *testing.T) {
	m := newMember("")

	d := Delete(m.EntityPath).Where(nil).MustBuild()
	assert.Nil(t, d.Where())

	assert.Panics(t, func() { Update(m.EntityPath).MustBuild() })
}

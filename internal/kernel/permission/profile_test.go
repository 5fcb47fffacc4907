package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelSatisfies(t *testing.T) {
	assert.True(t, LevelRead.Satisfies(RequireRead))
	assert.False(t, LevelRead.Satisfies(RequireWrite))
	assert.True(t, LevelReadWrite.Satisfies(RequireRead))
	assert.True(t, LevelReadWrite.Satisfies(RequireWrite))
	assert.False(t, LevelReadWrite.Satisfies(RequireGrant))
	assert.True(t, LevelReadWriteGrant.Satisfies(RequireGrant))
}

func TestWildcardScopeMatch(t *testing.T) {
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("student", map[string]Level{
		"workspace:*": LevelRead,
	}, nil))

	ok, err := s.CheckScope("student", "workspace:create", RequireRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CheckScope("student", "workspace:create", RequireWrite)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateProfileDuplicateRejected(t *testing.T) {
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("admin", map[string]Level{"x": LevelRead}, nil))
	err := s.CreateProfile("admin", map[string]Level{"x": LevelRead}, nil)
	assert.ErrorIs(t, err, ErrProfileExists)
}

func TestInvalidGrantLevelRejected(t *testing.T) {
	s := NewProfileStore()
	err := s.CreateProfile("bad", map[string]Level{"x": Level("owns")}, nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestUpdateProfileMergeIdempotent(t *testing.T) {
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("p", map[string]Level{"a": LevelRead}, nil))

	require.NoError(t, s.UpdateProfile("p", map[string]Level{"b": LevelReadWrite}, false))
	require.NoError(t, s.UpdateProfile("p", map[string]Level{"b": LevelReadWrite}, false))

	p, ok := s.GetProfile("p")
	require.True(t, ok)
	assert.Equal(t, LevelRead, p.Grants["a"])
	assert.Equal(t, LevelReadWrite, p.Grants["b"])
	assert.Len(t, p.Grants, 2)
}

func TestUpdateProfileReplace(t *testing.T) {
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("p", map[string]Level{"a": LevelRead, "b": LevelRead}, nil))
	require.NoError(t, s.UpdateProfile("p", map[string]Level{"c": LevelReadWriteGrant}, true))

	p, ok := s.GetProfile("p")
	require.True(t, ok)
	assert.Len(t, p.Grants, 1)
	assert.Equal(t, LevelReadWriteGrant, p.Grants["c"])
}

func TestApplyProfileToPrincipal(t *testing.T) {
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("owner", map[string]Level{
		"res:read":  LevelRead,
		"res:write": LevelReadWrite,
		"res:admin": LevelReadWriteGrant,
	}, nil))

	rws := newRWS("resource-key")
	result, err := s.ApplyProfileToPrincipal("owner", "grantee-key", rws)
	require.NoError(t, err)
	assert.Len(t, result.Applied, 3)
	assert.Empty(t, result.Failed)

	assert.True(t, rws.CanRead("grantee-key"))
	assert.True(t, rws.CanWrite("grantee-key"))
	assert.True(t, rws.CanGrant("grantee-key"))
}

func TestScopeDenialScenario(t *testing.T) {
	// Mirrors scenario 2: student profile has workspace:read -> r,
	// route requires write on workspace:read.
	s := NewProfileStore()
	require.NoError(t, s.CreateProfile("student", map[string]Level{
		"workspace:read": LevelRead,
	}, nil))

	ok, err := s.CheckScope("student", "workspace:read", RequireWrite)
	require.NoError(t, err)
	assert.False(t, ok)
}

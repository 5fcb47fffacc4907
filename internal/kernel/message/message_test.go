package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"empty", "", ErrEmptyPath},
		{"whitespace", "   ", ErrEmptyPath},
		{"scheme only", "foo://", ErrInvalidPath},
		{"no scheme separator", "foo/bar", ErrInvalidPath},
		{"trailing slash", "foo://bar/", ErrInvalidPath},
		{"simple", "echo://ping", nil},
		{"nested", "workspace://update/resource", nil},
		{"param segment", "echo://ping/{id}", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestNewAssignsUniqueID(t *testing.T) {
	m1, err := New("echo://ping", nil)
	require.NoError(t, err)
	m2, err := New("echo://ping", nil)
	require.NoError(t, err)

	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Equal(t, TypeSimple, m1.Type)
}

func TestSchemeAndSegments(t *testing.T) {
	m, err := New("workspace://update/resource/{id}", nil)
	require.NoError(t, err)

	assert.Equal(t, "workspace", m.Scheme())
	assert.Equal(t, []string{"update", "resource", "{id}"}, m.Segments())
}

func TestMetaAccessors(t *testing.T) {
	m, err := New("echo://ping", nil)
	require.NoError(t, err)
	m.Meta[MetaInReplyTo] = "abc"
	m.Meta["custom"] = true

	assert.Equal(t, "abc", m.Meta.String(MetaInReplyTo))
	assert.True(t, m.Meta.Bool("custom"))
	assert.Equal(t, "", m.Meta.String("missing"))
}

package subsystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	l := NewLifecycle()
	assert.Equal(t, StateUnregistered, l.State())

	require.NoError(t, l.Advance(StateBuilt))
	require.NoError(t, l.Advance(StateRegistered))
	require.NoError(t, l.Advance(StateDisposed))
	assert.Equal(t, StateDisposed, l.State())
}

func TestLifecycleRejectsSkippedOrBackwardsTransitions(t *testing.T) {
	l := NewLifecycle()
	err := l.Advance(StateRegistered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, l.Advance(StateBuilt))
	err = l.Advance(StateUnregistered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = l.Advance(StateDisposed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycleRejectsTransitionFromDisposed(t *testing.T) {
	l := NewLifecycle()
	require.NoError(t, l.Advance(StateBuilt))
	require.NoError(t, l.Advance(StateRegistered))
	require.NoError(t, l.Advance(StateDisposed))

	err := l.Advance(StateBuilt)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

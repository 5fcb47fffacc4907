package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
)

func mustMessage(t *testing.T, path string) *message.Message {
	t.Helper()
	m, err := message.New(path, nil)
	require.NoError(t, err)
	return m
}

func TestRejectPolicyOverflow(t *testing.T) {
	// Capacity 2, policy reject: third enqueue must be rejected.
	q := New(2, Reject)

	require.NoError(t, q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")}))
	require.NoError(t, q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")}))

	err := q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	_, ok := q.Dequeue()
	require.True(t, ok)

	require.NoError(t, q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")}))
	assert.Equal(t, 2, q.Len())
}

func TestZeroCapacityAlwaysRejects(t *testing.T) {
	q := New(0, Reject)
	err := q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestZeroCapacityDropsSilently(t *testing.T) {
	q := New(0, DropNewest)
	err := q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")})
	assert.NoError(t, err)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(1), q.StatsSnapshot().Dropped)
}

func TestDropOldestEvictsFront(t *testing.T) {
	q := New(1, DropOldest)
	first := mustMessage(t, "echo://ping/1")
	second := mustMessage(t, "echo://ping/2")

	require.NoError(t, q.Enqueue(Entry{Message: first}))
	require.NoError(t, q.Enqueue(Entry{Message: second}))

	assert.Equal(t, 1, q.Len())
	e, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, second.ID, e.Message.ID)
	assert.Equal(t, int64(1), q.StatsSnapshot().Dropped)
}

func TestDropNewestKeepsFront(t *testing.T) {
	q := New(1, DropNewest)
	first := mustMessage(t, "echo://ping/1")
	second := mustMessage(t, "echo://ping/2")

	require.NoError(t, q.Enqueue(Entry{Message: first}))
	require.NoError(t, q.Enqueue(Entry{Message: second}))

	e, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, first.ID, e.Message.ID)
}

func TestFIFOOrder(t *testing.T) {
	q := New(10, Reject)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Entry{Message: mustMessage(t, "echo://ping")}))
	}
	var ids []string
	for {
		e, ok := q.Dequeue()
		if !ok {
			break
		}
		ids = append(ids, e.Message.ID)
	}
	assert.Len(t, ids, 5)
}

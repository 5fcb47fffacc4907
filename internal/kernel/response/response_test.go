package response

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

func TestDeliverResponseSettlesWaiter(t *testing.T) {
	m := NewManager()
	requester := principal.PKR{UUID: "a", PublicKey: "pk-a"}
	b := m.RegisterReply("msg-1", "a://channel/reply", requester, time.Second)

	go func() {
		resp, err := message.New("a://channel/reply", nil)
		require.NoError(t, err)
		resp.Meta = message.Meta{message.MetaInReplyTo: "msg-1"}
		require.NoError(t, m.DeliverResponse(resp))
	}()

	resp, err := b.Wait()
	require.NoError(t, err)
	assert.Equal(t, "msg-1", resp.Meta.String(message.MetaInReplyTo))
	assert.Equal(t, 0, m.Pending())
}

func TestReapSettlesExpiredWithTimeout(t *testing.T) {
	m := NewManager()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }

	requester := principal.PKR{UUID: "a", PublicKey: "pk-a"}
	b := m.RegisterReply("msg-1", "a://channel/reply", requester, 0)

	n := m.Reap(fixed.Add(time.Nanosecond))
	assert.Equal(t, 1, n)

	_, err := b.Wait()
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.Equal(t, 0, m.Pending())
}

func TestDeliverResponseUnknownBinding(t *testing.T) {
	m := NewManager()
	resp, err := message.New("a://channel/reply", nil)
	require.NoError(t, err)
	resp.Meta = message.Meta{message.MetaInReplyTo: "ghost"}

	err = m.DeliverResponse(resp)
	assert.ErrorIs(t, err, ErrUnknownBinding)
}

func TestReapIgnoresAlreadyDeliveredBinding(t *testing.T) {
	m := NewManager()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }

	requester := principal.PKR{UUID: "a", PublicKey: "pk-a"}
	m.RegisterReply("msg-1", "a://channel/reply", requester, 0)

	resp, err := message.New("a://channel/reply", nil)
	require.NoError(t, err)
	resp.Meta = message.Meta{message.MetaInReplyTo: "msg-1"}
	require.NoError(t, m.DeliverResponse(resp))

	n := m.Reap(fixed.Add(time.Hour))
	assert.Equal(t, 0, n)
}

func TestGetReplyTo(t *testing.T) {
	m := NewManager()
	requester := principal.PKR{UUID: "a", PublicKey: "pk-a"}
	m.RegisterReply("msg-1", "a://channel/reply", requester, time.Second)

	channel, req, ok := m.GetReplyTo("msg-1")
	require.True(t, ok)
	assert.Equal(t, "a://channel/reply", channel)
	assert.Equal(t, requester, req)

	_, _, ok = m.GetReplyTo("ghost")
	assert.False(t, ok)
}

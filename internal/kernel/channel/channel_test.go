package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

func TestCreateRejectsEmptyAndReservedNames(t *testing.T) {
	m := NewManager(func(principal.PKR, *message.Message) (interface{}, error) { return nil, nil })

	_, err := m.Create("workspace", "", CreateOptions{})
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = m.Create("workspace", "event", CreateOptions{})
	assert.ErrorIs(t, err, ErrReservedName)
}

func TestSendFansOutToEveryParticipant(t *testing.T) {
	var delivered []principal.PKR
	m := NewManager(func(p principal.PKR, msg *message.Message) (interface{}, error) {
		delivered = append(delivered, p)
		return "ok", nil
	})

	p1 := principal.PKR{UUID: "1", PublicKey: "pk1"}
	p2 := principal.PKR{UUID: "2", PublicKey: "pk2"}
	p3 := principal.PKR{UUID: "3", PublicKey: "pk3"}

	ch, err := m.Create("workspace", "updates", CreateOptions{Participants: []principal.PKR{p1, p2, p3}})
	require.NoError(t, err)
	assert.Equal(t, "workspace://channel/updates", ch.Route)

	msg, err := message.New(ch.Route, map[string]interface{}{"n": 1})
	require.NoError(t, err)

	results, err := m.Send(ch.Route, msg)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Len(t, delivered, 3)
}

func TestSendUnknownChannel(t *testing.T) {
	m := NewManager(func(principal.PKR, *message.Message) (interface{}, error) { return nil, nil })
	msg, err := message.New("workspace://channel/ghost", nil)
	require.NoError(t, err)

	_, err = m.Send("workspace://channel/ghost", msg)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestDestroyIsSymmetricWithCreate(t *testing.T) {
	m := NewManager(func(principal.PKR, *message.Message) (interface{}, error) { return nil, nil })
	ch, err := m.Create("workspace", "updates", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ch.Route))
	_, ok := m.Get(ch.Route)
	assert.False(t, ok)

	err = m.Destroy(ch.Route)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

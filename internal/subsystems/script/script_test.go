package script

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/config"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

func TestRuntimeEvalReturnsValue(t *testing.T) {
	rt := NewRuntime()
	result, err := rt.Eval(EvalBody{Source: "1 + 2"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Value)
}

func TestRuntimeEvalCapturesConsole(t *testing.T) {
	rt := NewRuntime()
	result, err := rt.Eval(EvalBody{Source: "console.log('hi'); 1"})
	require.NoError(t, err)
	require.Len(t, result.Console, 1)
	assert.Equal(t, "hi", result.Console[0].Message)
}

func TestRuntimeEvalTimesOut(t *testing.T) {
	rt := NewRuntime()
	_, err := rt.Eval(EvalBody{Source: "while(true) {}", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
}

func TestRuntimeEvalInjectsContext(t *testing.T) {
	rt := NewRuntime()
	result, err := rt.Eval(EvalBody{Source: "n * 2", Context: map[string]interface{}{"n": 21}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Value)
}

func TestHandlerRoundTrip(t *testing.T) {
	k, err := kernel.New(config.Default(), nil)
	require.NoError(t, err)

	rt := NewRuntime()
	_, err = k.RegisterSubsystem("script", kernel.SubsystemOptions{
		Synchronous: true,
		Routes:      Routes(rt),
	})
	require.NoError(t, err)

	caller, err := k.Principals().CreatePrincipal(principal.KindFriend, principal.CreateOptions{})
	require.NoError(t, err)

	msg, err := message.New("script://eval", EvalBody{Source: "2 + 2"})
	require.NoError(t, err)

	result, err := k.SendProtected(caller, msg, kernel.SendOptions{})
	require.NoError(t, err)
	body := result.(map[string]interface{})
	assert.Equal(t, int64(4), body["value"])
}

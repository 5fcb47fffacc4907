package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/config"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

func TestHandlerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served-By", "test")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	k, err := kernel.New(config.Default(), nil)
	require.NoError(t, err)

	client := NewClient()
	_, err = k.RegisterSubsystem("httpclient", kernel.SubsystemOptions{
		Synchronous: true,
		Routes:      Routes(client),
	})
	require.NoError(t, err)

	caller, err := k.Principals().CreatePrincipal(principal.KindFriend, principal.CreateOptions{})
	require.NoError(t, err)

	msg, err := message.New("httpclient://request", RequestBody{Method: "GET", URL: srv.URL})
	require.NoError(t, err)

	result, err := k.SendProtected(caller, msg, kernel.SendOptions{})
	require.NoError(t, err)

	body := result.(map[string]interface{})
	assert.Equal(t, 200, body["status"])
	assert.Contains(t, body["body"], "ok")
}

func TestDoRejectsEmptyURL(t *testing.T) {
	client := NewClient()
	_, err := client.Do(nil, RequestBody{}) //nolint:staticcheck // nil ctx acceptable: request never issued
	require.Error(t, err)
}

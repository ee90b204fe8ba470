package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/types"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenAuth map[string]*auth.Principal

func (a tokenAuth) Authenticate(_ context.Context, token, _, _ string) (*auth.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return nil, errors.New("unknown token")
}

func startHub(t *testing.T, authn Authenticator) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop(), authn)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func event(server, command string) types.DispatchEvent {
	return types.DispatchEvent{Server: server, Command: command, ResultCode: "OK000", Success: true}
}

func TestAnonymousClientReceivesSubscribedEvents(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)

	assert.Equal(t, "auth_success", readMessage(t, conn)["type"])
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Servers: []string{"acme"}}))
	assert.Equal(t, "subscribed", readMessage(t, conn)["type"])

	hub.PublishDispatch(event("beta", "reset"))
	hub.PublishDispatch(event("acme", "ping"))

	msg := readMessage(t, conn)
	assert.Equal(t, "dispatch", msg["type"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "acme", data["server"])
	assert.Equal(t, "ping", data["command"])
}

func TestClientAuthentication(t *testing.T) {
	viewer := &auth.Principal{Subject: "viewer", Grants: auth.Grants{"dcs.acme": types.AccessRead}}
	hub, url := startHub(t, tokenAuth{"good": viewer})

	bad := dial(t, url)
	require.NoError(t, bad.WriteJSON(ClientMessage{Type: MessageTypeAuth, Token: "bad"}))
	assert.Equal(t, "auth_failed", readMessage(t, bad)["type"])

	noauth := dial(t, url)
	require.NoError(t, noauth.WriteJSON(ClientMessage{Type: MessageTypeSubscribe}))
	assert.Equal(t, "auth_failed", readMessage(t, noauth)["type"])

	good := dial(t, url)
	require.NoError(t, good.WriteJSON(ClientMessage{Type: MessageTypeAuth, Token: "good"}))
	msg := readMessage(t, good)
	assert.Equal(t, "auth_success", msg["type"])
	assert.Equal(t, "viewer", msg["data"].(map[string]any)["subject"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// no read grant on beta
	hub.PublishDispatch(event("beta", "reset"))
	hub.PublishDispatch(event("acme", "ping"))
	data := readMessage(t, good)["data"].(map[string]any)
	assert.Equal(t, "acme", data["server"])
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

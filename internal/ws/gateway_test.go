package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func recvFrame(t *testing.T, c *Client) (string, map[string]interface{}) {
	t.Helper()
	select {
	case payload := <-c.send:
		var env struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &env))
		return env.Type, env.Data
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return "", nil
	}
}

func recvErrorCode(t *testing.T, c *Client) string {
	t.Helper()
	typ, data := recvFrame(t, c)
	require.Equal(t, "error", typ)
	code, _ := data["code"].(string)
	return code
}

func TestAnonymousConnectionCannotRegister(t *testing.T) {
	g := &Gateway{hub: NewHub()}
	c := &Client{send: make(chan []byte, 8), gateway: g}

	g.dispatch(c, Envelope{Type: "register"})

	assert.Equal(t, "NOT_AUTHENTICATED", recvErrorCode(t, c))
	assert.False(t, c.bound)
}

func TestUnboundConnectionCannotPlay(t *testing.T) {
	g := &Gateway{hub: NewHub()}
	c := &Client{playerID: "u:7", send: make(chan []byte, 8), gateway: g}

	for _, event := range []string{"matchmaking:start", "matchmaking:cancel", "game:guess", "game:forfeit", "game:rejoin"} {
		g.dispatch(c, Envelope{Type: event})
		assert.Equal(t, "NOT_AUTHENTICATED", recvErrorCode(t, c), event)
	}
}

func TestRegisterBindsIntoHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	g := &Gateway{hub: hub}
	c := &Client{playerID: "u:7", username: "ada", userID: 7, send: make(chan []byte, 8), gateway: g}

	g.registerClient(c)
	require.True(t, c.bound)
	waitUntil(t, func() bool { return hub.Connected("u:7") })

	// Registering again must not add a second handle.
	g.registerClient(c)
	hub.mu.RLock()
	handles := len(hub.clients["u:7"])
	hub.mu.RUnlock()
	assert.Equal(t, 1, handles)

	hub.unregister <- c
	waitUntil(t, func() bool { return !hub.Connected("u:7") })
}

func TestUnknownEventType(t *testing.T) {
	g := &Gateway{hub: NewHub()}
	c := &Client{playerID: "u:7", bound: true, send: make(chan []byte, 8), gateway: g}

	g.dispatch(c, Envelope{Type: "game:teleport"})

	assert.Equal(t, "UNKNOWN_EVENT", recvErrorCode(t, c))
}

func TestSendToPlayerFansOutToAllHandles(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	g := &Gateway{hub: hub}

	tabs := []*Client{
		{playerID: "u:9", bound: true, send: make(chan []byte, 8), gateway: g},
		{playerID: "u:9", bound: true, send: make(chan []byte, 8), gateway: g},
	}
	for _, c := range tabs {
		hub.register <- c
	}
	waitUntil(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients["u:9"]) == 2
	})

	hub.SendToPlayer("u:9", "game:start", map[string]string{"gameId": "m_test"})

	for _, c := range tabs {
		typ, data := recvFrame(t, c)
		assert.Equal(t, "game:start", typ)
		assert.Equal(t, "m_test", data["gameId"])
	}
}

package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return srv, conn
}

func TestHubHello(t *testing.T) {
	hub := NewHub([]string{"viseme_aa", "viseme_PP"}, zerolog.Nop())
	srv, conn := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var hello HelloMessage
	require.NoError(t, json.Unmarshal(payload, &hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, []string{"viseme_aa", "viseme_PP"}, hello.Palette)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	srv, conn := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage() // hello
	require.NoError(t, err)

	// Connection registration happens in the handler goroutine.
	require.Eventually(t, func() bool { return hub.Clients() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Broadcast(FrameMessage{Mouth: 0.4, Centroid: 0.7, Viseme: 9})
	hub.Broadcast(FrameMessage{Mouth: 0, Centroid: 0, Viseme: -1})

	var first FrameMessage
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &first))
	assert.Equal(t, "frame", first.Type)
	assert.Equal(t, 0.4, first.Mouth)
	assert.Equal(t, 9, first.Viseme)
	assert.Equal(t, int64(1), first.Sequence)

	var second FrameMessage
	_, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &second))
	assert.Equal(t, -1, second.Viseme)
	assert.Equal(t, int64(2), second.Sequence, "frames are strictly ordered")
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	srv, conn := dialHub(t, hub)
	defer srv.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Broadcasting with no clients is a no-op.
	hub.Broadcast(FrameMessage{Mouth: 0.1})
}

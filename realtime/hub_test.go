package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(origins)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversEventsToEveryClient(t *testing.T) {
	hub, server := startHub(t)
	first := dial(t, server, nil)
	second := dial(t, server, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventSpeciesTagged, PhotoID: 4, SpeciesID: 9, CommonName: "Snowy Egret"})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var got Event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, EventSpeciesTagged, got.Type)
		assert.Equal(t, uint(4), got.PhotoID)
		assert.Equal(t, uint(9), got.SpeciesID)
		assert.Equal(t, "Snowy Egret", got.CommonName)
		assert.NotZero(t, got.Timestamp)
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, server := startHub(t, "http://admin.example")

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dial(t, server, http.Header{"Origin": {"http://admin.example"}})
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < broadcastBufferSize+10; i++ {
		hub.Publish(Event{Type: EventPhotoAdded, PhotoID: uint(i)})
	}
}

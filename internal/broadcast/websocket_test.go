package broadcast

import (
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

func TestHub_ServeWS_StreamsEventsAsTextFrames(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(DiffResult("sess", "x.py", "-x = 1\n+x = 2\n", "x = 2\n"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "diff", got["type"])
	assert.Equal(t, "x = 2\n", got["refactored_code"])
}

func TestHub_ServeWS_ClientDisconnectDetaches(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ServeWS_When_ClientStopsReading_PublishStaysFast(t *testing.T) {
	t.Parallel()

	hub := newTestHub(WithQueueSize(1))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	// the client never reads, so socket buffers fill and the writer stalls
	payload := strings.Repeat("y", 4<<20)
	var worst time.Duration
	for i := 0; i < 8 && hub.Count() > 0; i++ {
		start := time.Now()
		hub.Publish(DiffResult("sess", "big.py", payload, payload))
		if d := time.Since(start); d > worst {
			worst = d
		}
	}

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Less(t, worst, 500*time.Millisecond)
}

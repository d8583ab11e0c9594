package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
)

// ==========================
// Fake Pusher server
// ==========================

type fakePusherServer struct {
	*httptest.Server
	t        *testing.T
	authCode int

	mu       sync.Mutex
	conn     *websocket.Conn
	dials    int
	received []pusherEvent
	authReqs []map[string]string
	authHdr  string
}

func createTestPusherServer(t *testing.T) *fakePusherServer {
	t.Helper()
	f := &fakePusherServer{t: t, authCode: http.StatusOK}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/app/test-key", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.dials++
		f.mu.Unlock()

		f.write(map[string]interface{}{
			"event": "pusher:connection_established",
			"data":  `{"socket_id":"123.456","activity_timeout":120}`,
		})
		for {
			var ev pusherEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, ev)
			f.mu.Unlock()
		}
	})
	mux.HandleFunc("/broadcasting/auth", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.authReqs = append(f.authReqs, body)
		f.authHdr = r.Header.Get("Authorization")
		code := f.authCode
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"auth": "test-key:sig-" + body["channel_name"]})
		}
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakePusherServer) write(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		f.t.Error("no client connected")
		return
	}
	assert.NoError(f.t, f.conn.WriteJSON(v))
}

// drop closes the server side of the current connection without a close frame.
func (f *fakePusherServer) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

func (f *fakePusherServer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakePusherServer) events(name string) []pusherEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pusherEvent
	for _, ev := range f.received {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func createTestPusherClient(t *testing.T, srv *fakePusherServer) *PusherClient {
	t.Helper()
	c := NewPusherClient(PusherOptions{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/test-key",
		AuthEndpoint:   srv.URL + "/broadcasting/auth",
		Token:          "jwt-1",
		Namespace:      `App\Events`,
		PingInterval:   time.Hour,
		ReconnectDelay: 10 * time.Millisecond,
	}, logger.NewTestLogger(t))
	t.Cleanup(func() { c.Close() })
	return c
}

// ==========================
// Tests
// ==========================

func TestPusherClient_URL(t *testing.T) {
	c := NewPusherClient(PusherOptions{Key: "abc", Cluster: "eu", TLS: true}, logger.NewNoOpLogger())
	assert.True(t, strings.HasPrefix(c.URL(), "wss://ws-eu.pusher.com/app/abc?"))
	assert.Contains(t, c.URL(), "protocol=7")

	c = NewPusherClient(PusherOptions{Key: "abc", Host: "localhost", Port: 6001}, logger.NewNoOpLogger())
	assert.True(t, strings.HasPrefix(c.URL(), "ws://localhost:6001/app/abc?"))
}

func TestPusherClient_PrivateSubscribeAndDeliver(t *testing.T) {
	srv := createTestPusherServer(t)
	c := createTestPusherClient(t, srv)
	ctx := context.Background()

	got := make(chan map[string]interface{}, 4)
	channel := PrivateChannel("App.Models.User.5")
	require.NoError(t, c.Listen(ctx, channel, "MessageSent", func(p map[string]interface{}) { got <- p }))
	assert.Equal(t, "123.456", c.SocketID())

	require.Eventually(t, func() bool { return len(srv.events("pusher:subscribe")) == 1 }, 2*time.Second, 10*time.Millisecond)

	sub := srv.events("pusher:subscribe")[0]
	var data map[string]string
	require.NoError(t, json.Unmarshal(sub.Data, &data))
	assert.Equal(t, channel, data["channel"])
	assert.Equal(t, "test-key:sig-"+channel, data["auth"])

	srv.mu.Lock()
	assert.Equal(t, "Bearer jwt-1", srv.authHdr)
	assert.Equal(t, "123.456", srv.authReqs[0]["socket_id"])
	srv.mu.Unlock()

	srv.write(map[string]interface{}{
		"event":   `App\Events\MessageSent`,
		"channel": channel,
		"data":    `{"id":9,"name":"Jules"}`,
	})
	srv.write(map[string]interface{}{
		"event":   `App\Events\Other`,
		"channel": channel,
		"data":    `{}`,
	})

	select {
	case p := <-got:
		assert.Equal(t, float64(9), p["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case p := <-got:
		t.Fatalf("unexpected delivery %v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPusherClient_PublicChannelSkipsAuth(t *testing.T) {
	srv := createTestPusherServer(t)
	c := createTestPusherClient(t, srv)

	require.NoError(t, c.Listen(context.Background(), "messages", ".MessageSent", func(map[string]interface{}) {}))
	require.Eventually(t, func() bool { return len(srv.events("pusher:subscribe")) == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	assert.Empty(t, srv.authReqs)
	srv.mu.Unlock()
}

func TestPusherClient_AuthRejected(t *testing.T) {
	srv := createTestPusherServer(t)
	srv.authCode = http.StatusForbidden
	c := createTestPusherClient(t, srv)

	err := c.Listen(context.Background(), PrivateChannel("App.Models.User.5"), "MessageSent", func(map[string]interface{}) {})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePushSubscribeFailed))
	assert.Empty(t, srv.events("pusher:subscribe"))
}

func TestPusherClient_PingPongAndLeave(t *testing.T) {
	srv := createTestPusherServer(t)
	c := createTestPusherClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Listen(ctx, "messages", "MessageSent", func(map[string]interface{}) {}))

	srv.write(map[string]interface{}{"event": "pusher:ping", "data": "{}"})
	require.Eventually(t, func() bool { return len(srv.events("pusher:pong")) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Leave("messages"))
	require.Eventually(t, func() bool { return len(srv.events("pusher:unsubscribe")) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, "", c.SocketID())
}

func TestPusherClient_Heartbeat(t *testing.T) {
	srv := createTestPusherServer(t)
	c := NewPusherClient(PusherOptions{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/test-key",
		PingInterval: 20 * time.Millisecond,
	}, logger.NewTestLogger(t))
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(srv.events("pusher:ping")) >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestPusherClient_ReconnectsAfterDrop(t *testing.T) {
	srv := createTestPusherServer(t)
	c := createTestPusherClient(t, srv)
	ctx := context.Background()

	got := make(chan map[string]interface{}, 4)
	private := PrivateChannel("App.Models.User.5")
	require.NoError(t, c.Listen(ctx, "messages", "MessageSent", func(p map[string]interface{}) { got <- p }))
	require.NoError(t, c.Listen(ctx, private, "MessageSent", func(map[string]interface{}) {}))
	require.Eventually(t, func() bool { return len(srv.events("pusher:subscribe")) == 2 }, 2*time.Second, 10*time.Millisecond)

	srv.drop()

	// both channels are subscribed again on the new socket
	require.Eventually(t, func() bool {
		return srv.dialCount() == 2 && len(srv.events("pusher:subscribe")) == 4
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "123.456", c.SocketID())

	srv.mu.Lock()
	assert.Len(t, srv.authReqs, 2)
	srv.mu.Unlock()

	srv.write(map[string]interface{}{
		"event":   `App\Events\MessageSent`,
		"channel": "messages",
		"data":    `{"id":21}`,
	})
	select {
	case p := <-got:
		assert.Equal(t, float64(21), p["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after reconnect")
	}
}

func TestPusherClient_DropClearsSocketUntilListen(t *testing.T) {
	srv := createTestPusherServer(t)
	c := NewPusherClient(PusherOptions{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/test-key",
		Namespace:      `App\Events`,
		PingInterval:   time.Hour,
		ReconnectDelay: time.Hour,
	}, logger.NewTestLogger(t))
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Listen(ctx, "messages", "MessageSent", func(map[string]interface{}) {}))
	require.Eventually(t, func() bool { return len(srv.events("pusher:subscribe")) == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.drop()
	require.Eventually(t, func() bool { return c.SocketID() == "" }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.send("pusher:ping", "", map[string]interface{}{}), ErrClosed)

	// the next Listen dials again and restores the existing subscription
	require.NoError(t, c.Listen(ctx, "notifications", "MessageSent", func(map[string]interface{}) {}))
	assert.Equal(t, "123.456", c.SocketID())
	require.Eventually(t, func() bool { return len(srv.events("pusher:subscribe")) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, srv.dialCount())
}

func TestPusherClient_DialFailure(t *testing.T) {
	c := NewPusherClient(PusherOptions{URL: "ws://127.0.0.1:1/app/x"}, logger.NewTestLogger(t))
	err := c.Listen(context.Background(), "messages", "E", func(map[string]interface{}) {})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePushSubscribeFailed))
}

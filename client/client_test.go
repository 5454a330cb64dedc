package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestWsServer runs handler for every accepted websocket connection.
func newTestWsServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		handler(conn)
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient_pongEcho(t *testing.T) {
	pongs := make(chan *realtime.Frame, 1)

	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		if err := conn.WriteJSON(realtime.NewPingFrame(time.UnixMilli(1712000000000))); err != nil {
			t.Errorf("failed to write ping: %v", err)
			return
		}

		var frame realtime.Frame
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&frame); err != nil {
			t.Errorf("failed to read pong: %v", err)
			return
		}
		pongs <- &frame
	})
	defer ts.Close()

	c, err := New(Config{URL: wsURL(ts), Logger: testutil.TestLogger(t)})
	assert.NoError(t, err, "expected no error creating client")
	assert.NoError(t, c.Connect(), "expected successful connect")
	defer c.Close()

	select {
	case pong := <-pongs:
		assert.Equal(t, realtime.FramePong, pong.Type, "expected a PONG reply")
		assert.Equal(t, int64(1712000000000), pong.Timestamp, "expected pong to echo the ping timestamp")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestClient_dispatchesFrames(t *testing.T) {
	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		conn.WriteJSON(&realtime.Frame{
			Type:      realtime.FrameInsert,
			ChannelId: "c1",
			Message:   []byte(`{"id":"m1"}`),
		})

		// keep the connection open until the client goes away
		conn.ReadMessage()
	})
	defer ts.Close()

	c, err := New(Config{URL: wsURL(ts), Logger: testutil.TestLogger(t)})
	assert.NoError(t, err, "expected no error creating client")

	frames := make(chan *realtime.Frame, 1)
	unregister := c.RegisterHandler(func(frame *realtime.Frame) {
		if frame.Type == realtime.FrameInsert {
			frames <- frame
		}
	})
	defer unregister()

	assert.NoError(t, c.Connect(), "expected successful connect")
	defer c.Close()

	select {
	case frame := <-frames:
		assert.Equal(t, "c1", frame.ChannelId, "expected channel id on dispatched frame")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}
}

func TestClient_reconnectsAfterUnexpectedClose(t *testing.T) {
	var conns atomic.Int32

	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		if n == 1 {
			// drop the first connection without a close frame
			conn.Close()
			return
		}

		defer conn.Close()
		conn.ReadMessage()
	})
	defer ts.Close()

	c, err := New(Config{
		URL:            wsURL(ts),
		Logger:         testutil.TestLogger(t),
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	assert.NoError(t, err, "expected no error creating client")
	assert.NoError(t, c.Connect(), "expected successful connect")
	defer c.Close()

	assert.Eventually(t, func() bool {
		return conns.Load() >= 2 && c.Status() == StatusConnected
	}, 2*time.Second, 10*time.Millisecond, "expected the client to redial after an unexpected close")
}

func TestClient_closeStopsReconnect(t *testing.T) {
	var conns atomic.Int32

	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		conns.Add(1)
		defer conn.Close()
		conn.ReadMessage()
	})
	defer ts.Close()

	c, err := New(Config{
		URL:            wsURL(ts),
		Logger:         testutil.TestLogger(t),
		InitialBackoff: 10 * time.Millisecond,
	})
	assert.NoError(t, err, "expected no error creating client")
	assert.NoError(t, c.Connect(), "expected successful connect")

	c.Close()
	assert.Equal(t, StatusDisconnected, c.Status(), "expected disconnected status after close")

	// give a would-be reconnect loop time to fire
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), conns.Load(), "expected no redial after an intentional close")

	assert.Error(t, c.Connect(), "expected connect after close to fail")
}

func TestClient_connectFailure(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws", Logger: testutil.TestLogger(t)})
	assert.NoError(t, err, "expected no error creating client")

	assert.Error(t, c.Connect(), "expected dial failure to be returned")
	assert.Equal(t, StatusDisconnected, c.Status(), "expected disconnected status after dial failure")
}

func TestClient_closeAfterFailedConnect(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws", Logger: testutil.TestLogger(t)})
	assert.NoError(t, err, "expected no error creating client")
	assert.Error(t, c.Connect(), "expected dial failure to be returned")

	// the typing expiry loop never started; Close must still return
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after a failed connect")
	}

	assert.Equal(t, StatusDisconnected, c.Status(), "expected disconnected status after close")
}

func TestClient_dialAfterCloseDiscardsConnection(t *testing.T) {
	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
	})
	defer ts.Close()

	c, err := New(Config{URL: wsURL(ts), Logger: testutil.TestLogger(t)})
	assert.NoError(t, err, "expected no error creating client")

	c.Close()

	// a reconnect attempt whose dial loses the race to Close must not
	// install the fresh socket
	assert.Error(t, c.dial(), "expected dial to refuse after close")

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Nil(t, c.conn, "expected no connection to be installed after close")
	assert.Equal(t, StatusDisconnected, c.status, "expected status to stay disconnected")
}

func TestClient_statusCallbackOrder(t *testing.T) {
	var mu sync.Mutex
	var transitions []Status

	ts := newTestWsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
	})
	defer ts.Close()

	c, err := New(Config{
		URL:    wsURL(ts),
		Logger: testutil.TestLogger(t),
		OnStatusChange: func(status Status) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, status)
		},
	})
	assert.NoError(t, err, "expected no error creating client")

	assert.NoError(t, c.Connect(), "expected successful connect")
	c.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 3
	}, 2*time.Second, 10*time.Millisecond, "expected all transitions to be delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusConnecting, StatusConnected, StatusDisconnected}, transitions,
		"expected status callbacks in transition order")
}

func TestNew_validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "expected error for empty URL")

	c, err := New(Config{URL: "ws://localhost/ws"})
	assert.NoError(t, err, "expected no error with defaults")
	assert.Equal(t, DefaultInitialBackoff, c.cfg.InitialBackoff, "expected default initial backoff")
	assert.Equal(t, DefaultMaxBackoff, c.cfg.MaxBackoff, "expected default max backoff")
	assert.Equal(t, DefaultBackoffMultiplier, c.cfg.BackoffMultiplier, "expected default multiplier")
	assert.Equal(t, DefaultActivityInterval, c.cfg.ActivityInterval, "expected default activity interval")
	assert.Equal(t, StatusIdle, c.Status(), "expected idle status before connect")
}

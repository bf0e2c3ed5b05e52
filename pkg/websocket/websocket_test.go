package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rakshak/pkg/logger"
)

func newTestServer(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.NewNop())
	go hub.Run(ctx)

	h := NewHandler(hub, opts, func() interface{} { return map[string]string{"state": "inactive"} })
	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("bad message %q: %v", raw, err)
	}
	return msg
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWelcomeAndBroadcast(t *testing.T) {
	t.Parallel()

	hub, srv := newTestServer(t, Options{AllowedOrigins: []string{"*"}})
	conn := dial(t, srv, nil)

	welcome := readMessage(t, conn)
	if welcome.Type != EventWelcome {
		t.Fatalf("first message type = %q, want welcome", welcome.Type)
	}
	if data, _ := welcome.Data.(map[string]interface{}); data["state"] != "inactive" {
		t.Errorf("welcome data = %v", welcome.Data)
	}

	waitClients(t, hub, 1)
	hub.Broadcast(EventSessionState, map[string]string{"state": "active"})
	hub.Broadcast(EventLocationUpdate, map[string]float64{"lat": 1})
	msg := readMessage(t, conn)
	if msg.Type != EventSessionState || msg.Seq != 1 {
		t.Errorf("first broadcast = %s seq %d, want session_state seq 1", msg.Type, msg.Seq)
	}
	if next := readMessage(t, conn); next.Seq != 2 {
		t.Errorf("second broadcast seq = %d, want 2", next.Seq)
	}
}

func TestWelcomeCarriesLatestSeq(t *testing.T) {
	t.Parallel()

	hub, srv := newTestServer(t, Options{})
	hub.Broadcast(EventSessionState, nil)
	hub.Broadcast(EventSessionState, nil)

	conn := dial(t, srv, nil)
	if welcome := readMessage(t, conn); welcome.Seq != 2 {
		t.Errorf("welcome seq = %d, want 2", welcome.Seq)
	}
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	hub, srv := newTestServer(t, Options{})
	conn := dial(t, srv, nil)
	readMessage(t, conn)
	waitClients(t, hub, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != EventPong {
		t.Errorf("reply type = %q, want pong", msg.Type)
	}
}

func TestRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, Options{AllowedOrigins: []string{"localhost:3000"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	if err == nil {
		t.Fatal("Dial() succeeded from disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:3000"}})
	if err != nil {
		t.Fatalf("Dial() from allowed origin: %v", err)
	}
	conn.Close()
}

func TestConnectionLimit(t *testing.T) {
	t.Parallel()

	hub, srv := newTestServer(t, Options{MaxConnections: 1})
	dial(t, srv, nil)
	waitClients(t, hub, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second connection accepted past limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestClientLeaves(t *testing.T) {
	t.Parallel()

	hub, srv := newTestServer(t, Options{})
	conn := dial(t, srv, nil)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

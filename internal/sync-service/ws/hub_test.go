package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, dst any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(dst); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestSubscribedClientReceivesDispatch(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "state"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack map[string]string
	readJSON(t, conn, &ack)
	if ack["type"] != "subscribed" || ack["topic"] != "state" {
		t.Fatalf("unexpected ack %v", ack)
	}

	Dispatch(hub, []byte(`{"type":"notification","payload":{}}`), zap.NewNop())
	Dispatch(hub, []byte(`{"type":"state","payload":{"version":3}}`), zap.NewNop())

	var upd struct {
		Type    string `json:"type"`
		Payload struct {
			Version int `json:"version"`
		} `json:"payload"`
	}
	readJSON(t, conn, &upd)
	if upd.Type != "state" || upd.Payload.Version != 3 {
		t.Fatalf("expected only the state update, got %+v", upd)
	}
}

func TestPingAndUnsubscribe(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	_ = conn.WriteJSON(ClientMsg{Type: "subscribe", Topic: "notification"})
	var ack map[string]string
	readJSON(t, conn, &ack)
	if hub.Subscribers("notification") != 1 {
		t.Fatalf("expected one subscriber")
	}

	_ = conn.WriteJSON(ClientMsg{Type: "unsubscribe", Topic: "notification"})
	_ = conn.WriteJSON(ClientMsg{Type: "ping"})
	var pong map[string]string
	readJSON(t, conn, &pong)
	if pong["type"] != "pong" {
		t.Fatalf("expected pong, got %v", pong)
	}
	// o ping é processado depois do unsubscribe na mesma conexão
	if hub.Subscribers("notification") != 0 {
		t.Fatalf("expected unsubscribe to remove the client")
	}
}

package hub

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(NewMetrics(prometheus.NewRegistry()), log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	upgrader := Upgrader("*")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, err := telemetry.ParseRole(strings.TrimPrefix(r.URL.Path, "/ws/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = h.ServeWS(upgrader, w, r, role, r.URL.Query().Get("worker_id"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome["status"] != "connected" {
		t.Fatalf("welcome = %v", welcome)
	}
	return conn
}

func waitCount(t *testing.T, h *Hub, role telemetry.Role, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count(role) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Count(%s) = %d, want %d", role, h.Count(role), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) telemetry.RiskEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := telemetry.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestPublishFansOutByRole(t *testing.T) {
	h, srv := startHub(t)
	admin := dial(t, srv, "/ws/admin")
	w1 := dial(t, srv, "/ws/worker?worker_id=w1")
	w2 := dial(t, srv, "/ws/worker?worker_id=w2")
	waitCount(t, h, telemetry.RoleWorker, 2)
	waitCount(t, h, telemetry.RoleAdmin, 1)

	co := 40.0
	ev := telemetry.RiskEvent{Kind: telemetry.KindAlert, WorkerID: "w1", RiskLevel: telemetry.RiskUnsafe, Details: telemetry.SensorValues{CO: &co}}
	if err := h.Publish(ev, telemetry.RoleWorker, telemetry.RoleAdmin); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := readEvent(t, w1); got.WorkerID != "w1" {
		t.Fatalf("worker got %+v", got)
	}
	if got := readEvent(t, admin); got.RiskLevel != telemetry.RiskUnsafe {
		t.Fatalf("admin got %+v", got)
	}

	_ = w2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := w2.ReadMessage(); err == nil {
		t.Fatalf("w2 received foreign frame %s", data)
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	h, _ := startHub(t)
	if err := h.Publish(telemetry.RiskEvent{Kind: telemetry.KindAlert, WorkerID: "w1"}, telemetry.RoleAdmin); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishRaw(t *testing.T) {
	h, srv := startHub(t)
	admin := dial(t, srv, "/ws/admin")
	waitCount(t, h, telemetry.RoleAdmin, 1)

	if err := h.PublishRaw(telemetry.RoleAdmin, map[string]any{"user_id": "w7", "risk_level": "Unsafe"}); err != nil {
		t.Fatalf("PublishRaw() error = %v", err)
	}
	_ = admin.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := admin.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["user_id"] != "w7" {
		t.Fatalf("got %v", got)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "/ws/admin")
	waitCount(t, h, telemetry.RoleAdmin, 1)

	conn.Close()
	waitCount(t, h, telemetry.RoleAdmin, 0)
}

func TestClientAccepts(t *testing.T) {
	scoped := &Client{role: telemetry.RoleWorker, workerID: "w1"}
	open := &Client{role: telemetry.RoleWorker}

	if !scoped.accepts(Message{Role: telemetry.RoleWorker, WorkerID: "w1"}) {
		t.Error("scoped client should accept own frames")
	}
	if scoped.accepts(Message{Role: telemetry.RoleWorker, WorkerID: "w2"}) {
		t.Error("scoped client accepted foreign frame")
	}
	if !open.accepts(Message{Role: telemetry.RoleWorker, WorkerID: "w2"}) {
		t.Error("unscoped worker client should see every worker frame")
	}
	if scoped.accepts(Message{Role: telemetry.RoleAdmin}) {
		t.Error("worker client accepted admin frame")
	}
}

func TestWelcomeFrameShape(t *testing.T) {
	_, srv := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/admin", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"] != "connected" || got["role"] != "admin" {
		t.Fatalf("welcome = %v", got)
	}
}

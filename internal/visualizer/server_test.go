package visualizer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServeWebsocketDeliversPushedUpdate(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	srv := NewServer("", hub, testLogger{t})
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine time to register the subscription before
	// pushing, since Subscribe happens inside the upgrade handler.
	time.Sleep(20 * time.Millisecond)
	hub.PushLickTick(7)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Update
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Kind != KindLick || got.LickCount != 7 {
		t.Fatalf("got = %+v, want lick tick with count 7", got)
	}
}

func TestServeHealthReportsOK(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	srv := NewServer("", hub, testLogger{t})
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStopShutsDownServerAndHub(t *testing.T) {
	hub := New(testLogger{t})
	srv := NewServer("127.0.0.1:0", hub, testLogger{t})
	srv.Start()

	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

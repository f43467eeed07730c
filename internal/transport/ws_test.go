package transport_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossfeld/voicecast/internal/broadcast"
	"github.com/mossfeld/voicecast/internal/transport"
)

func startTestServer(t *testing.T, starter transport.CastStarter) (*broadcast.Registry, string) {
	t.Helper()

	registry := broadcast.NewRegistry(nil)
	t.Cleanup(registry.Shutdown)

	if starter == nil {
		starter = transport.CastStarterFunc(func(ctx context.Context) error { return nil })
	}

	server := transport.NewServer(registry, starter, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return registry, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayerJoinsRegistryAndReceivesBroadcast(t *testing.T) {
	registry, url := startTestServer(t, nil)

	conn := dial(t, url+"?clientType=player")
	waitFor(t, "player to join the registry", func() bool { return registry.Len() == 1 })

	want, err := broadcast.EncodeChunk([]byte("hello"))
	if err != nil {
		t.Fatalf("EncodeChunk returned error: %v", err)
	}
	registry.Broadcast(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("received %s, want %s", got, want)
	}
}

func TestPlayerDisconnectLeavesRegistry(t *testing.T) {
	registry, url := startTestServer(t, nil)

	conn := dial(t, url) // no clientType defaults to player
	waitFor(t, "player to join the registry", func() bool { return registry.Len() == 1 })

	conn.Close()
	waitFor(t, "player to leave the registry", func() bool { return registry.Len() == 0 })
}

func TestControlClientTriggersCast(t *testing.T) {
	started := make(chan struct{}, 1)
	starter := transport.CastStarterFunc(func(ctx context.Context) error {
		started <- struct{}{}
		return nil
	})
	_, url := startTestServer(t, starter)

	conn := dial(t, url+"?clientType=server")
	if err := conn.WriteJSON(map[string]string{"event": "connected"}); err != nil {
		t.Fatalf("failed to send connected event: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("cast was not started")
	}
}

func TestControlDisconnectBroadcastsClose(t *testing.T) {
	registry, url := startTestServer(t, nil)

	player := dial(t, url+"?clientType=player")
	waitFor(t, "player to join the registry", func() bool { return registry.Len() == 1 })

	control := dial(t, url+"?clientType=server")
	control.Close()

	want, err := broadcast.EncodeClose()
	if err != nil {
		t.Fatalf("EncodeClose returned error: %v", err)
	}

	player.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := player.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read close message: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("received %s, want %s", got, want)
	}
}

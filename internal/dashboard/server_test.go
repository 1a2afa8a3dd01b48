package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/taskdock/taskdock/internal/engine"
)

func testServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[test] ", log.LstdFlags)
	}
	// Port 0: random available port.
	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})
	return server
}

func TestServerStartStop(t *testing.T) {
	server := testServer(t, nil)
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := testServer(t, &Config{
		Status: func(ctx context.Context) (Status, error) {
			return Status{Accounts: 2, Lists: 3, Items: 5}, nil
		},
	})

	resp, err := http.Get(fmt.Sprintf("http://%s/status", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Accounts != 2 || status.Lists != 3 || status.Items != 5 {
		t.Errorf("status = %+v, want counts 2/3/5", status)
	}
	if status.StartedAt.IsZero() {
		t.Error("StartedAt not filled in")
	}
}

func TestProblemsEndpoint(t *testing.T) {
	server := testServer(t, &Config{
		Problems: func() []engine.Problem {
			return []engine.Problem{{AccountID: "a1", Kind: "github", Description: "boom", Count: 3}}
		},
	})

	resp, err := http.Get(fmt.Sprintf("http://%s/problems", server.GetAddr()))
	if err != nil {
		t.Fatalf("GET /problems failed: %v", err)
	}
	defer resp.Body.Close()

	var problems []engine.Problem
	if err := json.NewDecoder(resp.Body).Decode(&problems); err != nil {
		t.Fatalf("Failed to decode problems: %v", err)
	}
	if len(problems) != 1 || problems[0].AccountID != "a1" {
		t.Errorf("problems = %+v, want one entry for a1", problems)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	server := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", server.GetAddr()), nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the client to register before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sent := engine.Event{
		Type:    engine.EventItemUpdate,
		Kind:    "github",
		ItemID:  "i1",
		Action:  "created",
		Summary: "new issue",
		Time:    time.Now(),
	}
	server.Notify(sent)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	var got engine.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if got.Type != engine.EventItemUpdate || got.ItemID != "i1" {
		t.Errorf("event = %+v, want the broadcast item update", got)
	}
}

func TestNotify_TracksLastPass(t *testing.T) {
	server := testServer(t, nil)

	server.Notify(engine.Event{Type: engine.EventPassComplete, Kind: "github", Time: time.Now()})

	server.lastPassMu.Lock()
	lastPass := server.lastPass
	server.lastPassMu.Unlock()
	if lastPass.IsZero() {
		t.Error("pass completion was not recorded")
	}
}

package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bosun/internal/models"
	"bosun/pkg/logging"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logging.NewLogger())
	go hub.Run()
	return hub
}

func dial(t *testing.T, hub *Hub, streamKey string, initial *models.WsMessage) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, streamKey, initial)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.WsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg models.WsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversToSubscribedStream(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, "studio-1", nil)
	waitForClients(t, hub, 1)

	hub.Broadcast(models.WsMessage{
		Type: models.MessageTypeCurrentPrompt,
		Payload: models.CurrentPromptPayload{
			Prompt: &models.CurrentPrompt{
				Prompt:    models.Prompt{ID: "p1", Content: "a forest", StreamKey: "studio-1"},
				StartedAt: time.Now(),
			},
			StreamKey: "studio-1",
		},
	})

	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeCurrentPrompt {
		t.Fatalf("unexpected message type %s", msg.Type)
	}
}

func TestHubFiltersByStreamKey(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, "studio-2", nil)
	waitForClients(t, hub, 1)

	hub.Broadcast(models.WsMessage{
		Type:    models.MessageTypeRecentPrompts,
		Payload: models.RecentPromptsPayload{StreamKey: "studio-1"},
	})
	hub.Broadcast(models.WsMessage{
		Type:    models.MessageTypeRecentPrompts,
		Payload: models.RecentPromptsPayload{StreamKey: "studio-2"},
	})

	// Only the studio-2 message arrives.
	msg := readMessage(t, conn)
	var payload models.RecentPromptsPayload
	data, _ := json.Marshal(msg.Payload)
	_ = json.Unmarshal(data, &payload)
	if payload.StreamKey != "studio-2" {
		t.Fatalf("expected studio-2 message, got %s", payload.StreamKey)
	}
}

func TestHubSendsInitialState(t *testing.T) {
	hub := startHub(t)
	initial := &models.WsMessage{
		Type: models.MessageTypeInitial,
		Payload: models.InitialStatePayload{
			RecentPrompts: []models.RecentPromptItem{{ID: "p1", Text: "a forest"}},
			StreamKey:     "studio-1",
		},
	}
	conn := dial(t, hub, "studio-1", initial)

	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeInitial {
		t.Fatalf("expected initial message first, got %s", msg.Type)
	}
}

func TestHubTracksClientCount(t *testing.T) {
	hub := startHub(t)

	var lastCount atomic.Int64
	hub.SetConnectionGauge(func(count int) { lastCount.Store(int64(count)) })

	conn := dial(t, hub, "studio-1", nil)
	waitForClients(t, hub, 1)
	if lastCount.Load() != 1 {
		t.Fatalf("expected gauge callback with 1, got %d", lastCount.Load())
	}

	_ = conn.Close()
	waitForClients(t, hub, 0)
}

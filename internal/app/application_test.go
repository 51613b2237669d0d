package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"studyroom/internal/api"
	"studyroom/internal/config"
	"studyroom/internal/hub"
	"studyroom/internal/moderation"
	"studyroom/internal/notify"
	"studyroom/internal/room"
	"studyroom/internal/router"
	"studyroom/internal/websocket"
	"studyroom/pkg/types"
)

// receivedEvent keeps Data raw so each test decodes it to the shape it
// expects.
type receivedEvent struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	httpServer *httptest.Server
	dispatcher *notify.Dispatcher
	directory  *room.Directory
}

// newTestServer wires the full serving stack the way the application
// does, minus the process-level listener and external collaborators.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	logger := zerolog.Nop()

	registry := websocket.NewRegistry(cfg.WebSocket.AllowReplace)
	directory := room.NewDirectory(cfg.Rooms, nil, logger)
	h := hub.NewHub(registry, directory, nil, logger)
	gate := moderation.NewGate(nil, logger)
	dispatcher := notify.NewDispatcher(h, logger)
	msgRouter := router.NewRouter(h, directory, gate, dispatcher, logger)

	apiServer := api.NewServer(directory, h, logger)
	wsHandler := websocket.NewHandler(h, msgRouter, cfg.WebSocket, logger)
	apiServer.Router().Get("/ws/{user_id}", wsHandler.ServeWS)

	server := httptest.NewServer(apiServer)
	t.Cleanup(func() {
		h.Shutdown(context.Background())
		server.Close()
	})
	return &testServer{httpServer: server, dispatcher: dispatcher, directory: directory}
}

func (s *testServer) dial(t *testing.T, userID string) *gorilla.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws/" + userID
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorilla.Conn, kind string, payload interface{}) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(types.Envelope{Kind: kind, Payload: raw}); err != nil {
		t.Fatalf("write %s envelope: %v", kind, err)
	}
}

// awaitEvent reads frames until one of the wanted type arrives.
func awaitEvent(t *testing.T, conn *gorilla.Conn, eventType string) *receivedEvent {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatal(err)
		}
		var event receivedEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return &event
		}
	}
}

func TestChatSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	// Both join the same room; alice sees bob arrive.
	send(t, alice, types.KindRoomJoin, types.RoomPayload{RoomID: "r1"})
	info := awaitEvent(t, alice, types.EventRoomInfo)
	var snapshot types.RoomInfo
	if err := json.Unmarshal(info.Data, &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.ID != "r1" || len(snapshot.Members) != 1 {
		t.Errorf("unexpected room snapshot: %+v", snapshot)
	}

	send(t, bob, types.KindRoomJoin, types.RoomPayload{RoomID: "r1"})
	awaitEvent(t, bob, types.EventRoomInfo)

	joined := awaitEvent(t, alice, types.EventUserJoined)
	var joinEvent types.RoomEvent
	if err := json.Unmarshal(joined.Data, &joinEvent); err != nil {
		t.Fatal(err)
	}
	if joinEvent.UserID != "bob" || joinEvent.RoomID != "r1" {
		t.Errorf("unexpected join event: %+v", joinEvent)
	}

	// A chat message reaches the whole room, sender included.
	send(t, alice, types.KindChat, types.ChatPayload{Content: "hello", RoomID: "r1"})
	for name, conn := range map[string]*gorilla.Conn{"alice": alice, "bob": bob} {
		event := awaitEvent(t, conn, types.EventChatMessage)
		var message types.ChatMessage
		if err := json.Unmarshal(event.Data, &message); err != nil {
			t.Fatal(err)
		}
		if message.SenderID != "alice" || message.Content != "hello" || message.RoomID != "r1" {
			t.Errorf("%s got unexpected chat message: %+v", name, message)
		}
	}

	// alice leaves; bob hears it.
	send(t, alice, types.KindRoomLeave, types.RoomPayload{RoomID: "r1"})
	left := awaitEvent(t, bob, types.EventUserLeft)
	var leaveEvent types.RoomEvent
	if err := json.Unmarshal(left.Data, &leaveEvent); err != nil {
		t.Fatal(err)
	}
	if leaveEvent.UserID != "alice" {
		t.Errorf("unexpected leave event: %+v", leaveEvent)
	}

	// bob leaves too; the emptied room disappears from the directory.
	send(t, bob, types.KindRoomLeave, types.RoomPayload{RoomID: "r1"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := s.directory.Get("r1"); err == room.ErrRoomNotFound {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("empty room never deleted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFlaggedChatStaysWithSender(t *testing.T) {
	s := newTestServer(t)

	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	send(t, alice, types.KindRoomJoin, types.RoomPayload{RoomID: "r1"})
	awaitEvent(t, alice, types.EventRoomInfo)
	send(t, bob, types.KindRoomJoin, types.RoomPayload{RoomID: "r1"})
	awaitEvent(t, bob, types.EventRoomInfo)
	awaitEvent(t, alice, types.EventUserJoined)

	send(t, alice, types.KindChat, types.ChatPayload{Content: "this is hateful", RoomID: "r1"})

	warning := awaitEvent(t, alice, types.EventModerationWarning)
	if warning.Message != "Your message was flagged as inappropriate." {
		t.Errorf("unexpected warning %q", warning.Message)
	}

	// A follow-up clean message arrives before anything flagged would.
	send(t, alice, types.KindChat, types.ChatPayload{Content: "sorry, studying", RoomID: "r1"})
	event := awaitEvent(t, bob, types.EventChatMessage)
	var message types.ChatMessage
	if err := json.Unmarshal(event.Data, &message); err != nil {
		t.Fatal(err)
	}
	if message.Content != "sorry, studying" {
		t.Errorf("flagged content leaked to the room: %+v", message)
	}
}

func TestNotificationOverLiveConnection(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")

	// Give the registry a beat to register the connection.
	time.Sleep(50 * time.Millisecond)
	s.dispatcher.SendToUser(context.Background(), "alice", types.NotificationAchievement, "")

	event := awaitEvent(t, alice, types.EventNotification)
	var notification types.Notification
	if err := json.Unmarshal(event.Data, &notification); err != nil {
		t.Fatal(err)
	}
	if notification.Title != "Achievement Unlocked!" {
		t.Errorf("unexpected notification: %+v", notification)
	}
}

func TestInvalidUserIDRejectedBeforeUpgrade(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws/bad%20user"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure for invalid user id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 response, got %+v", resp)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
}

func TestMalformedFrameKeepsSessionOpen(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")

	if err := alice.WriteMessage(gorilla.TextMessage, []byte("{broken")); err != nil {
		t.Fatal(err)
	}

	// The session survives; normal traffic still works.
	send(t, alice, types.KindRoomJoin, types.RoomPayload{RoomID: "r1"})
	awaitEvent(t, alice, types.EventRoomInfo)
}

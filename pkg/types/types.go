package types

import (
	"encoding/json"
	"time"
)

// Inbound envelope kinds accepted by the message router.
const (
	KindChat         = "chat"
	KindRoomJoin     = "room_join"
	KindRoomLeave    = "room_leave"
	KindNotification = "notification"
)

// Outbound event kinds delivered to clients.
const (
	EventChatMessage       = "chat_message"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventRoomInfo          = "room_info"
	EventModerationWarning = "moderation_warning"
	EventNotification      = "notification"
)

// Notification kinds understood by the dispatcher.
const (
	NotificationAchievement = "achievement"
	NotificationReminder    = "reminder"
	NotificationProgress    = "progress"
	NotificationSystem      = "system"
)

// Envelope is the tagged wrapper around every inbound client message.
// Payload stays raw until the router knows which kind to decode it as.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ChatPayload carries a chat message bound for a room.
type ChatPayload struct {
	Content     string `json:"content"`
	RoomID      string `json:"room_id"`
	MessageType string `json:"message_type,omitempty"`
}

// RoomPayload carries a join or leave request.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// NotificationPayload carries a notification request. TargetUser defaults
// to the sender when empty; Message is only meaningful for the system kind.
type NotificationPayload struct {
	NotificationKind string `json:"notification_kind"`
	TargetUser       string `json:"target_user,omitempty"`
	Message          string `json:"message,omitempty"`
	Broadcast        bool   `json:"broadcast,omitempty"`
}

// Room holds the directory metadata for a study room. The member set is
// owned by the directory and exposed only through snapshots.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MaxMembers  int       `json:"max_members"`
	Private     bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomInfo is a point-in-time view of a room plus its member snapshot.
type RoomInfo struct {
	Room
	Members []string `json:"members"`
}

// ChatMessage is the broadcast form of a moderated chat message.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	RoomID      string    `json:"room_id"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoomEvent announces a membership change to a room.
type RoomEvent struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

// Notification is the delivered form of a notification event.
type Notification struct {
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ModerationResult is the moderation collaborator's verdict on a piece of
// content. Content carries the cleaned text when the collaborator rewrote it.
type ModerationResult struct {
	IsAppropriate bool     `json:"is_appropriate"`
	Content       string   `json:"content"`
	Flags         []string `json:"flags,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// Event is the outbound wrapper written to client transports.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an outbound event with the current timestamp.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Package interfaces defines the seams between the messaging core and its
// collaborators. Components depend on these types, never on each other's
// concrete implementations.
package interfaces

import (
	"context"

	"studyroom/pkg/types"
)

// Connection is a live outbound transport for one user. Implementations
// must serialize writes internally and make Close safe to call repeatedly.
type Connection interface {
	UserID() string
	WriteJSON(v interface{}) error
	Close() error
}

// Moderator is the external content-moderation collaborator. An error or
// unparseable result makes the caller fall back to the local policy; it
// never fails the chat path.
type Moderator interface {
	Moderate(ctx context.Context, content string) (*types.ModerationResult, error)
}

// GraphRecorder mirrors membership and interaction events to an external
// persistence collaborator. Every call is best-effort and must return
// without blocking on the sink; failures are logged, never propagated.
type GraphRecorder interface {
	RecordRoomCreated(roomID string, room *types.Room)
	RecordJoin(userID, roomID string)
	RecordLeave(userID, roomID string)
	RecordInteraction(userID, roomID, kind string)
}

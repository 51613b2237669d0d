package room

import "errors"

// Directory error types
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is at capacity")
	ErrNotAMember    = errors.New("user is not a member of the room")
	ErrInvalidRoomID = errors.New("invalid room ID")
	ErrInvalidUserID = errors.New("invalid user ID")
)

package types

import "regexp"

// Compiled once; identifier validation runs on every connect and join.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

// IsValidUserID checks that a user identifier is usable as a registry key.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 128 {
		return false
	}
	return idRegex.MatchString(userID)
}

// IsValidRoomID checks that a room identifier is usable as a directory key.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 128 {
		return false
	}
	return idRegex.MatchString(roomID)
}

// IsValidKind reports whether kind is one of the envelope kinds the router
// dispatches on. The router still keeps a default arm: an unknown kind is
// logged and ignored, never fatal.
func IsValidKind(kind string) bool {
	switch kind {
	case KindChat, KindRoomJoin, KindRoomLeave, KindNotification:
		return true
	default:
		return false
	}
}

// IsValidNotificationKind reports whether kind maps to a dispatcher template.
func IsValidNotificationKind(kind string) bool {
	switch kind {
	case NotificationAchievement, NotificationReminder, NotificationProgress, NotificationSystem:
		return true
	default:
		return false
	}
}

package router

import "errors"

// Router error types. All of these are caught at the router boundary and
// logged; none of them terminates a connection.
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrMissingRoomID     = errors.New("payload missing room_id")
	ErrEmptyContent      = errors.New("chat payload missing content")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

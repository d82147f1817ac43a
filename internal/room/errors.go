package room

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrAuthRequired means the action needs an identity and none was given.
	ErrAuthRequired = errors.New("authentication required")

	// ErrForbidden means the actor is known but not permitted.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidVisibility is returned for anything other than public or private.
	ErrInvalidVisibility = errors.New("visibility must be public or private")
)

package room

import "errors"

// Operation errors. Each is reported only to the originating connection;
// a failed operation performs no partial mutation and no broadcast.
var (
	ErrRoomNotFound        = errors.New("room does not exist")
	ErrRoomLocked          = errors.New("room is locked")
	ErrNotAuthorized       = errors.New("only the host can perform this action")
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrDuplicateCode is surfaced only if code generation keeps colliding
	// past the retry budget, which should never happen in practice.
	ErrDuplicateCode = errors.New("room code already in use")
)

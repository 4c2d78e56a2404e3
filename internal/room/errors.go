package room

import "talkomatic/pkg/types"

// Room registry failures. All are expected, recoverable conditions reported
// to the originating caller; none leave shared state partially mutated.
var (
	ErrInvalidRoomName     = types.NewError(types.KindInvalidInput, "INVALID_ROOM_NAME", "room name must be 1-30 characters")
	ErrInvalidRoomType     = types.NewError(types.KindInvalidInput, "INVALID_ROOM_TYPE", "room type must be public, semi-private, or private")
	ErrInvalidUsername     = types.NewError(types.KindInvalidInput, "INVALID_USERNAME", "username must be 1-20 printable characters")
	ErrMalformedAccessCode = types.NewError(types.KindInvalidInput, "INVALID_ACCESS_CODE", "access code must be exactly 6 digits")
	ErrAccessCodeMissing   = types.NewError(types.KindInvalidInput, "ACCESS_CODE_MISSING", "semi-private and private rooms require an access code")
	ErrAccessCodeRequired  = types.NewError(types.KindForbidden, "ACCESS_CODE_REQUIRED", "this room requires an access code")
	ErrAccessDenied        = types.NewError(types.KindForbidden, "ACCESS_DENIED", "incorrect access code")
	ErrRoomNotFound        = types.NewError(types.KindNotFound, "ROOM_NOT_FOUND", "room not found")
	ErrRoomFull            = types.NewError(types.KindConflict, "ROOM_FULL", "room is full")
	ErrParticipantNotFound = types.NewError(types.KindNotFound, "PARTICIPANT_NOT_FOUND", "user is not a member of this room")
)

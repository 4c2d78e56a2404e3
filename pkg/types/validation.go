package types

import (
	"regexp"
)

var (
	accessCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)
	usernameRegex   = regexp.MustCompile(`^[^\x00-\x1f]+$`)
)

// MaxRoomNameLength bounds room names for display purposes.
const MaxRoomNameLength = 30

// MaxUsernameLength bounds usernames and locations for display purposes.
const MaxUsernameLength = 20

// IsValidAccessCode reports whether code is exactly six ASCII digits. A
// malformed code is rejected before any room lookup, distinct from a
// well-formed but wrong code.
func IsValidAccessCode(code string) bool {
	return accessCodeRegex.MatchString(code)
}

// IsValidRoomType reports whether t is one of the accepted room types.
func IsValidRoomType(t string) bool {
	switch t {
	case RoomTypePublic, RoomTypeSemiPrivate, RoomTypePrivate:
		return true
	default:
		return false
	}
}

// IsValidRoomName checks room name length bounds.
func IsValidRoomName(name string) bool {
	return len(name) >= 1 && len(name) <= MaxRoomNameLength
}

// IsValidUsername checks username length bounds and rejects control
// characters that would break client rendering.
func IsValidUsername(name string) bool {
	if len(name) < 1 || len(name) > MaxUsernameLength {
		return false
	}
	return usernameRegex.MatchString(name)
}

// IsValidGameType reports whether t is a registered game discriminator.
func IsValidGameType(t string) bool {
	return t == GameTypeTicTacToe
}

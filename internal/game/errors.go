package game

import "talkomatic/pkg/types"

// Game manager failures. A failed operation leaves the session exactly as it
// was before the call.
var (
	ErrUnknownGameType  = types.NewError(types.KindInvalidInput, "UNKNOWN_GAME_TYPE", "unsupported game type")
	ErrGameNotFound     = types.NewError(types.KindNotFound, "GAME_NOT_FOUND", "game not found")
	ErrGameNotAccepting = types.NewError(types.KindStateViolation, "GAME_NOT_ACCEPTING", "game is not accepting players")
	ErrGameFull         = types.NewError(types.KindConflict, "GAME_FULL", "game already has two players")
	ErrAlreadyInGame    = types.NewError(types.KindConflict, "ALREADY_IN_GAME", "user is already in an active game")
	ErrNotPlaying       = types.NewError(types.KindStateViolation, "GAME_NOT_PLAYING", "game is not in progress")
	ErrNotYourTurn      = types.NewError(types.KindForbidden, "NOT_YOUR_TURN", "it is not your turn")
	ErrInvalidPosition  = types.NewError(types.KindInvalidInput, "INVALID_POSITION", "position is outside the board")
	ErrCellOccupied     = types.NewError(types.KindConflict, "CELL_OCCUPIED", "cell is already taken")
	ErrNotEnoughPlayers = types.NewError(types.KindStateViolation, "NOT_ENOUGH_PLAYERS", "game needs two players")
)

package game

import "talkomatic/pkg/types"

// Engine is the capability contract one game variant implements. The manager
// owns everything variant-independent (players, turn order, scores, move
// log, lifecycle); the engine owns only the board and its rules.
type Engine interface {
	// Reset returns the board to its initial state.
	Reset()

	// Place puts symbol at position. Returns ErrInvalidPosition or
	// ErrCellOccupied and changes nothing on failure.
	Place(position int, symbol string) error

	// Terminal reports whether the board has reached an end state. A win
	// reports the winning symbol and line; a draw reports over with an
	// empty winner.
	Terminal() (winner string, line []int, over bool)

	// Board returns the current cells, "" for empty.
	Board() []string
}

// engines is the closed set of registered variants, selected by the
// enumerated game type discriminator at creation time.
var engines = map[string]func() Engine{
	types.GameTypeTicTacToe: newTicTacToe,
}

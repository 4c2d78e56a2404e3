package game

const ticTacToeCells = 9

// winningLines covers the 3 rows, 3 columns, and 2 diagonals.
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

type ticTacToe struct {
	board [ticTacToeCells]string
}

func newTicTacToe() Engine {
	return &ticTacToe{}
}

func (t *ticTacToe) Reset() {
	t.board = [ticTacToeCells]string{}
}

func (t *ticTacToe) Place(position int, symbol string) error {
	if position < 0 || position >= ticTacToeCells {
		return ErrInvalidPosition
	}
	if t.board[position] != "" {
		return ErrCellOccupied
	}
	t.board[position] = symbol
	return nil
}

func (t *ticTacToe) Terminal() (string, []int, bool) {
	for _, line := range winningLines {
		a, b, c := t.board[line[0]], t.board[line[1]], t.board[line[2]]
		if a != "" && a == b && a == c {
			return a, []int{line[0], line[1], line[2]}, true
		}
	}
	for _, cell := range t.board {
		if cell == "" {
			return "", nil, false
		}
	}
	// Full board, no winner: draw.
	return "", nil, true
}

func (t *ticTacToe) Board() []string {
	board := make([]string, ticTacToeCells)
	copy(board, t.board[:])
	return board
}

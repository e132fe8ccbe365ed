package entity

import "strings"

// Mark is the content of a cell, or the result of a board.
type Mark string

const (
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
	PlayerTie Mark = "-"

	EmptyCell Mark = ""
)

// BoardSize is the number of slots in a sub-board and of sub-boards in the big board.
const BoardSize = 9

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Other returns the opponent's mark.
func (that Mark) Other() Mark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

// IsPlayer reports whether the mark belongs to one of the two players.
func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// DetermineResult scores nine slots as a tic-tac-toe board. A slot holds a
// player's mark, EmptyCell when it is still open, or PlayerTie when it is
// closed without an owner. It returns the winning mark, PlayerTie when no
// slot is open and nobody won, and EmptyCell otherwise.
//
// Sub-boards pass their cells; the big board passes the sub-board results.
func DetermineResult(slots [BoardSize]Mark) Mark {
	for _, combo := range WinCombos {
		a, b, c := slots[combo[0]], slots[combo[1]], slots[combo[2]]
		if a.IsPlayer() && a == b && b == c {
			return a
		}
	}

	for _, slot := range slots {
		if slot == EmptyCell {
			return EmptyCell
		}
	}

	return PlayerTie
}

// SubBoard is one of the nine inner grids. Result is EmptyCell while the
// board is in progress, the winner's mark once won, or PlayerTie when drawn.
type SubBoard struct {
	Cells  [BoardSize]Mark `json:"cells"`
	Result Mark            `json:"result"`
}

// IsClosed reports whether the board accepts no more marks.
func (that *SubBoard) IsClosed() bool {
	return that.Result != EmptyCell
}

func (that *SubBoard) place(mark Mark, cell int) {
	that.Cells[cell] = mark
	that.Result = DetermineResult(that.Cells)
}

// String renders the big board row by row, three sub-boards side by side.
func (that *Game) String() string {
	var sb strings.Builder

	for bigRow := 0; bigRow < 3; bigRow++ {
		if bigRow > 0 {
			sb.WriteString("---------------\n")
		}

		for row := 0; row < 3; row++ {
			for bigCol := 0; bigCol < 3; bigCol++ {
				if bigCol > 0 {
					sb.WriteString(" | ")
				}

				cells := that.Boards[bigRow*3+bigCol].Cells
				for col := 0; col < 3; col++ {
					sb.WriteString(cellSymbol(cells[row*3+col]))
				}
			}
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func cellSymbol(mark Mark) string {
	if mark == EmptyCell {
		return "*"
	}
	return string(mark)
}

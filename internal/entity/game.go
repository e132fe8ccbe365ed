package entity

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"
)

const (
	PublicType  = "public"
	PrivateType = "private"
	WithBotType = "bot"
)

// FreeBoard is the ActiveBoard value that lets the next move go to any playable sub-board.
const FreeBoard = -1

var (
	ErrInvalidCell       = errors.New("invalid cell index")
	ErrUnknownGameStatus = errors.New("unknown game status")
)

// Move addresses a cell inside a sub-board. Mark is set for moves kept in the game history.
type Move struct {
	Board int  `json:"board"`
	Cell  int  `json:"cell"`
	Mark  Mark `json:"mark,omitempty"`
}

// Game is the full state of one Ultimate Tic-Tac-Toe match.
type Game struct {
	ID          string              `json:"id"`
	Boards      [BoardSize]SubBoard `json:"boards"`
	ActiveBoard int                 `json:"active_board"`
	Winner      Mark                `json:"winner"`
	Status      string              `json:"status"`
	Turn        Mark                `json:"player_turn"`
	Moves       []Move              `json:"moves,omitempty"`
	Players     []*Player           `json:"players,omitempty"`
	Type        string              `json:"type,omitempty"`
}

func NewGame(id, gameType string) *Game {
	return &Game{
		ID:          id,
		ActiveBoard: FreeBoard,
		Turn:        PlayerX,
		Status:      StatusWaiting,
		Type:        gameType,
	}
}

// Replay rebuilds a game by applying the moves in order. Moves without a
// mark are played by whoever has the turn.
func Replay(id, gameType string, moves []Move) (*Game, error) {
	game := NewGame(id, gameType)

	for i, move := range moves {
		player := move.Mark
		if player == EmptyCell {
			player = game.Turn
		}

		if err := game.ApplyMove(player, move.Board, move.Cell); err != nil {
			return nil, fmt.Errorf("replay move %d: %w", i, err)
		}
	}

	return game, nil
}

// ApplyMove places the player's mark. Every rule is checked before the board
// is touched, so a rejected move leaves the game as it was.
func (that *Game) ApplyMove(player Mark, board, cell int) error {
	if that.IsOver() {
		return apperror.ErrGameOver
	}

	if !inBounds(board) || !inBounds(cell) {
		return fmt.Errorf("%w: board %d, cell %d", ErrInvalidCell, board, cell)
	}

	if that.Turn != player {
		return apperror.ErrNotYourTurn
	}

	if active, ok := that.Constraint(); ok && active != board {
		return fmt.Errorf("%w: next move must be in board %d", apperror.ErrIllegalBoard, active)
	}

	target := &that.Boards[board]
	if target.IsClosed() {
		return fmt.Errorf("%w: board %d is closed", apperror.ErrIllegalBoard, board)
	}

	if target.Cells[cell] != EmptyCell {
		return apperror.ErrCellOccupied
	}

	target.place(player, cell)
	that.Moves = append(that.Moves, Move{Board: board, Cell: cell, Mark: player})

	that.updateGameState(cell)

	return nil
}

// updateGameState recomputes the overall result and routes the next move to
// the sub-board matching the last played cell.
func (that *Game) updateGameState(lastCell int) {
	that.Winner = DetermineResult(that.boardResults())

	if that.Boards[lastCell].IsClosed() {
		that.ActiveBoard = FreeBoard
	} else {
		that.ActiveBoard = lastCell
	}

	if that.IsOver() {
		that.Status = StatusFinished
		return
	}

	that.Status = StatusOngoing
	that.Turn = that.Turn.Other()
}

// LegalMoves lists every playable cell ordered by board, then cell. It is
// empty only once the game is over.
func (that *Game) LegalMoves() []Move {
	moves := make([]Move, 0, BoardSize)
	if that.IsOver() {
		return moves
	}

	for board := range that.Boards {
		if !that.boardPlayable(board) {
			continue
		}

		for cell, mark := range that.Boards[board].Cells {
			if mark == EmptyCell {
				moves = append(moves, Move{Board: board, Cell: cell})
			}
		}
	}

	return moves
}

// IsPlayable reports whether the current player may mark the cell.
func (that *Game) IsPlayable(board, cell int) bool {
	if that.IsOver() || !inBounds(board) || !inBounds(cell) {
		return false
	}

	return that.boardPlayable(board) && that.Boards[board].Cells[cell] == EmptyCell
}

// Constraint returns the sub-board the next move is bound to. ok is false
// when the move is free, including when ActiveBoard points at a closed board.
func (that *Game) Constraint() (int, bool) {
	if !inBounds(that.ActiveBoard) || that.Boards[that.ActiveBoard].IsClosed() {
		return FreeBoard, false
	}

	return that.ActiveBoard, true
}

func (that *Game) boardPlayable(board int) bool {
	if that.Boards[board].IsClosed() {
		return false
	}

	active, ok := that.Constraint()
	return !ok || active == board
}

func (that *Game) boardResults() [BoardSize]Mark {
	var results [BoardSize]Mark
	for i := range that.Boards {
		results[i] = that.Boards[i].Result
	}
	return results
}

func (that *Game) Cell(board, cell int) Mark {
	return that.Boards[board].Cells[cell]
}

func (that *Game) BoardResult(board int) Mark {
	return that.Boards[board].Result
}

// Result is EmptyCell while the game is in progress.
func (that *Game) Result() Mark {
	return that.Winner
}

func (that *Game) IsOver() bool {
	return that.Winner != EmptyCell
}

func (that *Game) CurrentTurn() Mark {
	return that.Turn
}

func (that *Game) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Game) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Game) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Game) ConfirmOngoingState() error {
	switch {
	case that.IsWaiting():
		return apperror.ErrGameIsNotStarted
	case that.IsFinished():
		return apperror.ErrGameOver
	case that.IsOngoing():
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownGameStatus, that.Status)
	}
}

func (that *Game) IsPublic() bool {
	return that.Type == PublicType
}

func (that *Game) IsWithBot() bool {
	return that.Type == WithBotType
}

func (that *Game) GetRandomMarks() (Mark, Mark) {
	if rand.Intn(2) == 0 { //nolint: gosec // it's ok
		return PlayerX, PlayerO
	}
	return PlayerO, PlayerX
}

func (that *Game) PlayerByID(id string) (*Player, bool) {
	for _, player := range that.Players {
		if player.ID == id {
			return player, true
		}
	}
	return nil, false
}

func inBounds(index int) bool {
	return index >= 0 && index < BoardSize
}

package apperror

import "errors"

var (
	ErrGameOver     = errors.New("game is already over")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrIllegalBoard = errors.New("sub-board is not playable")
	ErrCellOccupied = errors.New("cell is already occupied")

	ErrGameIsNotStarted  = errors.New("game is not started")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrNoActiveGames     = errors.New("no active games")
	ErrNotInGame         = errors.New("player is not in a game")
	ErrUnknownGameType   = errors.New("unknown game type")

	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
)

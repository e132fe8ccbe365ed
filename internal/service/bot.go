package service

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

var (
	ErrBotNotFound      = errors.New("bot player not found")
	ErrNoAvailableMoves = errors.New("no available moves")
)

// BotService plays for the seat held by a bot. It has no strategy and
// picks uniformly among the legal moves.
type BotService interface {
	MakeTurn(game *entity.Game) error
}

type botService struct{}

func NewBotService() BotService {
	return &botService{}
}

func (that *botService) MakeTurn(game *entity.Game) error {
	var botPlayer *entity.Player
	for _, player := range game.Players {
		if player.IsBot() {
			botPlayer = player
			break
		}
	}

	if botPlayer == nil {
		return ErrBotNotFound
	}

	moves := game.LegalMoves()
	if len(moves) == 0 {
		return ErrNoAvailableMoves
	}

	move := moves[rand.Intn(len(moves))] //nolint: gosec // it's ok

	if err := game.ApplyMove(botPlayer.Mark, move.Board, move.Cell); err != nil {
		return fmt.Errorf("bot failed to make turn: %w", err)
	}

	return nil
}

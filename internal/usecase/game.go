package usecase

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

// GameUseCase is everything a transport needs to run a session.
type GameUseCase interface {
	GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error)

	NewGame(ctx context.Context, playerID, gameType string) (*entity.Game, error)
	JoinGame(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	LeaveGame(ctx context.Context, playerID string) (*entity.Game, error)

	GetGameByID(ctx context.Context, gameID string) (*entity.Game, error)
	GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error)
	LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error)

	MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error)
}

type playerService interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)
}

type gamePlayService interface {
	JoinGameByID(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	CreateOrJoinPublicGame(ctx context.Context, playerID string) (*entity.Game, error)
	GetOrCreateGame(ctx context.Context, playerID, gameType string) (*entity.Game, error)
	GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error)
	GetGameByID(ctx context.Context, gameID string) (*entity.Game, error)
	LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error)
	EndGame(ctx context.Context, playerID string) (*entity.Game, error)
	MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error)
}

type gameUseCase struct {
	playerService   playerService
	gamePlayService gamePlayService
}

func NewGameUseCase(playerService playerService, gamePlayService gamePlayService) GameUseCase {
	return &gameUseCase{
		playerService:   playerService,
		gamePlayService: gamePlayService,
	}
}

func (that *gameUseCase) GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error) {
	player, err := that.playerService.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create player: %w", err)
	}

	return player, nil
}

// NewGame puts public players into matchmaking. Private and bot games are
// opened for the player unless they already sit in a game.
func (that *gameUseCase) NewGame(ctx context.Context, playerID, gameType string) (*entity.Game, error) {
	switch gameType {
	case entity.PublicType:
		game, err := that.gamePlayService.CreateOrJoinPublicGame(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("failed to find public game: %w", err)
		}

		return game, nil
	case entity.PrivateType, entity.WithBotType:
		game, err := that.gamePlayService.GetOrCreateGame(ctx, playerID, gameType)
		if err != nil {
			return nil, fmt.Errorf("failed to get or create game: %w", err)
		}

		return game, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperror.ErrUnknownGameType, gameType)
	}
}

func (that *gameUseCase) JoinGame(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	game, err := that.gamePlayService.JoinGameByID(ctx, gameID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to join game: %w", err)
	}

	return game, nil
}

func (that *gameUseCase) LeaveGame(ctx context.Context, playerID string) (*entity.Game, error) {
	game, err := that.gamePlayService.EndGame(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to leave game: %w", err)
	}

	return game, nil
}

func (that *gameUseCase) GetGameByID(ctx context.Context, gameID string) (*entity.Game, error) {
	game, err := that.gamePlayService.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

func (that *gameUseCase) GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error) {
	game, err := that.gamePlayService.GetGameByPlayerID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player game: %w", err)
	}

	return game, nil
}

func (that *gameUseCase) LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error) {
	moves, err := that.gamePlayService.LegalMoves(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list legal moves: %w", err)
	}

	return moves, nil
}

// MakeTurn forwards the move. On a rule violation the unchanged game is
// returned together with the error.
func (that *gameUseCase) MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error) {
	game, err := that.gamePlayService.MakeTurn(ctx, playerID, board, cell)
	if err != nil {
		return game, fmt.Errorf("failed to make turn: %w", err)
	}

	return game, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
)

type GamePlayService interface {
	JoinGameByID(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	CreateOrJoinPublicGame(ctx context.Context, playerID string) (*entity.Game, error)

	GetOrCreateGame(ctx context.Context, playerID, gameType string) (*entity.Game, error)
	GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error)
	GetGameByID(ctx context.Context, gameID string) (*entity.Game, error)
	LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error)
	CleanupGame(ctx context.Context, game *entity.Game)
	ReleasePlayers(ctx context.Context, game *entity.Game)
	EndGame(ctx context.Context, playerID string) (*entity.Game, error)

	MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error)
}

type gamePlayService struct {
	logger *slog.Logger

	playerService PlayerService
	gameService   GameService
	botService    BotService

	locks *gameLocks
}

func NewGamePlayService(logger *slog.Logger, playerService PlayerService, gameService GameService, botService BotService) GamePlayService {
	return &gamePlayService{
		logger:        logger,
		playerService: playerService,
		gameService:   gameService,
		botService:    botService,
		locks:         newGameLocks(),
	}
}

// MakeTurn applies the player's move and, in bot games, the bot's answer.
// The game is returned along with rule violations so callers can re-render it.
func (that *gamePlayService) MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	if !player.InGame() {
		return nil, apperror.ErrNotInGame
	}

	unlock := that.locks.Lock(player.GameID)
	defer unlock()

	game, err := that.currentGame(ctx, player)
	if err != nil {
		return nil, err
	}

	if err = game.ConfirmOngoingState(); err != nil {
		return game, fmt.Errorf("failed to make turn: %w", err)
	}

	if err = game.ApplyMove(player.Mark, board, cell); err != nil {
		return game, fmt.Errorf("failed to make turn: %w", err)
	}

	if !game.IsOver() && game.IsWithBot() {
		if err = that.botService.MakeTurn(game); err != nil {
			return nil, fmt.Errorf("bot failed to make turn: %w", err)
		}
	}

	if err = that.gameService.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	if game.IsOver() {
		that.ReleasePlayers(ctx, game)
	}

	return game, nil
}

func (that *gamePlayService) JoinGameByID(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	return that.joinGame(ctx, gameID, player)
}

// joinGame seats the player as O. The caller holds the player's lock.
func (that *gamePlayService) joinGame(ctx context.Context, gameID string, player *entity.Player) (*entity.Game, error) {
	unlock := that.locks.Lock(gameID)
	defer unlock()

	game, err := that.gameService.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if player.GameID == game.ID {
		return game, nil
	}

	if player.InGame() {
		return nil, fmt.Errorf("%w: player already plays game %s", apperror.ErrGameAlreadyExists, player.GameID)
	}

	if len(game.Players) >= 2 || !game.IsWaiting() {
		return nil, fmt.Errorf("%w: game id %s", apperror.ErrGameAlreadyExists, gameID)
	}

	player.GameID = game.ID
	player.Mark = entity.PlayerO
	if err = that.playerService.UpdatePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	game.Status = entity.StatusOngoing
	game.Players = append(game.Players, player)
	if err = that.gameService.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	return game, nil
}

// CreateOrJoinPublicGame seats the player in the oldest waiting public game,
// or opens a new one when nobody is waiting.
func (that *gamePlayService) CreateOrJoinPublicGame(ctx context.Context, playerID string) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	game, err := that.currentGame(ctx, player)
	if err == nil {
		return game, nil
	}

	if !errors.Is(err, apperror.ErrNotInGame) {
		return nil, err
	}

	waiting, err := that.gameService.GetWaitingPublicGame(ctx)
	if errors.Is(err, apperror.ErrNoActiveGames) {
		return that.createGame(ctx, player, entity.PublicType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get waiting public game: %w", err)
	}

	game, err = that.joinGame(ctx, waiting.ID, player)
	if errors.Is(err, apperror.ErrGameAlreadyExists) {
		// somebody else took the seat first
		return that.createGame(ctx, player, entity.PublicType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to join public game: %w", err)
	}

	return game, nil
}

// GetOrCreateGame returns the player's current game or opens a new one of the given type.
func (that *gamePlayService) GetOrCreateGame(ctx context.Context, playerID, gameType string) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	game, err := that.currentGame(ctx, player)
	if errors.Is(err, apperror.ErrNotInGame) {
		return that.createGame(ctx, player, gameType)
	}

	return game, err
}

func (that *gamePlayService) GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	return that.currentGame(ctx, player)
}

// currentGame loads the game the player is seated in. A player pointing at a
// game that no longer exists is detached and reported as not in a game.
// The caller holds the player's lock.
func (that *gamePlayService) currentGame(ctx context.Context, player *entity.Player) (*entity.Game, error) {
	if !player.InGame() {
		return nil, apperror.ErrNotInGame
	}

	game, err := that.gameService.GetGameByID(ctx, player.GameID)
	if errors.Is(err, apperror.ErrGameNotFound) {
		that.logger.Warn("player referenced a missing game",
			"method", "currentGame", "playerID", player.ID, "gameID", player.GameID)

		player.GameID = ""
		player.Mark = entity.EmptyCell
		if err = that.playerService.UpdatePlayer(ctx, player); err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}

		return nil, apperror.ErrNotInGame
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// lockPlayer serializes changes to one player's record. Player locks are
// always taken before game locks.
func (that *gamePlayService) lockPlayer(playerID string) func() {
	return that.locks.Lock("player:" + playerID)
}

func (that *gamePlayService) GetGameByID(ctx context.Context, gameID string) (*entity.Game, error) {
	game, err := that.gameService.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// LegalMoves lists the moves the player on turn may make. A game still waiting
// for its opponent reports the opening moves, a finished one reports none.
func (that *gamePlayService) LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error) {
	game, err := that.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if game.IsFinished() {
		return []entity.Move{}, nil
	}

	return game.LegalMoves(), nil
}

func (that *gamePlayService) createGame(ctx context.Context, player *entity.Player, gameType string) (*entity.Game, error) {
	game, updatedPlayer, err := that.gameService.CreateGame(ctx, player, gameType)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	if err = that.playerService.UpdatePlayer(ctx, updatedPlayer); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	if game.IsWithBot() {
		if err = that.addBotToGame(ctx, game); err != nil {
			return nil, fmt.Errorf("failed to add bot to game: %w", err)
		}
	}

	return game, nil
}

func (that *gamePlayService) addBotToGame(ctx context.Context, game *entity.Game) error {
	botPlayer := entity.NewBotPlayer(pkg.GenerateNewSessionID(), game.ID)

	game.Players = append(game.Players, botPlayer)
	game.Status = entity.StatusOngoing

	playerMark, botMark := game.GetRandomMarks()
	for _, player := range game.Players {
		if !player.IsBot() {
			player.Mark = playerMark
			if err := that.playerService.UpdatePlayer(ctx, player); err != nil {
				return fmt.Errorf("failed to update player: %w", err)
			}
		}
	}
	botPlayer.Mark = botMark

	if err := that.playerService.UpdatePlayer(ctx, botPlayer); err != nil {
		return fmt.Errorf("failed to update bot player: %w", err)
	}

	if botMark == entity.PlayerX {
		if err := that.botService.MakeTurn(game); err != nil {
			return fmt.Errorf("bot failed to make first turn: %w", err)
		}
	}

	if err := that.gameService.UpdateGame(ctx, game); err != nil {
		return fmt.Errorf("failed to update game with bot: %w", err)
	}

	return nil
}

// EndGame closes the player's game early, e.g. when they leave it.
func (that *gamePlayService) EndGame(ctx context.Context, playerID string) (*entity.Game, error) {
	unlockPlayer := that.lockPlayer(playerID)
	defer unlockPlayer()

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	if !player.InGame() {
		return nil, apperror.ErrNotInGame
	}

	unlock := that.locks.Lock(player.GameID)
	defer unlock()

	game, err := that.currentGame(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	game.Status = entity.StatusFinished
	that.CleanupGame(ctx, game)

	return game, nil
}

// CleanupGame removes the game and frees its players for a new one.
func (that *gamePlayService) CleanupGame(ctx context.Context, game *entity.Game) {
	log := that.logger.With("method", "cleanupGame", "gameID", game.ID)

	if err := that.gameService.DeleteGame(ctx, game.ID); err != nil {
		log.Error("failed to delete game", "error", err)
	}

	that.ReleasePlayers(ctx, game)
}

// ReleasePlayers detaches every seated player from the game. The stored game
// itself is kept so its outcome stays readable until it expires.
func (that *gamePlayService) ReleasePlayers(ctx context.Context, game *entity.Game) {
	log := that.logger.With("method", "releasePlayers", "gameID", game.ID)

	for _, player := range game.Players {
		released := *player
		released.GameID = ""
		released.Mark = entity.EmptyCell

		if err := that.playerService.UpdatePlayer(ctx, &released); err != nil {
			log.Error("failed to update", "player", player.ID, "error", err)
		}
	}
}

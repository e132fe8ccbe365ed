package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

// waitingPublicGamesKey is a Redis list of public game IDs still looking for an opponent.
const waitingPublicGamesKey = "games:public:waiting"

var ErrGameNotFound = apperror.ErrGameNotFound

type GameRepository interface {
	CreateOrUpdate(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	GetWaitingPublicGame(ctx context.Context) (*entity.Game, error)
	DeleteByID(ctx context.Context, id string) error
}

type dbGame struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGameRepository(client *redis.Client, ttl time.Duration) GameRepository {
	return &dbGame{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbGame) CreateOrUpdate(ctx context.Context, game *entity.Game) error {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, gameKey(game.ID), gameJSON, that.ttl)
		pipe.LRem(ctx, waitingPublicGamesKey, 0, game.ID)

		if game.IsPublic() && game.IsWaiting() {
			pipe.RPush(ctx, waitingPublicGamesKey, game.ID)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	response, err := that.client.Get(ctx, gameKey(id)).Result()

	if errors.Is(err, redis.Nil) {
		return &entity.Game{}, ErrGameNotFound
	}

	if err != nil {
		return &entity.Game{}, fmt.Errorf("failed to get game by id: %w", err)
	}

	var existingGame entity.Game
	if err = json.Unmarshal([]byte(response), &existingGame); err != nil {
		return &entity.Game{}, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &existingGame, nil
}

// GetWaitingPublicGame returns the oldest public game still waiting for a
// second player. Expired or already started games are dropped from the queue.
func (that *dbGame) GetWaitingPublicGame(ctx context.Context) (*entity.Game, error) {
	ids, err := that.client.LRange(ctx, waitingPublicGamesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting games: %w", err)
	}

	for _, id := range ids {
		game, err := that.GetByID(ctx, id)
		if err != nil && !errors.Is(err, ErrGameNotFound) {
			return nil, err
		}

		if err == nil && game.IsPublic() && game.IsWaiting() {
			return game, nil
		}

		if err = that.client.LRem(ctx, waitingPublicGamesKey, 0, id).Err(); err != nil {
			return nil, fmt.Errorf("failed to drop stale waiting game: %w", err)
		}
	}

	return nil, apperror.ErrNoActiveGames
}

func (that *dbGame) DeleteByID(ctx context.Context, id string) error {
	var deleted *redis.IntCmd

	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, gameKey(id))
		pipe.LRem(ctx, waitingPublicGamesKey, 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete game by ID: %w", err)
	}

	if deleted.Val() == 0 {
		return ErrGameNotFound
	}

	return nil
}

func gameKey(id string) string {
	return "game:" + id
}

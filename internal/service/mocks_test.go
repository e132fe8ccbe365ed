package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/stretchr/testify/mock"
)

type mockPlayerRepo struct {
	mock.Mock
}

func (that *mockPlayerRepo) CreateOrUpdate(ctx context.Context, player *entity.Player) error {
	args := that.Called(ctx, player)
	return args.Error(0)
}

func (that *mockPlayerRepo) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	args := that.Called(ctx, id)
	player, _ := args.Get(0).(*entity.Player)
	return player, args.Error(1)
}

type mockGameRepo struct {
	mock.Mock
}

func (that *mockGameRepo) CreateOrUpdate(ctx context.Context, game *entity.Game) error {
	args := that.Called(ctx, game)
	return args.Error(0)
}

func (that *mockGameRepo) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	args := that.Called(ctx, id)
	game, _ := args.Get(0).(*entity.Game)
	return game, args.Error(1)
}

func (that *mockGameRepo) GetWaitingPublicGame(ctx context.Context) (*entity.Game, error) {
	args := that.Called(ctx)
	game, _ := args.Get(0).(*entity.Game)
	return game, args.Error(1)
}

func (that *mockGameRepo) DeleteByID(ctx context.Context, id string) error {
	args := that.Called(ctx, id)
	return args.Error(0)
}

// memoryStore keeps JSON copies the way Redis does, so callers never share pointers with it.
type memoryStore struct {
	mu      sync.Mutex
	games   map[string][]byte
	players map[string][]byte
	waiting []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		games:   make(map[string][]byte),
		players: make(map[string][]byte),
	}
}

type memoryGameRepo struct{ store *memoryStore }

type memoryPlayerRepo struct{ store *memoryStore }

func (that *memoryGameRepo) CreateOrUpdate(_ context.Context, game *entity.Game) error {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	that.store.games[game.ID] = data

	that.store.waiting = removeID(that.store.waiting, game.ID)
	if game.IsPublic() && game.IsWaiting() {
		that.store.waiting = append(that.store.waiting, game.ID)
	}

	return nil
}

func (that *memoryGameRepo) GetByID(_ context.Context, id string) (*entity.Game, error) {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	return that.load(id)
}

func (that *memoryGameRepo) load(id string) (*entity.Game, error) {
	data, ok := that.store.games[id]
	if !ok {
		return &entity.Game{}, errGameNotFound
	}

	var game entity.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}

	return &game, nil
}

func (that *memoryGameRepo) GetWaitingPublicGame(_ context.Context) (*entity.Game, error) {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	for _, id := range that.store.waiting {
		if game, err := that.load(id); err == nil {
			return game, nil
		}
	}

	return nil, apperror.ErrNoActiveGames
}

func (that *memoryGameRepo) DeleteByID(_ context.Context, id string) error {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	if _, ok := that.store.games[id]; !ok {
		return errGameNotFound
	}

	delete(that.store.games, id)
	that.store.waiting = removeID(that.store.waiting, id)

	return nil
}

func (that *memoryPlayerRepo) CreateOrUpdate(_ context.Context, player *entity.Player) error {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	that.store.players[player.ID] = data

	return nil
}

func (that *memoryPlayerRepo) GetByID(_ context.Context, id string) (*entity.Player, error) {
	that.store.mu.Lock()
	defer that.store.mu.Unlock()

	data, ok := that.store.players[id]
	if !ok {
		return &entity.Player{}, errPlayerNotFound
	}

	var player entity.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, err
	}

	return &player, nil
}

func removeID(ids []string, id string) []string {
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return kept
}

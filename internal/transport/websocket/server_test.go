package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

type mockGameUseCase struct {
	mock.Mock
}

func (that *mockGameUseCase) GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error) {
	args := that.Called(ctx, playerID)
	player, _ := args.Get(0).(*entity.Player)
	return player, args.Error(1)
}

func (that *mockGameUseCase) NewGame(ctx context.Context, playerID, gameType string) (*entity.Game, error) {
	args := that.Called(ctx, playerID, gameType)
	return gameArg(args)
}

func (that *mockGameUseCase) JoinGame(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	args := that.Called(ctx, gameID, playerID)
	return gameArg(args)
}

func (that *mockGameUseCase) LeaveGame(ctx context.Context, playerID string) (*entity.Game, error) {
	args := that.Called(ctx, playerID)
	return gameArg(args)
}

func (that *mockGameUseCase) GetGameByPlayerID(ctx context.Context, playerID string) (*entity.Game, error) {
	args := that.Called(ctx, playerID)
	return gameArg(args)
}

func (that *mockGameUseCase) LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error) {
	args := that.Called(ctx, gameID)
	moves, _ := args.Get(0).([]entity.Move)
	return moves, args.Error(1)
}

func (that *mockGameUseCase) MakeTurn(ctx context.Context, playerID string, board, cell int) (*entity.Game, error) {
	args := that.Called(ctx, playerID, board, cell)
	return gameArg(args)
}

func gameArg(args mock.Arguments) (*entity.Game, error) {
	game, _ := args.Get(0).(*entity.Game)
	return game, args.Error(1)
}

type testServer struct {
	url     string
	useCase *mockGameUseCase
}

func newTestServer(t *testing.T, reconnectTimeout time.Duration) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	useCase := &mockGameUseCase{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	httpServer := httptest.NewServer(New(logger, useCase, reconnectTimeout).Handler(ctx))
	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})

	return &testServer{
		url:     "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
		useCase: useCase,
	}
}

func (that *testServer) dial(t *testing.T) (*websocket.Conn, *http.Response) {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(that.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, resp
}

func send(t *testing.T, conn *websocket.Conn, action string, payload any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Action: action, Payload: body}))
}

func receiveMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var message Message
	require.NoError(t, conn.ReadJSON(&message))

	return message
}

func receive(t *testing.T, conn *websocket.Conn) (string, Payload) {
	t.Helper()

	message := receiveMessage(t, conn)

	var payload Payload
	if len(message.Payload) > 0 {
		require.NoError(t, json.Unmarshal(message.Payload, &payload))
	}

	return message.Action, payload
}

func connectAs(t *testing.T, srv *testServer, player *entity.Player) *websocket.Conn {
	t.Helper()

	srv.useCase.On("GetOrCreatePlayer", mock.Anything, player.ID).Return(player, nil).Once()

	conn, _ := srv.dial(t)
	send(t, conn, actionConnect, Payload{Player: &entity.Player{ID: player.ID}})

	action, payload := receive(t, conn)
	require.Equal(t, actionConnect, action)
	require.Equal(t, player.ID, payload.Player.ID)

	return conn
}

func startedGame(x, o *entity.Player) *entity.Game {
	game := entity.NewGame("g1", entity.PrivateType)
	game.Status = entity.StatusOngoing
	game.Players = []*entity.Player{x, o}
	return game
}

func intPtr(v int) *int {
	return &v
}

func TestServer_Connect(t *testing.T) {
	t.Run("Issues a session cookie and returns a new player", func(t *testing.T) {
		// Given: a client without a session
		srv := newTestServer(t, time.Minute)
		srv.useCase.On("GetOrCreatePlayer", mock.Anything, "").Return(&entity.Player{ID: "p1"}, nil).Once()

		// When: it connects
		conn, resp := srv.dial(t)
		send(t, conn, actionConnect, Payload{})
		action, payload := receive(t, conn)

		// Then: the handshake carries a session cookie and the player comes back
		assert.Contains(t, resp.Header.Get("Set-Cookie"), sessionCookie+"=")
		assert.Equal(t, actionConnect, action)
		require.NotNil(t, payload.Player)
		assert.Equal(t, "p1", payload.Player.ID)
		assert.Nil(t, payload.Game)
	})

	t.Run("Returns the running game to a returning player", func(t *testing.T) {
		// Given: a player already seated in a game
		srv := newTestServer(t, time.Minute)
		x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
		game := startedGame(x, &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"})

		srv.useCase.On("GetOrCreatePlayer", mock.Anything, "p1").Return(x, nil).Once()
		srv.useCase.On("GetGameByPlayerID", mock.Anything, "p1").Return(game, nil).Once()

		// When: they reconnect
		conn, _ := srv.dial(t)
		send(t, conn, actionConnect, Payload{Player: &entity.Player{ID: "p1"}})
		_, payload := receive(t, conn)

		// Then: the game is sent without the seat list
		require.NotNil(t, payload.Game)
		assert.Equal(t, "g1", payload.Game.ID)
		assert.Nil(t, payload.Game.Players)
	})
}

func TestServer_Errors(t *testing.T) {
	t.Run("Unknown actions are answered with an error", func(t *testing.T) {
		srv := newTestServer(t, time.Minute)
		conn, _ := srv.dial(t)

		send(t, conn, "game:resign", Payload{})
		action, payload := receive(t, conn)

		assert.Equal(t, "game:resign", action)
		assert.Equal(t, "unknown action", payload.Error)
	})

	t.Run("Malformed messages are answered with an error", func(t *testing.T) {
		srv := newTestServer(t, time.Minute)
		conn, _ := srv.dial(t)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		action, payload := receive(t, conn)

		assert.Equal(t, actionError, action)
		assert.Equal(t, "malformed message", payload.Error)
	})

	t.Run("Turns need a player, a board and a cell", func(t *testing.T) {
		srv := newTestServer(t, time.Minute)
		conn, _ := srv.dial(t)

		send(t, conn, actionGameTurn, Payload{Cell: intPtr(4)})
		_, payload := receive(t, conn)
		assert.Equal(t, errPlayerRequired.Error(), payload.Error)

		send(t, conn, actionGameTurn, Payload{Player: &entity.Player{ID: "p1"}, Cell: intPtr(4)})
		_, payload = receive(t, conn)
		assert.Equal(t, "board and cell are required", payload.Error)
	})

	t.Run("Unknown game types are rejected", func(t *testing.T) {
		srv := newTestServer(t, time.Minute)
		conn, _ := srv.dial(t)
		srv.useCase.On("NewGame", mock.Anything, "p1", "ranked").Return(nil, apperror.ErrUnknownGameType).Once()

		send(t, conn, actionGameNew, Payload{Player: &entity.Player{ID: "p1"}, Game: &entity.Game{Type: "ranked"}})
		_, payload := receive(t, conn)

		assert.Equal(t, "unknown game type", payload.Error)
	})
}

func TestServer_GameFlow(t *testing.T) {
	t.Run("Joining broadcasts the started game to both players", func(t *testing.T) {
		// Given: X waiting in a game and O connected
		srv := newTestServer(t, time.Minute)
		x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
		o := &entity.Player{ID: "p2"}
		xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
		oConn := connectAs(t, srv, o)

		seatedO := &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"}
		srv.useCase.On("JoinGame", mock.Anything, "g1", "p2").Return(startedGame(x, seatedO), nil).Once()

		// When: O joins
		send(t, oConn, actionGameJoin, Payload{Player: o, Game: &entity.Game{ID: "g1"}})

		// Then: each player receives the game with their own mark
		action, payload := receive(t, xConn)
		assert.Equal(t, actionGameJoin, action)
		assert.Equal(t, entity.PlayerX, payload.Player.Mark)
		assert.Equal(t, entity.StatusOngoing, payload.Game.Status)

		_, payload = receive(t, oConn)
		assert.Equal(t, entity.PlayerO, payload.Player.Mark)
	})

	t.Run("A turn is broadcast to both players", func(t *testing.T) {
		// Given: two connected players in a running game
		srv := newTestServer(t, time.Minute)
		x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
		o := &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"}
		xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
		oConn := connectAs(t, srv, &entity.Player{ID: "p2"})

		game := startedGame(x, o)
		require.NoError(t, game.ApplyMove(entity.PlayerX, 4, 2))
		srv.useCase.On("MakeTurn", mock.Anything, "p1", 4, 2).Return(game, nil).Once()

		// When: X plays cell 2 of board 4
		send(t, xConn, actionGameTurn, Payload{Player: x, Board: intPtr(4), Cell: intPtr(2)})

		// Then: both sides see the move and the new constraint
		for _, conn := range []*websocket.Conn{xConn, oConn} {
			action, payload := receive(t, conn)
			assert.Equal(t, actionGameTurn, action)
			assert.Equal(t, entity.PlayerX, payload.Game.Boards[4].Cells[2])
			assert.Equal(t, 2, payload.Game.ActiveBoard)
			assert.Equal(t, entity.PlayerO, payload.Game.Turn)
		}
	})

	t.Run("A rejected turn only answers the sender", func(t *testing.T) {
		// Given: the move hits an occupied cell
		srv := newTestServer(t, time.Minute)
		x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
		o := &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"}
		xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
		oConn := connectAs(t, srv, &entity.Player{ID: "p2"})

		game := startedGame(x, o)
		srv.useCase.On("MakeTurn", mock.Anything, "p2", 4, 4).Return(game, apperror.ErrCellOccupied).Once()
		srv.useCase.On("LegalMoves", mock.Anything, "g1").Return([]entity.Move{{Board: 4, Cell: 0}}, nil).Once()

		// When: O sends the move, then asks X's connection for the legal moves
		send(t, oConn, actionGameTurn, Payload{Player: o, Board: intPtr(4), Cell: intPtr(4)})
		action, payload := receive(t, oConn)

		// Then: O gets the rule violation with the current game
		assert.Equal(t, actionGameTurn, action)
		assert.Equal(t, "cell is already occupied", payload.Error)
		require.NotNil(t, payload.Game)

		// And: X's next message is the moves reply, not a turn broadcast
		send(t, xConn, actionGameMoves, Payload{Game: &entity.Game{ID: "g1"}})
		message := receiveMessage(t, xConn)
		assert.Equal(t, actionGameMoves, message.Action)
		assert.JSONEq(t, `{"moves":[{"board":4,"cell":0}]}`, string(message.Payload))
	})

	t.Run("A finished game answers with an empty moves list", func(t *testing.T) {
		// Given: a game with no legal moves left
		srv := newTestServer(t, time.Minute)
		xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
		srv.useCase.On("LegalMoves", mock.Anything, "g1").Return(nil, nil).Once()

		// When: X asks for the legal moves
		send(t, xConn, actionGameMoves, Payload{Game: &entity.Game{ID: "g1"}})

		// Then: the reply still carries the moves key
		message := receiveMessage(t, xConn)
		assert.Equal(t, actionGameMoves, message.Action)
		assert.JSONEq(t, `{"moves":[]}`, string(message.Payload))
	})

	t.Run("Leaving notifies both players", func(t *testing.T) {
		srv := newTestServer(t, time.Minute)
		x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
		o := &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"}
		xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
		oConn := connectAs(t, srv, &entity.Player{ID: "p2"})

		ended := startedGame(x, o)
		ended.Status = entity.StatusFinished
		srv.useCase.On("LeaveGame", mock.Anything, "p2").Return(ended, nil).Once()

		send(t, oConn, actionGameLeave, Payload{Player: o})

		for _, conn := range []*websocket.Conn{xConn, oConn} {
			action, payload := receive(t, conn)
			assert.Equal(t, actionGameLeave, action)
			assert.Equal(t, gameStatusLeave, payload.Game.Status)
		}
	})
}

func TestServer_OpponentOut(t *testing.T) {
	// Given: two players in a game and a short reconnect timeout
	srv := newTestServer(t, 50*time.Millisecond)
	x := &entity.Player{ID: "p1", Mark: entity.PlayerX, GameID: "g1"}
	o := &entity.Player{ID: "p2", Mark: entity.PlayerO, GameID: "g1"}
	xConn := connectAs(t, srv, &entity.Player{ID: "p1"})
	oConn := connectAs(t, srv, &entity.Player{ID: "p2"})

	ended := startedGame(x, o)
	ended.Status = entity.StatusFinished
	srv.useCase.On("LeaveGame", mock.Anything, "p2").Return(ended, nil).Once()
	srv.useCase.On("LeaveGame", mock.Anything, "p1").Return(nil, apperror.ErrNotInGame).Maybe()

	// When: O drops and does not come back
	require.NoError(t, oConn.Close())

	// Then: X is told the opponent is gone
	action, payload := receive(t, xConn)
	assert.Equal(t, actionGameLeave, action)
	assert.Equal(t, gameStatusOpponentOut, payload.Game.Status)
}

func TestTurnErrorMessage(t *testing.T) {
	cases := map[error]string{
		apperror.ErrGameOver:         "game is already over",
		apperror.ErrNotYourTurn:      "it's not your turn",
		apperror.ErrIllegalBoard:     "this sub-board is not playable now",
		apperror.ErrCellOccupied:     "cell is already occupied",
		entity.ErrInvalidCell:        "board and cell must be between 0 and 8",
		apperror.ErrGameIsNotStarted: "waiting for an opponent",
		apperror.ErrNotInGame:        "you are not in a game",
		io.EOF:                       "failed to make turn",
	}

	for err, expected := range cases {
		assert.Equal(t, expected, turnErrorMessage(err), err.Error())
	}
}

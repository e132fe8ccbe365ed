package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

const (
	gameStatusOpponentOut = "opponent_out"
	gameStatusLeave       = "leave"
)

func (that *Server) handleConnect(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleConnect")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	var playerID string
	if payloadReq.Player != nil {
		playerID = payloadReq.Player.ID
	}

	player, err := that.uGame.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		log.Error("failed to create or get player", "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to create a new player")
	}

	that.register(player.ID, conn)

	payloadResp := Payload{Player: player}

	if player.InGame() {
		game, err := that.uGame.GetGameByPlayerID(ctx, player.ID)
		if err != nil {
			log.Error("failed to get game", "gameID", player.GameID, "error", err)
			return that.sendErrorResponse(conn, msg.Action, "failed to get the game")
		}

		payloadResp.Game = maskGameDetails(game)
	}

	if err = conn.send(msg.Action, payloadResp); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("successfully connected player", "playerID", player.ID)

	return nil
}

func (that *Server) handleNewGame(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleNewGame")

	payloadReq, err := decodePlayerPayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, err.Error())
	}

	if payloadReq.Game == nil {
		return that.sendErrorResponse(conn, msg.Action, "game is required")
	}

	playerID := payloadReq.Player.ID
	that.register(playerID, conn)

	game, err := that.uGame.NewGame(ctx, playerID, payloadReq.Game.Type)
	if errors.Is(err, apperror.ErrUnknownGameType) {
		return that.sendErrorResponse(conn, msg.Action, "unknown game type")
	}

	if err != nil {
		log.Error("failed to create or join game", "type", payloadReq.Game.Type, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to create a new game")
	}

	that.broadcast(log.With("gameID", game.ID), msg.Action, game)

	return nil
}

func (that *Server) handleJoinGame(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleJoinGame")

	payloadReq, err := decodePlayerPayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, err.Error())
	}

	if payloadReq.Game == nil || payloadReq.Game.ID == "" {
		return that.sendErrorResponse(conn, msg.Action, "game id is required")
	}

	playerID := payloadReq.Player.ID
	that.register(playerID, conn)

	game, err := that.uGame.JoinGame(ctx, payloadReq.Game.ID, playerID)
	if errors.Is(err, apperror.ErrGameAlreadyExists) {
		return that.sendErrorResponse(conn, msg.Action, "game is not open for joining")
	}

	if err != nil {
		log.Error("failed to join game", "playerID", playerID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, fmt.Sprintf("failed to join game %s", payloadReq.Game.ID))
	}

	that.broadcast(log.With("gameID", game.ID), msg.Action, game)

	return nil
}

func (that *Server) handleGameTurn(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleGameTurn")

	payloadReq, err := decodePlayerPayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, err.Error())
	}

	if payloadReq.Board == nil || payloadReq.Cell == nil {
		return that.sendErrorResponse(conn, msg.Action, "board and cell are required")
	}

	playerID := payloadReq.Player.ID
	that.register(playerID, conn)

	game, err := that.uGame.MakeTurn(ctx, playerID, *payloadReq.Board, *payloadReq.Cell)
	if err != nil {
		log.Info("turn rejected", "playerID", playerID, "error", err)

		payloadResp := Payload{Error: turnErrorMessage(err)}
		if game != nil {
			payloadResp.Game = maskGameDetails(game)
		}

		return conn.send(msg.Action, payloadResp)
	}

	log = log.With("gameID", game.ID)
	that.broadcast(log, msg.Action, game)

	if game.IsOver() {
		log.Info("game finished", "winner", game.Result())
	}

	return nil
}

func (that *Server) handleGameLeave(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleGameLeave")

	payloadReq, err := decodePlayerPayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, err.Error())
	}

	playerID := payloadReq.Player.ID
	that.register(playerID, conn)

	game, err := that.uGame.LeaveGame(ctx, playerID)
	if err != nil {
		log.Error("failed to end game", "playerID", playerID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "game doesn't exist")
	}

	that.notifyLeave(log.With("gameID", game.ID), game, "", gameStatusLeave)

	return nil
}

func (that *Server) handleGameMoves(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleGameMoves")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	var gameID string
	switch {
	case payloadReq.Game != nil && payloadReq.Game.ID != "":
		gameID = payloadReq.Game.ID
	case payloadReq.Player != nil && payloadReq.Player.ID != "":
		game, err := that.uGame.GetGameByPlayerID(ctx, payloadReq.Player.ID)
		if err != nil {
			return that.sendErrorResponse(conn, msg.Action, "you are not in a game")
		}
		gameID = game.ID
	default:
		return that.sendErrorResponse(conn, msg.Action, "game or player is required")
	}

	moves, err := that.uGame.LegalMoves(ctx, gameID)
	if err != nil {
		log.Error("failed to list legal moves", "gameID", gameID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to get the game")
	}

	if moves == nil {
		moves = []entity.Move{}
	}

	return conn.send(msg.Action, movesPayload{Moves: moves})
}

func (that *Server) handleDisconnect(conn *connection) {
	log := that.logger.With("method", "handleDisconnect")

	that.connectionsMutex.Lock()
	var disconnectedPlayerID string
	for playerID, existing := range that.connections {
		if existing == conn {
			disconnectedPlayerID = playerID
			break
		}
	}

	if disconnectedPlayerID == "" {
		that.connectionsMutex.Unlock()
		return
	}

	delete(that.connections, disconnectedPlayerID)
	that.connectionsMutex.Unlock()

	log.Info("player disconnected", "playerID", disconnectedPlayerID)

	that.disconnectedMutex.Lock()
	that.disconnectedPlayers[disconnectedPlayerID] = time.Now()
	that.disconnectedMutex.Unlock()
}

// handleOpponentOut ends the game of a player who did not come back and tells the opponent.
func (that *Server) handleOpponentOut(ctx context.Context, playerID string) {
	log := that.logger.With("method", "handleOpponentOut", "playerID", playerID)

	game, err := that.uGame.LeaveGame(ctx, playerID)
	if errors.Is(err, apperror.ErrNotInGame) {
		return
	}

	if err != nil {
		log.Error("failed to finish game", "error", err)
		return
	}

	that.notifyLeave(log.With("gameID", game.ID), game, playerID, gameStatusOpponentOut)
}

// notifyLeave sends game:leave to every connected human except skipID.
func (that *Server) notifyLeave(log *slog.Logger, game *entity.Game, skipID, status string) {
	for _, player := range game.Players {
		if player.IsBot() || player.ID == skipID {
			continue
		}

		conn, ok := that.connection(player.ID)
		if !ok {
			continue
		}

		payloadResp := Payload{Game: maskGameDetails(game)}
		payloadResp.Game.Status = status

		if err := conn.send(actionGameLeave, payloadResp); err != nil {
			log.Error("failed to send game:leave message", "playerID", player.ID, "error", err)
		}
	}

	log.Info("game left", "status", status)
}

// broadcast sends the game to every seated human with their own player record.
func (that *Server) broadcast(log *slog.Logger, action string, game *entity.Game) {
	masked := maskGameDetails(game)

	for _, player := range game.Players {
		if player.IsBot() {
			continue
		}

		conn, ok := that.connection(player.ID)
		if !ok {
			log.Warn("connection not found for player", "playerID", player.ID)
			continue
		}

		if err := conn.send(action, Payload{Player: player, Game: masked}); err != nil {
			log.Error("failed to send game update", "playerID", player.ID, "error", err)
		}
	}
}

func (that *Server) register(playerID string, conn *connection) {
	that.connectionsMutex.Lock()
	that.connections[playerID] = conn
	that.connectionsMutex.Unlock()

	that.playerReconnected(playerID)
}

func (that *Server) connection(playerID string) (*connection, bool) {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	conn, ok := that.connections[playerID]
	return conn, ok
}

func (that *Server) playerReconnected(playerID string) {
	that.disconnectedMutex.Lock()
	defer that.disconnectedMutex.Unlock()
	delete(that.disconnectedPlayers, playerID)
}

func (that *Server) sendErrorResponse(conn *connection, action, errorMsg string) error {
	if err := conn.send(action, Payload{Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}

// turnErrorMessage tells the client which rule the move broke.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrGameOver):
		return "game is already over"
	case errors.Is(err, apperror.ErrNotYourTurn):
		return "it's not your turn"
	case errors.Is(err, apperror.ErrIllegalBoard):
		return "this sub-board is not playable now"
	case errors.Is(err, apperror.ErrCellOccupied):
		return "cell is already occupied"
	case errors.Is(err, entity.ErrInvalidCell):
		return "board and cell must be between 0 and 8"
	case errors.Is(err, apperror.ErrGameIsNotStarted):
		return "waiting for an opponent"
	case errors.Is(err, apperror.ErrNotInGame):
		return "you are not in a game"
	default:
		return "failed to make turn"
	}
}

func decodePayload(msg *Message) (*Payload, error) {
	var payload Payload
	if len(msg.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &payload, nil
}

var (
	errMalformedPayload = errors.New("malformed payload")
	errPlayerRequired   = errors.New("player is required")
)

func decodePlayerPayload(msg *Message) (*Payload, error) {
	payload, err := decodePayload(msg)
	if err != nil {
		return nil, errMalformedPayload
	}

	if payload.Player == nil || payload.Player.ID == "" {
		return nil, errPlayerRequired
	}

	return payload, nil
}

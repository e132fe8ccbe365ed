package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
)

type uGame interface {
	GetGameByID(ctx context.Context, gameID string) (*entity.Game, error)
	LegalMoves(ctx context.Context, gameID string) ([]entity.Move, error)
}

type Handlers interface {
	Ping(w http.ResponseWriter, _ *http.Request)

	Game(w http.ResponseWriter, r *http.Request)
	LegalMoves(w http.ResponseWriter, r *http.Request)
	Board(w http.ResponseWriter, r *http.Request)
}

type handlers struct {
	logger *slog.Logger
	uGame  uGame
}

func NewHandlers(logger *slog.Logger, uGame uGame) Handlers {
	return &handlers{
		logger: logger,
		uGame:  uGame,
	}
}

type gameResponse struct {
	ID          string                            `json:"id"`
	Status      string                            `json:"status"`
	Winner      entity.Mark                       `json:"winner"`
	Turn        entity.Mark                       `json:"player_turn"`
	ActiveBoard int                               `json:"active_board"`
	Boards      [entity.BoardSize]entity.SubBoard `json:"boards"`
	Moves       []entity.Move                     `json:"moves"`
}

type movesResponse struct {
	Moves []entity.Move `json:"moves"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *handlers) Ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *handlers) Game(w http.ResponseWriter, r *http.Request) {
	game, ok := that.loadGame(w, r)
	if !ok {
		return
	}

	moves := game.Moves
	if moves == nil {
		moves = []entity.Move{}
	}

	that.writeJSON(w, http.StatusOK, gameResponse{
		ID:          game.ID,
		Status:      game.Status,
		Winner:      game.Result(),
		Turn:        game.CurrentTurn(),
		ActiveBoard: game.ActiveBoard,
		Boards:      game.Boards,
		Moves:       moves,
	})
}

func (that *handlers) LegalMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := that.uGame.LegalMoves(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, err)
		return
	}

	if moves == nil {
		moves = []entity.Move{}
	}

	that.writeJSON(w, http.StatusOK, movesResponse{Moves: moves})
}

// Board renders the game as text, handy with curl.
func (that *handlers) Board(w http.ResponseWriter, r *http.Request) {
	game, ok := that.loadGame(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(game.String())); err != nil {
		that.logger.Error("failed to write board", "error", err)
	}
}

func (that *handlers) loadGame(w http.ResponseWriter, r *http.Request) (*entity.Game, bool) {
	game, err := that.uGame.GetGameByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, err)
		return nil, false
	}

	return game, true
}

func (that *handlers) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperror.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: "game not found"})
		return
	}

	that.logger.Error("request failed", "error", err)
	that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

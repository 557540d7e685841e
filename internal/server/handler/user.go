package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/polygens/wagerd/internal/domain"
)

// UserReader provides user detail and the leaderboard.
type UserReader interface {
	UserDetail(ctx context.Context, id string, opts domain.ListOpts) (domain.User, []domain.Bet, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// UserHandler serves the public user endpoints.
type UserHandler struct {
	users  UserReader
	logger *slog.Logger
}

func NewUserHandler(users UserReader, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// userDetailResponse bundles a user with their bet history.
type userDetailResponse struct {
	User domain.User  `json:"user"`
	Bets []domain.Bet `json:"bets"`
}

// GetUser returns a user together with their bets.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	user, bets, err := h.users.UserDetail(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, userDetailResponse{User: user, Bets: bets})
}

// Leaderboard returns the top users by balance.
// GET /api/leaderboard?limit=10
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.users.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "leaderboard failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

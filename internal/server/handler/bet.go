package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/service"
)

// BetPlacer places bets.
type BetPlacer interface {
	PlaceBet(ctx context.Context, in service.PlaceBetInput) (domain.Bet, error)
}

// BetReader fetches single bets.
type BetReader interface {
	GetBet(ctx context.Context, id string) (domain.Bet, error)
}

// CashOuter quotes and executes early exits.
type CashOuter interface {
	QuoteBet(ctx context.Context, betID string) (service.Quote, error)
	Execute(ctx context.Context, betID, userID string) (service.Receipt, error)
}

// BetHandler serves bet placement, lookup, and cash-out endpoints.
type BetHandler struct {
	wagers   BetPlacer
	bets     BetReader
	cashouts CashOuter
	logger   *slog.Logger
}

func NewBetHandler(wagers BetPlacer, bets BetReader, cashouts CashOuter, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		wagers:   wagers,
		bets:     bets,
		cashouts: cashouts,
		logger:   logger,
	}
}

// placeBetRequest is the JSON body for POST /api/bets.
type placeBetRequest struct {
	UserID         string  `json:"userId"`
	MarketID       string  `json:"marketId"`
	Amount         float64 `json:"amount"`
	Side           string  `json:"side,omitempty"`
	OptionID       string  `json:"optionId,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

// PlaceBet places a stake on a market.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "userId and marketId are required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	key := req.IdempotencyKey
	if hdr := r.Header.Get("Idempotency-Key"); hdr != "" {
		key = hdr
	}

	bet, err := h.wagers.PlaceBet(r.Context(), service.PlaceBetInput{
		UserID:         req.UserID,
		MarketID:       req.MarketID,
		Amount:         req.Amount,
		Side:           domain.BetSide(req.Side),
		OptionID:       req.OptionID,
		IdempotencyKey: key,
	})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "place bet failed",
				slog.String("user_id", req.UserID),
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns a single bet.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}
	bet, err := h.bets.GetBet(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// QuoteCashOut prices the early exit of a bet at current odds. The quote is
// informational; the binding price is computed again during execution.
// GET /api/bets/{id}/cashout
func (h *BetHandler) QuoteCashOut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}
	quote, err := h.cashouts.QuoteBet(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// executeCashOutRequest is the JSON body for POST /api/bets/{id}/cashout.
// The caller names the bet's owner; the service rejects a mismatch.
type executeCashOutRequest struct {
	UserID string `json:"userId"`
}

// ExecuteCashOut cashes out an active bet on behalf of its owner.
// POST /api/bets/{id}/cashout
func (h *BetHandler) ExecuteCashOut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}
	var req executeCashOutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	receipt, err := h.cashouts.Execute(r.Context(), id, req.UserID)
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "cash-out failed",
				slog.String("bet_id", id), slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

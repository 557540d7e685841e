package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/service"
	"github.com/polygens/wagerd/internal/treasury"
)

// MarketAdmin covers the privileged market operations.
type MarketAdmin interface {
	CreateMarket(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	TreasuryStatus(ctx context.Context) (treasury.Status, error)
}

// Resolver settles markets.
type Resolver interface {
	Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (service.SettlementResult, error)
}

// AdminHandler serves the privileged endpoints behind the API-key guard.
type AdminHandler struct {
	markets    MarketAdmin
	settlement Resolver
	logger     *slog.Logger
}

func NewAdminHandler(markets MarketAdmin, settlement Resolver, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		markets:    markets,
		settlement: settlement,
		logger:     logger,
	}
}

// createMarketRequest is the JSON body for POST /api/admin/markets.
type createMarketRequest struct {
	Question string    `json:"question"`
	Category string    `json:"category"`
	Type     string    `json:"type"`
	EndDate  time.Time `json:"endDate"`
	Trending bool      `json:"trending"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// CreateMarket opens a new market.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), service.CreateMarketInput{
		Question: req.Question,
		Category: req.Category,
		Type:     domain.MarketType(req.Type),
		EndDate:  req.EndDate,
		Trending: req.Trending,
		ImageURL: req.ImageURL,
		Options:  req.Options,
	})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "create market failed",
				slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets returns every market, resolved included.
// GET /api/admin/markets
func (h *AdminHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, err := h.markets.ListAll(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// resolveRequest is the JSON body for POST /api/admin/resolve. Outcome is
// "yes" or "no" for binary markets; optionId names the winning option for
// multiple-choice markets.
type resolveRequest struct {
	MarketID string `json:"marketId"`
	Outcome  string `json:"outcome,omitempty"`
	OptionID string `json:"optionId,omitempty"`
}

// ResolveMarket settles a market under the declared outcome.
// POST /api/admin/resolve
func (h *AdminHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "marketId is required")
		return
	}

	var outcome domain.Outcome
	switch {
	case req.OptionID != "":
		outcome = domain.OptionOutcome(req.OptionID)
	case req.Outcome == "yes":
		outcome = domain.YesOutcome()
	case req.Outcome == "no":
		outcome = domain.NoOutcome()
	default:
		writeError(w, http.StatusBadRequest, `outcome must be "yes", "no", or an optionId`)
		return
	}

	result, err := h.settlement.Resolve(r.Context(), req.MarketID, outcome)
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "resolve failed",
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Treasury reports the treasury address and live balance.
// GET /api/admin/treasury
func (h *AdminHandler) Treasury(w http.ResponseWriter, r *http.Request) {
	st, err := h.markets.TreasuryStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "treasury status failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/polygens/wagerd/internal/domain"
)

// MarketReader defines what the market handler needs from the service layer.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type MarketReader interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
}

// MarketHandler serves the public market endpoints.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns open markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListOpen(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count markets failed",
			slog.String("error", err.Error()))
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

// GetMarket returns a single market with its options.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "get market failed",
				slog.String("market_id", id), slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

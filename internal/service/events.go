package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/polygens/wagerd/internal/domain"
)

// Signal bus channels. The WebSocket hub subscribes to all three.
const (
	ChannelMarkets     = "markets"
	ChannelBets        = "bets"
	ChannelSettlements = "settlements"
)

// Event is the envelope published on the signal bus after every state
// change.
type Event struct {
	Type     string    `json:"type"`
	MarketID string    `json:"marketId,omitempty"`
	BetID    string    `json:"betId,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// publishEvent marshals and publishes an event. Fan-out is best effort; a
// bus failure is logged and never fails the operation that produced the
// event.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, ev Event) {
	if bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.ErrorContext(ctx, "marshal event",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.ErrorContext(ctx, "publish event",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

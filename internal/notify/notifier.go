// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Settlement results, reconcile-flagged transfers and
// treasury shortfalls are the events operators care about; delivery is best
// effort and never blocks the engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event names routed through the Notifier.
const (
	EventMarketResolved    = "market_resolved"
	EventReconcileRequired = "reconcile_required"
	EventError             = "error"
)

// Sender is a single delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an event out to every registered sender. An allow-list of
// event names filters what gets forwarded; an empty list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered
// to the given event names.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify forwards the message to all senders if the event passes the filter.
// Individual sender failures are logged, never returned; one broken channel
// must not take the others down.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

// MarketResolved announces a completed settlement.
func (n *Notifier) MarketResolved(ctx context.Context, marketID string, winners, losers int, totalPaid float64) {
	n.Notify(ctx, EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("market %s settled: %d won, %d lost, %.4f paid out",
			marketID, winners, losers, totalPaid))
}

// ReconcileRequired flags a committed transfer with no matching local
// record. These need a human.
func (n *Notifier) ReconcileRequired(ctx context.Context, intentID, signature string, amount float64) {
	n.Notify(ctx, EventReconcileRequired,
		"Reconciliation required",
		fmt.Sprintf("intent %s committed on ledger (sig %s, amount %.4f) but the local write failed",
			intentID, signature, amount))
}

// OperationError reports a failed engine operation.
func (n *Notifier) OperationError(ctx context.Context, op string, err error) {
	n.Notify(ctx, EventError,
		"Operation failed",
		fmt.Sprintf("%s: %v", op, err))
}

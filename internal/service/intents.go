package service

import (
	"context"
	"log/slog"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/notify"
)

// failIntent marks an intent failed after a transfer that never moved funds.
func failIntent(ctx context.Context, intents domain.IntentStore, logger *slog.Logger, id string) {
	if err := intents.SetStatus(ctx, id, domain.IntentFailed, ""); err != nil {
		logger.ErrorContext(ctx, "mark intent failed",
			slog.String("intent", id), slog.String("error", err.Error()))
	}
}

// markReconcile flags a committed transfer whose dependent local write
// failed, audits it, and alerts operators. Reconcile intents are never
// retried by the engine.
func markReconcile(
	ctx context.Context,
	intents domain.IntentStore,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
	intent domain.TransferIntent,
	signature string,
) {
	if err := intents.SetStatus(ctx, intent.ID, domain.IntentReconcile, signature); err != nil {
		logger.ErrorContext(ctx, "mark intent reconcile",
			slog.String("intent", intent.ID), slog.String("error", err.Error()))
	}
	if err := audit.Log(ctx, "reconcile_required", map[string]any{
		"intent_id": intent.ID,
		"kind":      string(intent.Kind),
		"bet_id":    intent.BetID,
		"amount":    intent.Amount,
		"signature": signature,
	}); err != nil {
		logger.ErrorContext(ctx, "audit reconcile", slog.String("error", err.Error()))
	}
	if notifier != nil {
		notifier.ReconcileRequired(ctx, intent.ID, signature, intent.Amount)
	}
}

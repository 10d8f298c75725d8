package checkout

import (
	"context"
	"errors"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/repository"
	"go.uber.org/zap"
)

// Recorder receives the outcome of every settled payment attempt.
type Recorder interface {
	Record(ctx context.Context, outcome *domain.Outcome) error
}

type OutcomeStore interface {
	RecordOutcome(ctx context.Context, outcome *domain.Outcome) error
}

// LedgerRecorder writes outcomes to the checkout ledger, which also queues
// them on the outbox.
type LedgerRecorder struct {
	store OutcomeStore
}

func NewLedgerRecorder(store OutcomeStore) *LedgerRecorder {
	return &LedgerRecorder{store: store}
}

func (r *LedgerRecorder) Record(ctx context.Context, outcome *domain.Outcome) error {
	err := r.store.RecordOutcome(ctx, outcome)
	if errors.Is(err, repository.ErrDuplicateOutcome) {
		return nil
	}
	return err
}

// LogRecorder only logs outcomes. Used when no ledger database is set up.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, outcome *domain.Outcome) error {
	r.logger.Info("checkout outcome",
		zap.String("attempt_id", outcome.AttemptID),
		zap.String("session_id", outcome.SessionID),
		zap.String("user_id", outcome.UserID),
		zap.String("method", outcome.Method.String()),
		zap.String("status", outcome.Status.String()),
		zap.String("total", outcome.Totals.Total.StringFixed(2)),
		zap.String("reason", outcome.Reason),
	)
	return nil
}

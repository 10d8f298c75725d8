package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleOutcome() *domain.Outcome {
	return &domain.Outcome{
		AttemptID:  "att-1",
		SessionID:  "sess-1",
		UserID:     "user-1",
		Method:     domain.PaymentMethodZipPay,
		Status:     domain.OutcomeSucceeded,
		Totals:     domain.Totals{Total: decimal.NewFromInt(200)},
		OccurredAt: time.Now(),
	}
}

func TestLedgerRecorder(t *testing.T) {
	store := &mockOutcomeStore{}
	r := NewLedgerRecorder(store)

	assert.NoError(t, r.Record(context.Background(), sampleOutcome()))

	store.err = repository.ErrDuplicateOutcome
	assert.NoError(t, r.Record(context.Background(), sampleOutcome()))

	store.err = errors.New("connection refused")
	assert.Error(t, r.Record(context.Background(), sampleOutcome()))
	assert.Equal(t, 3, store.calls)
}

func TestLogRecorder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewLogRecorder(zap.New(core))

	assert.NoError(t, r.Record(context.Background(), sampleOutcome()))

	entries := logs.FilterMessage("checkout outcome").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "SUCCEEDED", fields["status"])
		assert.Equal(t, "200.00", fields["total"])
		assert.Equal(t, "zip_pay", fields["method"])
	}
}

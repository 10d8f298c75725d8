package payment

import (
	"context"
	"testing"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterpay_CreateOrder(t *testing.T) {
	be := newMockBackend().reply(afterpayCreatePath, `{"redirectUrl":"https://afterpay.example/checkout","token":"AP-9"}`)
	p := NewAfterpay(be)

	order, err := p.CreateOrder(context.Background(), samplePayload())

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodAfterpay, p.Method())
	assert.Equal(t, "https://afterpay.example/checkout", order.RedirectURL)
	assert.Equal(t, "AP-9", order.ProviderOrderID)
	req := be.LastBody(afterpayCreatePath).(orderRequest)
	assert.Equal(t, "afterpay", req.PaymentMethodName)
	assert.Zero(t, req.PaymentMethod)
}

func TestZipPay_CreateOrder(t *testing.T) {
	be := newMockBackend().reply(zipPayCreatePath, `{"redirectUrl":"https://zip.example/checkout","orderId":"Z-1"}`)

	order, err := NewZipPay(be).CreateOrder(context.Background(), samplePayload())

	require.NoError(t, err)
	assert.Equal(t, "Z-1", order.ProviderOrderID)
	req := be.LastBody(zipPayCreatePath).(orderRequest)
	assert.Equal(t, zipPayMethodCode, req.PaymentMethod)
}

func TestRedirectProvider_CreateOrderFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider func(Poster) *RedirectProvider
		path     string
		be       func(*mockBackend)
		want     string
	}{
		{"afterpay no redirect", NewAfterpay, afterpayCreatePath, func(m *mockBackend) { m.reply(afterpayCreatePath, `{}`) }, "No redirect URL returned from server"},
		{"zip no redirect", NewZipPay, zipPayCreatePath, func(m *mockBackend) { m.reply(zipPayCreatePath, `{"redirectUrl":"  "}`) }, "No redirect URL returned from server"},
		{"afterpay fallback", NewAfterpay, afterpayCreatePath, func(m *mockBackend) { m.fail(afterpayCreatePath, backend.ErrUnavailable) }, "Failed to create Afterpay order"},
		{"zip fallback", NewZipPay, zipPayCreatePath, func(m *mockBackend) { m.fail(zipPayCreatePath, backend.ErrUnavailable) }, "Failed to start Zip Pay checkout"},
		{"backend message", NewZipPay, zipPayCreatePath, func(m *mockBackend) { m.fail(zipPayCreatePath, &backend.Error{Status: 422, Message: "Amount too low"}) }, "Amount too low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newMockBackend()
			tt.be(be)

			_, err := tt.provider(be).CreateOrder(context.Background(), samplePayload())

			require.Error(t, err)
			assert.Equal(t, tt.want, UserMessage(err, ""))
			assert.Equal(t, 1, be.CallsTo(tt.path))
		})
	}
}

func TestRedirectProvider_ConfirmAndNotifyMakeNoCalls(t *testing.T) {
	be := newMockBackend()
	p := NewAfterpay(be)

	ref, err := p.Confirm(context.Background(), Order{ProviderOrderID: "AP-9"})
	require.NoError(t, err)
	assert.Equal(t, "AP-9", ref)
	assert.NoError(t, p.NotifyFailed(context.Background(), Order{}))
	assert.Empty(t, be.calls)
}

func TestRedirectProvider_Classify(t *testing.T) {
	p := NewZipPay(newMockBackend())

	assert.Equal(t, SignalSuccess, p.Classify("storefront://payment-success?ref=1"))
	assert.Equal(t, SignalCancel, p.Classify("storefront://payment-cancel"))
	assert.Equal(t, SignalNone, p.Classify("storefront://paypal-success"))
}

package domain

import "fmt"

type PaymentMethod string

const (
	PaymentMethodNone     PaymentMethod = ""
	PaymentMethodPayPal   PaymentMethod = "paypal"
	PaymentMethodAfterpay PaymentMethod = "afterpay"
	PaymentMethodZipPay   PaymentMethod = "zip_pay"
	// PaymentMethodCashOnDelivery is accepted by the storefront but has no
	// provider handoff in this service.
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) String() string {
	if m == PaymentMethodNone {
		return "none"
	}
	return string(m)
}

func (m PaymentMethod) IsNone() bool {
	return m == PaymentMethodNone
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodPayPal, PaymentMethodAfterpay, PaymentMethodZipPay, PaymentMethodCashOnDelivery:
		return m, nil
	case "", "none":
		return PaymentMethodNone, nil
	default:
		return PaymentMethodNone, fmt.Errorf("unknown payment method %q", s)
	}
}

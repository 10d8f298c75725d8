package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type ShippingMethod int

const (
	ShippingStandardDelivery ShippingMethod = iota
	ShippingLocalPickup
)

// IsPickup reports whether the method is collected in store and never
// needs a shipping quote.
func (m ShippingMethod) IsPickup() bool {
	return m == ShippingLocalPickup
}

func (m ShippingMethod) Valid() bool {
	return m == ShippingStandardDelivery || m == ShippingLocalPickup
}

func (m ShippingMethod) String() string {
	switch m {
	case ShippingStandardDelivery:
		return "standard_delivery"
	case ShippingLocalPickup:
		return "local_pickup"
	default:
		return fmt.Sprintf("shipping_method(%d)", int(m))
	}
}

// ParseShippingMethod accepts the names produced by String.
func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch s {
	case "standard_delivery":
		return ShippingStandardDelivery, nil
	case "local_pickup":
		return ShippingLocalPickup, nil
	default:
		return 0, fmt.Errorf("unknown shipping method %q", s)
	}
}

// ShippingSelection is a confirmed shipping method with its resolved price.
type ShippingSelection struct {
	Method ShippingMethod  `json:"method"`
	Price  decimal.Decimal `json:"price"`
}

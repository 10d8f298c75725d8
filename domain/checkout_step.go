package domain

type CheckoutStep string

const (
	CheckoutStepAddress         CheckoutStep = "ADDRESS"
	CheckoutStepShipping        CheckoutStep = "SHIPPING"
	CheckoutStepPayment         CheckoutStep = "PAYMENT"
	CheckoutStepPaymentInFlight CheckoutStep = "PAYMENT_IN_FLIGHT"
	CheckoutStepCompleted       CheckoutStep = "COMPLETED"
)

var stepTransitions = map[CheckoutStep][]CheckoutStep{
	CheckoutStepAddress:         {CheckoutStepShipping},
	CheckoutStepShipping:        {CheckoutStepAddress, CheckoutStepPayment},
	CheckoutStepPayment:         {CheckoutStepShipping, CheckoutStepPaymentInFlight},
	CheckoutStepPaymentInFlight: {CheckoutStepPayment, CheckoutStepCompleted},
}

func (s CheckoutStep) IsTerminal() bool {
	return s == CheckoutStepCompleted
}

// Previous is the step reached by backward navigation. The address step has
// no predecessor and returns itself.
func (s CheckoutStep) Previous() CheckoutStep {
	switch s {
	case CheckoutStepShipping:
		return CheckoutStepAddress
	case CheckoutStepPayment:
		return CheckoutStepShipping
	case CheckoutStepPaymentInFlight:
		return CheckoutStepPayment
	default:
		return s
	}
}

// String representation (for logging)
func (s CheckoutStep) String() string {
	return string(s)
}

func CanTransitionTo(from, to CheckoutStep) bool {
	for _, next := range stepTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

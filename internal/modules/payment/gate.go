package payment

import "context"

// Gate is the payment provider. Amounts are in minor currency units.
type Gate interface {
	// Initialize opens a checkout for amount under reference and returns where
	// to send the payer.
	Initialize(ctx context.Context, amount int64, reference string) (Initialization, error)
	// Verify asks the provider for the outcome of the checkout opened under
	// reference.
	Verify(ctx context.Context, reference string) (Verification, error)
}

type Initialization struct {
	RedirectURL     string
	ProviderOrderID string
}

// Verification is the provider's view of a checkout. Pending means the payer
// has not finished yet; Amount is zero when the provider did not report it.
type Verification struct {
	Paid    bool
	Pending bool
	Amount  int64
}

package domain

import (
	"context"
	"errors"
)

type OutcomeStatus string

const (
	OutcomeApproved  OutcomeStatus = "approved"
	OutcomeCancelled OutcomeStatus = "cancelled"
	// OutcomePending is only reported by Verify while the payer has not finished.
	OutcomePending OutcomeStatus = "pending"
)

// Checkout is the hand-off to the provider. Reference is the idempotency token.
type Checkout struct {
	Reference string
	Amount    int64
	Currency  string
	Email     string
	Metadata  map[string]string

	// Set by the gateway while the checkout waits on the payer.
	Provider         string
	AuthorizationURL string
}

// Outcome is the terminal result reported by the provider.
type Outcome struct {
	Status           OutcomeStatus
	GatewayReference string
	Amount           int64
	Currency         string
}

func (o Outcome) Approved() bool { return o.Status == OutcomeApproved }

// Gateway captures funds for a checkout. Initiate blocks until the payer
// approves or cancels, or ctx is done.
type Gateway interface {
	Provider() string
	Initiate(ctx context.Context, checkout Checkout) (Outcome, error)
}

// PendingLister reports checkouts still waiting on the payer.
type PendingLister interface {
	Pending() []Checkout
}

// Forgetter drops whatever a gateway retains for a settled reference.
type Forgetter interface {
	Forget(reference string)
}

// Verifier re-queries the provider for a reference after the fact.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Outcome, error)
}

var (
	ErrUnknownProvider    = errors.New("unknown_provider")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrInvalidCheckout    = errors.New("invalid_checkout")
	ErrCheckoutNotFound   = errors.New("checkout_not_found")
	ErrCheckoutExists     = errors.New("checkout_exists")
	ErrVerifyUnsupported  = errors.New("verify_unsupported")
)

// Package interactive is a gateway whose checkouts are approved or cancelled
// by a separate call, the way a payer closes a hosted payment popup.
package interactive

import (
	"context"
	"strings"
	"sync"

	"github.com/smallbiznis/levy/internal/gateway/domain"
)

const Provider = "interactive"

type Hub struct {
	mu       sync.Mutex
	waiters  map[string]*waiter
	resolved map[string]domain.Outcome
}

type waiter struct {
	checkout domain.Checkout
	done     chan domain.Outcome
}

func NewHub() *Hub {
	return &Hub{
		waiters:  map[string]*waiter{},
		resolved: map[string]domain.Outcome{},
	}
}

func (h *Hub) Provider() string { return Provider }

// Initiate registers the checkout and blocks until Approve, Cancel or ctx is done.
// The hub lock is never held while waiting.
func (h *Hub) Initiate(ctx context.Context, checkout domain.Checkout) (domain.Outcome, error) {
	ref := strings.TrimSpace(checkout.Reference)
	if ref == "" || checkout.Amount <= 0 {
		return domain.Outcome{}, domain.ErrInvalidCheckout
	}

	w := &waiter{checkout: checkout, done: make(chan domain.Outcome, 1)}
	h.mu.Lock()
	if _, exists := h.waiters[ref]; exists {
		h.mu.Unlock()
		return domain.Outcome{}, domain.ErrCheckoutExists
	}
	h.waiters[ref] = w
	h.mu.Unlock()

	select {
	case outcome := <-w.done:
		return outcome, nil
	case <-ctx.Done():
		h.mu.Lock()
		if h.waiters[ref] == w {
			delete(h.waiters, ref)
		}
		h.mu.Unlock()
		// A resolution may have raced the cancellation.
		select {
		case outcome := <-w.done:
			return outcome, nil
		default:
		}
		return domain.Outcome{}, ctx.Err()
	}
}

// Approve resolves a waiting checkout with the provider-assigned reference.
func (h *Hub) Approve(reference string, gatewayReference string) error {
	gatewayReference = strings.TrimSpace(gatewayReference)
	if gatewayReference == "" {
		return domain.ErrInvalidCheckout
	}
	return h.resolve(reference, func(c domain.Checkout) domain.Outcome {
		return domain.Outcome{
			Status:           domain.OutcomeApproved,
			GatewayReference: gatewayReference,
			Amount:           c.Amount,
			Currency:         c.Currency,
		}
	})
}

// Cancel resolves a waiting checkout as closed by the payer.
func (h *Hub) Cancel(reference string) error {
	return h.resolve(reference, func(c domain.Checkout) domain.Outcome {
		return domain.Outcome{Status: domain.OutcomeCancelled, Amount: c.Amount, Currency: c.Currency}
	})
}

func (h *Hub) resolve(reference string, build func(domain.Checkout) domain.Outcome) error {
	reference = strings.TrimSpace(reference)
	h.mu.Lock()
	w, ok := h.waiters[reference]
	if !ok {
		h.mu.Unlock()
		return domain.ErrCheckoutNotFound
	}
	delete(h.waiters, reference)
	outcome := build(w.checkout)
	h.resolved[reference] = outcome
	h.mu.Unlock()

	w.done <- outcome
	return nil
}

// Verify reports the outcome recorded for reference. Checkouts still waiting
// are pending; unknown references were abandoned.
func (h *Hub) Verify(ctx context.Context, reference string) (domain.Outcome, error) {
	reference = strings.TrimSpace(reference)
	h.mu.Lock()
	defer h.mu.Unlock()

	if outcome, ok := h.resolved[reference]; ok {
		return outcome, nil
	}
	if w, ok := h.waiters[reference]; ok {
		return domain.Outcome{Status: domain.OutcomePending, Amount: w.checkout.Amount, Currency: w.checkout.Currency}, nil
	}
	return domain.Outcome{Status: domain.OutcomeCancelled}, nil
}

// Forget drops the outcome kept for Verify once the intent is settled.
func (h *Hub) Forget(reference string) {
	h.mu.Lock()
	delete(h.resolved, strings.TrimSpace(reference))
	h.mu.Unlock()
}

// Pending returns the references currently waiting for the payer.
func (h *Hub) Pending() []domain.Checkout {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Checkout, 0, len(h.waiters))
	for _, w := range h.waiters {
		checkout := w.checkout
		checkout.Provider = Provider
		out = append(out, checkout)
	}
	return out
}

package interactive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/levy/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForPending(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.Pending()) == n }, time.Second, time.Millisecond)
}

func TestApproveResolvesWaiter(t *testing.T) {
	h := NewHub()

	var (
		outcome domain.Outcome
		err     error
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err = h.Initiate(context.Background(), domain.Checkout{Reference: "T1", Amount: 5000, Currency: "NGN"})
	}()

	waitForPending(t, h, 1)
	require.NoError(t, h.Approve("T1", "psk_ref_1"))
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, outcome.Status)
	assert.Equal(t, "psk_ref_1", outcome.GatewayReference)

	verified, err := h.Verify(context.Background(), "T1")
	require.NoError(t, err)
	assert.True(t, verified.Approved())
}

func TestCancelResolvesWaiter(t *testing.T) {
	h := NewHub()
	result := make(chan domain.Outcome, 1)
	go func() {
		outcome, _ := h.Initiate(context.Background(), domain.Checkout{Reference: "T2", Amount: 5000})
		result <- outcome
	}()

	waitForPending(t, h, 1)
	require.NoError(t, h.Cancel("T2"))
	assert.Equal(t, domain.OutcomeCancelled, (<-result).Status)
	assert.ErrorIs(t, h.Cancel("T2"), domain.ErrCheckoutNotFound)
}

func TestInitiateHonoursContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Initiate(ctx, domain.Checkout{Reference: "T3", Amount: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.Pending())

	outcome, err := h.Verify(context.Background(), "T3")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, outcome.Status)
}

func TestWaitersDoNotBlockEachOther(t *testing.T) {
	h := NewHub()
	results := make(chan string, 2)
	for _, ref := range []string{"A", "B"} {
		ref := ref
		go func() {
			outcome, _ := h.Initiate(context.Background(), domain.Checkout{Reference: ref, Amount: 1})
			results <- outcome.GatewayReference
		}()
	}

	waitForPending(t, h, 2)
	require.NoError(t, h.Approve("B", "ref_b"))
	assert.Equal(t, "ref_b", <-results)

	outcome, err := h.Verify(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePending, outcome.Status)

	require.NoError(t, h.Approve("A", "ref_a"))
	assert.Equal(t, "ref_a", <-results)
}

func TestDuplicateReferenceRejected(t *testing.T) {
	h := NewHub()
	go func() {
		_, _ = h.Initiate(context.Background(), domain.Checkout{Reference: "T4", Amount: 1})
	}()
	waitForPending(t, h, 1)

	_, err := h.Initiate(context.Background(), domain.Checkout{Reference: "T4", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrCheckoutExists)
	require.NoError(t, h.Cancel("T4"))
}

func TestForgetDropsResolvedOutcome(t *testing.T) {
	h := NewHub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.Initiate(context.Background(), domain.Checkout{Reference: "T7", Amount: 5000})
	}()
	waitForPending(t, h, 1)
	require.NoError(t, h.Approve("T7", "psk_7"))
	<-done

	outcome, err := h.Verify(context.Background(), "T7")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, outcome.Status)

	h.Forget("T7")
	h.mu.Lock()
	assert.Empty(t, h.resolved)
	h.mu.Unlock()
}

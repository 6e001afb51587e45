package service

import (
	"strconv"
	"sync"

	"github.com/smallbiznis/levy/internal/clock"
)

// tokenSource issues idempotency tokens of the form "T<unix millis>".
// Tokens are strictly increasing within the process even when the clock
// stalls or steps backwards.
type tokenSource struct {
	mu    sync.Mutex
	clock clock.Clock
	last  int64
}

func newTokenSource(clk clock.Clock) *tokenSource {
	return &tokenSource{clock: clk}
}

func (t *tokenSource) Next() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ms := t.clock.Now().UnixMilli()
	if ms <= t.last {
		ms = t.last + 1
	}
	t.last = ms
	return "T" + strconv.FormatInt(ms, 10)
}

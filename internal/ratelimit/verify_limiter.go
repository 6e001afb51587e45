package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/levy/internal/config"
)

const keyVerifyPrincipal = "levy:verify:user:%s"

// VerifyLimiter throttles reconciliation requests per principal. Every
// verification fans out to the ledger, so the limit protects that service.
type VerifyLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewVerifyLimiter(cfg config.Config, client *redis.Client) (*VerifyLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires redis")
	}
	if limitCfg.VerifyRate <= 0 || limitCfg.VerifyBurst <= 0 {
		return nil, errors.New("verify rate limit must be positive")
	}
	return &VerifyLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.VerifyRate,
		burst:   limitCfg.VerifyBurst,
	}, nil
}

func (l *VerifyLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *VerifyLimiter) AllowVerify(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyVerifyPrincipal, strings.TrimSpace(userID)), l.rate, l.burst)
}

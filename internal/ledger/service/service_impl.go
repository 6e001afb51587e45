package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/levy/internal/config"
	ledgerclient "github.com/smallbiznis/levy/internal/ledger/client"
	"github.com/smallbiznis/levy/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "levy:ledger:record:"

const (
	lookupFound       = "found"
	lookupMissing     = "missing"
	lookupUnavailable = "unavailable"
	lookupCacheHit    = "cache_hit"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Remote     *ledgerclient.HTTPClient
	Redis      *redis.Client               `optional:"true"`
	Runtime    *config.RuntimeConfigHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

// Service fronts the ledger with a read-through cache. Ledger records are
// immutable once written, so a found record can be cached for the full TTL.
// Misses and failures always go back to the ledger.
type Service struct {
	log        *zap.Logger
	remote     domain.Client
	redis      *redis.Client
	runtime    *config.RuntimeConfigHolder
	obsMetrics *obsmetrics.Metrics
	metrics    *obsmetrics.PaymentMetrics
}

func NewService(p Params) domain.Client {
	return newService(p.Log, p.Remote, p.Redis, p.Runtime, p.ObsMetrics)
}

func newService(log *zap.Logger, remote domain.Client, rdb *redis.Client, runtime *config.RuntimeConfigHolder, obs *obsmetrics.Metrics) *Service {
	return &Service{
		log:        log.Named("ledger.service"),
		remote:     remote,
		redis:      rdb,
		runtime:    runtime,
		obsMetrics: obs,
		metrics:    obsmetrics.Payments(),
	}
}

func (s *Service) GetLedgerRecord(ctx context.Context, txHash string) (*domain.LedgerRecord, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, domain.ErrInvalidTxHash
	}

	ctx, span := obstracing.StartSpan(ctx, "ledger", "get_record", attribute.String("ledger.tx_hash", txHash))
	defer span.End()

	started := time.Now()
	if record, ok := s.readCache(ctx, txHash); ok {
		s.metrics.IncLedgerCache("hit")
		s.obsMetrics.RecordLedgerLookup(ctx, lookupCacheHit, time.Since(started))
		return record, nil
	}
	if s.redis != nil {
		s.metrics.IncLedgerCache("miss")
	}

	record, err := s.remote.GetLedgerRecord(ctx, txHash)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerUnavailable) {
			s.obsMetrics.RecordLedgerLookup(ctx, lookupUnavailable, elapsed)
			s.log.Warn("ledger unavailable", zap.String("tx_hash", txHash), zap.Error(err))
		}
		obstracing.MarkError(span, err)
		return nil, err
	}
	if record == nil {
		s.obsMetrics.RecordLedgerLookup(ctx, lookupMissing, elapsed)
		return nil, nil
	}

	s.obsMetrics.RecordLedgerLookup(ctx, lookupFound, elapsed)
	s.writeCache(ctx, txHash, record)
	return record, nil
}

func (s *Service) Anchor(ctx context.Context, req domain.AnchorRequest) (string, error) {
	ctx, span := obstracing.StartSpan(ctx, "ledger", "anchor", attribute.String("payment.id", req.PaymentID))
	defer span.End()

	txHash, err := s.remote.Anchor(ctx, req)
	if err != nil {
		s.metrics.IncAnchor("failed")
		obstracing.MarkError(span, err)
		return "", err
	}
	s.metrics.IncAnchor("anchored")
	return txHash, nil
}

func (s *Service) cacheTTL() time.Duration {
	ttl := s.runtime.Get().Ledger.CacheTTL
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func (s *Service) readCache(ctx context.Context, txHash string) (*domain.LedgerRecord, bool) {
	if s.redis == nil || s.cacheTTL() == 0 {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, cacheKeyPrefix+txHash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Debug("ledger cache read failed", zap.String("tx_hash", txHash), zap.Error(err))
		}
		return nil, false
	}
	var record domain.LedgerRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false
	}
	return &record, true
}

func (s *Service) writeCache(ctx context.Context, txHash string, record *domain.LedgerRecord) {
	ttl := s.cacheTTL()
	if s.redis == nil || ttl == 0 {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKeyPrefix+txHash, raw, ttl).Err(); err != nil {
		s.log.Debug("ledger cache write failed", zap.String("tx_hash", txHash), zap.Error(err))
	}
}

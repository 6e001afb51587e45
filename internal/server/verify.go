package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/levy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/levy/internal/reconciliation/domain"
	"go.uber.org/zap"
)

type verifyPaymentsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) VerifyPayment(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrPaymentNotFound)
		return
	}

	scope, err := s.authzSvc.ResolveScope(c.Request.Context(), principal, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.reconciliationSvc.Reconcile(c.Request.Context(), principal, scope, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// VerifyPayments reconciles a batch. Each verdict is keyed by the id it was
// computed for; ids that fail to parse are reported the same way.
func (s *Server) VerifyPayments(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req verifyPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.IDs) == 0 {
		AbortWithError(c, reconciliationdomain.ErrEmptyBatch)
		return
	}
	if len(req.IDs) > reconciliationdomain.MaxBatchSize {
		AbortWithError(c, reconciliationdomain.ErrBatchTooLarge)
		return
	}

	scope, err := s.authzSvc.ResolveScope(c.Request.Context(), principal, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	results := make(map[string]reconciliationdomain.BatchItem, len(req.IDs))
	ids := make([]snowflake.ID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		raw = strings.TrimSpace(raw)
		id, err := parseSnowflakeID(raw)
		if err != nil {
			results[raw] = reconciliationdomain.BatchItem{Error: paymentdomain.ErrPaymentNotFound.Error()}
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		batch, err := s.reconciliationSvc.ReconcileBatch(c.Request.Context(), principal, scope, ids)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		for key, item := range batch {
			results[key] = item
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// VerifyRateLimit throttles reconciliation per principal; every verification
// calls the ledger.
func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.verifyLimiter == nil || !s.verifyLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := principalFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.verifyLimiter.AllowVerify(ctx, principal.UserID)
		if err != nil {
			logger.FromContext(ctx).Warn("verify rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result != nil && result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if result == nil || !result.Allowed {
			var retryAfter time.Duration
			if result != nil {
				retryAfter = result.RetryAfter
			}
			denyVerifyRateLimit(c, endpoint, retryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyVerifyRateLimit(c *gin.Context, endpoint string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("verify rate limit exceeded", zap.String("endpoint", endpoint))
	recordRateLimitDenied(ctx, endpoint, metrics)

	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/levy/internal/audit/domain"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	gatewaydomain "github.com/smallbiznis/levy/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/period"
	"github.com/smallbiznis/levy/internal/ratelimit"
	receiptdomain "github.com/smallbiznis/levy/internal/receipt/domain"
	reconciliationdomain "github.com/smallbiznis/levy/internal/reconciliation/domain"
	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrInvalidRole),
		errors.Is(err, paymentdomain.ErrInvalidPrincipal):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, paymentdomain.ErrIntentTooRecent):
		return http.StatusTooEarly, errorPayload{
			Type:    "intent_too_recent",
			Message: "payment intent is too recent to resolve",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, period.ErrUnsupportedRecurrence),
		errors.Is(err, revenuedomain.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable_entity",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrRecordingFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "recording_failed",
			Message: "payment was approved but could not be recorded; it will be reconciled",
		}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ledgerdomain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidSelection),
		errors.Is(err, paymentdomain.ErrGatewayNotApproved),
		errors.Is(err, paymentdomain.ErrInvalidPageToken),
		errors.Is(err, gatewaydomain.ErrUnknownProvider),
		errors.Is(err, gatewaydomain.ErrInvalidCheckout),
		errors.Is(err, reconciliationdomain.ErrEmptyBatch),
		errors.Is(err, reconciliationdomain.ErrBatchTooLarge),
		errors.Is(err, authorization.ErrInvalidScope),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrIntentNotFound),
		errors.Is(err, revenuedomain.ErrScheduleNotFound),
		errors.Is(err, gatewaydomain.ErrCheckoutNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrIntentConflict),
		errors.Is(err, paymentdomain.ErrIntentNotResolvable),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, receiptdomain.ErrReceiptUnavailable),
		errors.Is(err, gatewaydomain.ErrCheckoutExists),
		errors.Is(err, ratelimit.ErrLockHeld):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return "payment not found"
	case errors.Is(err, paymentdomain.ErrIntentNotFound):
		return "payment intent not found"
	case errors.Is(err, revenuedomain.ErrScheduleNotFound):
		return "revenue type not found"
	case errors.Is(err, gatewaydomain.ErrCheckoutNotFound):
		return "checkout not found"
	default:
		return "not found"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, receiptdomain.ErrReceiptUnavailable):
		return "receipt is only available for successful payments"
	case errors.Is(err, paymentdomain.ErrIntentNotResolvable):
		return "payment intent is already settled"
	case errors.Is(err, ratelimit.ErrLockHeld):
		return "operation already in progress"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_selection":
		return "periodReference"
	case "unknown_provider":
		return "provider"
	case "invalid_checkout", "gateway_not_approved":
		return "gatewayReference"
	case "empty_batch", "batch_too_large":
		return "ids"
	case "invalid_page_token":
		return "page_token"
	case "invalid_time_range":
		return "end_at"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_selection":
		return "selected period is not valid for this revenue type"
	case "unknown_provider":
		return "unknown payment provider"
	case "gateway_not_approved":
		return "gateway has not approved this payment"
	case "empty_batch":
		return "at least one payment id is required"
	case "batch_too_large":
		return "too many payment ids"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets handler errors for the request logger.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, context.Canceled) {
		return "client_cancelled", "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", "deadline_exceeded"
	}

	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "dependency", payload.Type
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth", payload.Type
	case status == http.StatusTooManyRequests:
		return "rate_limit", payload.Type
	default:
		return "client", payload.Type
	}
}

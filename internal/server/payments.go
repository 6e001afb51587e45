package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/levy/internal/authorization"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/pkg/db/pagination"
)

type recordPaymentRequest struct {
	ScheduleID       string `json:"scheduleId"`
	Amount           int64  `json:"amount"`
	PeriodReference  string `json:"periodReference"`
	GatewayReference string `json:"gatewayReference"`
	GatewayProvider  string `json:"gatewayProvider"`
}

type checkoutRequest struct {
	ScheduleID      string `json:"scheduleId"`
	Amount          int64  `json:"amount"`
	PeriodReference string `json:"periodReference"`
	Provider        string `json:"provider"`
}

type listPaymentsQuery struct {
	Scope      string `form:"scope"`
	ScheduleID string `form:"schedule_id"`
	Status     string `form:"status"`
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	scheduleID, err := parseSnowflakeID(req.ScheduleID)
	if err != nil {
		AbortWithError(c, newValidationError("scheduleId", "invalid_schedule_id", "invalid scheduleId"))
		return
	}

	payment, err := s.paymentSvc.Record(c.Request.Context(), principal, paymentdomain.RecordRequest{
		ScheduleID:       scheduleID,
		Amount:           req.Amount,
		PeriodReference:  strings.TrimSpace(req.PeriodReference),
		GatewayReference: strings.TrimSpace(req.GatewayReference),
		GatewayProvider:  strings.TrimSpace(req.GatewayProvider),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

// Checkout blocks until the payer approves or cancels with the provider.
func (s *Server) Checkout(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	scheduleID, err := parseSnowflakeID(req.ScheduleID)
	if err != nil {
		AbortWithError(c, newValidationError("scheduleId", "invalid_schedule_id", "invalid scheduleId"))
		return
	}

	payment, err := s.paymentSvc.Submit(c.Request.Context(), principal, paymentdomain.SubmitRequest{
		ScheduleID:      scheduleID,
		Amount:          req.Amount,
		PeriodReference: strings.TrimSpace(req.PeriodReference),
		Provider:        strings.TrimSpace(req.Provider),
	})
	if errors.Is(err, paymentdomain.ErrGatewayCancelled) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "cancelled"}})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ResolveIntent(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, paymentdomain.ErrIntentNotFound)
		return
	}

	resolution, err := s.paymentSvc.ResolveIntent(c.Request.Context(), principal, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolution})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query listPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	requested, err := authorization.ParseScope(query.Scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.listPayments(c, requested, query)
}

// ListUserPayments lists only the caller's own payments.
func (s *Server) ListUserPayments(c *gin.Context) {
	var query listPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.listPayments(c, authorization.ScopeSelf, query)
}

func (s *Server) listPayments(c *gin.Context, requested authorization.Scope, query listPaymentsQuery) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	scope, err := s.authzSvc.ResolveScope(c.Request.Context(), principal, requested)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scheduleID, err := parseOptionalSnowflakeID(query.ScheduleID)
	if err != nil {
		AbortWithError(c, newValidationError("schedule_id", "invalid_schedule_id", "invalid schedule_id"))
		return
	}

	status := paymentdomain.Status(strings.ToLower(strings.TrimSpace(query.Status)))
	switch status {
	case "", paymentdomain.StatusPending, paymentdomain.StatusSuccess, paymentdomain.StatusFailed:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	req := paymentdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Scope:  scope,
		Status: status,
	}
	if scheduleID != nil {
		req.ScheduleID = *scheduleID
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), principal, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo, "scope": scope})
}

func (s *Server) GetPayment(c *gin.Context) {
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

	payment, err := s.paymentSvc.Get(c.Request.Context(), principal, scope, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
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

	receipt, err := s.receiptSvc.Render(c.Request.Context(), principal, scope, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(receipt.FileName))
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}

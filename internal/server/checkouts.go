package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/levy/internal/gateway/domain"
)

type approveCheckoutRequest struct {
	GatewayReference string `json:"gatewayReference"`
}

type checkoutView struct {
	Token            string `json:"token"`
	Provider         string `json:"provider"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ScheduleID       string `json:"schedule_id"`
	PeriodReference  string `json:"period_reference"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}

// ListCheckouts returns the caller's checkouts still waiting on the payer,
// across every provider. Hosted checkouts carry the page the payer must open.
func (s *Server) ListCheckouts(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	views := make([]checkoutView, 0)
	for _, checkout := range s.pendingCheckouts() {
		if checkout.Metadata["payer_id"] != principal.UserID {
			continue
		}
		views = append(views, checkoutView{
			Token:            checkout.Reference,
			Provider:         checkout.Provider,
			Amount:           checkout.Amount,
			Currency:         checkout.Currency,
			ScheduleID:       checkout.Metadata["schedule_id"],
			PeriodReference:  checkout.Metadata["period_reference"],
			AuthorizationURL: checkout.AuthorizationURL,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Token < views[j].Token })

	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) pendingCheckouts() []gatewaydomain.Checkout {
	if s.gateways != nil {
		return s.gateways.Pending()
	}
	return s.checkoutHub.Pending()
}

func (s *Server) ApproveCheckout(c *gin.Context) {
	token, ok := s.ownedCheckout(c)
	if !ok {
		return
	}

	var req approveCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.checkoutHub.Approve(token, req.GatewayReference); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": token, "status": string(gatewaydomain.OutcomeApproved)}})
}

func (s *Server) CancelCheckout(c *gin.Context) {
	token, ok := s.ownedCheckout(c)
	if !ok {
		return
	}

	if err := s.checkoutHub.Cancel(token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": token, "status": string(gatewaydomain.OutcomeCancelled)}})
}

// ownedCheckout resolves the path token to a pending checkout opened by the
// caller. Checkouts of other payers are reported as not found.
func (s *Server) ownedCheckout(c *gin.Context) (string, bool) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return "", false
	}

	token := strings.TrimSpace(c.Param("token"))
	for _, checkout := range s.checkoutHub.Pending() {
		if checkout.Reference == token && checkout.Metadata["payer_id"] == principal.UserID {
			return token, true
		}
	}
	AbortWithError(c, gatewaydomain.ErrCheckoutNotFound)
	return "", false
}

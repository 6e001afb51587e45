package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authcontext"
	"github.com/smallbiznis/levy/internal/observability/logger"
	obscontext "github.com/smallbiznis/levy/internal/observability/context"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// AuthRequired resolves the bearer token into a principal and stores it on
// the request context. Handlers never read identity from anywhere else.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.verifier.Verify(raw)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, err)
			return
		}

		ctx := authcontext.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActor(ctx, string(principal.Role), principal.UserID)
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the principal against the role policy for object/action.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func principalFromGin(c *gin.Context) (authdomain.Principal, bool) {
	if c == nil || c.Request == nil {
		return authdomain.Principal{}, false
	}
	return authcontext.PrincipalFromContext(c.Request.Context())
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

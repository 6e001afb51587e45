package auth

import (
	"github.com/smallbiznis/levy/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(token.NewVerifier),
)

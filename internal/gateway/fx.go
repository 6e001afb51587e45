package gateway

import (
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway/interactive"
	"github.com/smallbiznis/levy/internal/gateway/paystack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(interactive.NewHub),
	fx.Provide(NewRegistryFromConfig),
)

// NewRegistryFromConfig registers the interactive hub and, when a secret key
// is configured, the Paystack adapter.
func NewRegistryFromConfig(cfg config.Config, runtime *config.RuntimeConfigHolder, hub *interactive.Hub, log *zap.Logger) *Registry {
	if cfg.Gateway.PaystackSecretKey == "" {
		log.Warn("paystack secret key not configured, paystack gateway disabled")
		return NewRegistry(hub)
	}
	return NewRegistry(hub, paystack.New(cfg, runtime, log))
}

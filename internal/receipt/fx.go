package receipt

import (
	"github.com/smallbiznis/levy/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(service.NewService),
)

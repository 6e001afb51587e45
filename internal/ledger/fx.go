package ledger

import (
	"github.com/smallbiznis/levy/internal/ledger/client"
	"github.com/smallbiznis/levy/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(client.NewHTTPClient),
	fx.Provide(service.NewService),
)

package alert

import (
	"github.com/smallbiznis/levy/internal/alert/service"
	"github.com/smallbiznis/levy/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(slack.NewFromConfig),
	fx.Provide(service.NewService),
)

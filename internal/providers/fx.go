package providers

import (
	"github.com/smallbiznis/levy/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module wires document providers. Slack is provided by the alert module.
var Module = fx.Module("providers",
	pdf.Module,
)

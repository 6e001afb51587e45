package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/alert"
	"github.com/smallbiznis/levy/internal/audit"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/gateway"
	"github.com/smallbiznis/levy/internal/ledger"
	"github.com/smallbiznis/levy/internal/metricspush"
	"github.com/smallbiznis/levy/internal/observability"
	"github.com/smallbiznis/levy/internal/payment"
	"github.com/smallbiznis/levy/internal/ratelimit"
	"github.com/smallbiznis/levy/internal/revenue"
	"github.com/smallbiznis/levy/internal/scheduler"
	"github.com/smallbiznis/levy/pkg/db"
	"go.uber.org/fx"
)

// Runs the ledger anchor sweep without the HTTP API. Run the API with
// SCHEDULER_ENABLED=false when this worker is deployed.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		scheduler.Module,
		payment.Module,
		revenue.Module,
		gateway.Module,
		ledger.Module,
		audit.Module,
		alert.Module,
		ratelimit.Module,

		// Not scraped, so metrics are pushed.
		metricspush.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

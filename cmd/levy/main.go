package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/auth/token"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/migration"
	"github.com/smallbiznis/levy/internal/observability"
	"github.com/smallbiznis/levy/internal/scheduler"
	"github.com/smallbiznis/levy/internal/seed"
	"github.com/smallbiznis/levy/internal/server"
	"github.com/smallbiznis/levy/pkg/db"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// issueToken signs a bearer token with the configured secret for local use.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "subject user id")
	email := fs.String("email", "", "email claim")
	name := fs.String("name", "", "display name claim")
	role := fs.String("role", string(authdomain.RoleTaxpayer), "taxpayer, officer or auditor")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsedRole, err := authdomain.ParseRole(*role)
	if err != nil {
		return err
	}
	principal := authdomain.Principal{UserID: *userID, Email: *email, Name: *name, Role: parsedRole}
	if !principal.Valid() {
		return fmt.Errorf("token: -user is required")
	}

	verifier, err := token.NewVerifier(config.Load(), clock.SystemClock{})
	if err != nil {
		return err
	}
	signed, err := verifier.Issue(principal, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"

	"github.com/andrebq/gatekeeper/cmd/gatekeeper/notify"
	"github.com/andrebq/gatekeeper/cmd/gatekeeper/secret"
	"github.com/andrebq/gatekeeper/cmd/gatekeeper/serve"
	"github.com/andrebq/gatekeeper/cmd/gatekeeper/users"
	"github.com/andrebq/gatekeeper/internal/cmdflags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("Unable to read .env file")
	}
	common := &cmdflags.Common{}
	app := &cli.App{
		Name:  "gatekeeper",
		Usage: "User accounts, sessions and tokens behind a tiny JSON API",
		Flags: common.Flags(),
		Commands: []*cli.Command{
			serve.Cmd(common),
			users.Cmd(common),
			notify.Cmd(common),
			secret.Cmd(common),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}

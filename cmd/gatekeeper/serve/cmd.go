package serve

import (
	"time"

	"github.com/andrebq/gatekeeper/internal/cmdflags"
	"github.com/andrebq/gatekeeper/internal/httpserver"
	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/urfave/cli/v2"
)

func Cmd(common *cmdflags.Common) *cli.Command {
	var bind string
	pruneEvery := time.Minute * 10
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the authenticate and notifier APIs over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "bind",
				Usage:       "Address to listen on, overrides http.bind from the config file",
				EnvVars:     []string{"GATEKEEPER_BIND"},
				Destination: &bind,
			},
			&cli.DurationFlag{
				Name:        "prune-every",
				Usage:       "How often expired sessions are removed from storage",
				Value:       pruneEvery,
				Destination: &pruneEvery,
			},
		},
		Action: func(ctx *cli.Context) error {
			svc, err := common.Open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			if bind == "" {
				bind = svc.Config.HTTP.Bind
			}
			log := logutil.GetOrDefault(ctx.Context)
			log.Info().
				Str("storage", svc.Config.Storage.Driver).
				Bool("tokens", svc.Config.Tokens.Enabled).
				Msg("Gatekeeper ready")
			if pruneEvery > 0 {
				go svc.RunPruner(ctx.Context, pruneEvery)
			}
			return httpserver.Serve(ctx.Context, bind, svc.Handler())
		},
	}
}

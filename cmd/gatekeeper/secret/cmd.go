package secret

import (
	"github.com/andrebq/gatekeeper/authority"
	"github.com/andrebq/gatekeeper/internal/cmdflags"
	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/urfave/cli/v2"
)

func Cmd(common *cmdflags.Common) *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the secret used to sign tokens",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create the shared token secret if it does not exist yet",
				Action: func(ctx *cli.Context) error {
					svc, err := common.Open(ctx)
					if err != nil {
						return err
					}
					defer svc.Close()
					if err := authority.NewStoreSecret(svc.Users).Bootstrap(ctx.Context); err != nil {
						return err
					}
					log := logutil.GetOrDefault(ctx.Context)
					log.Info().Msg("Token secret is ready")
					return nil
				},
			},
		},
	}
}

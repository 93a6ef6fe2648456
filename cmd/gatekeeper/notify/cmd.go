package notify

import (
	"github.com/andrebq/gatekeeper/internal/cmdflags"
	"github.com/urfave/cli/v2"
)

func Cmd(common *cmdflags.Common) *cli.Command {
	var name, title, message string
	return &cli.Command{
		Name:  "notify",
		Usage: "Push a message to the inbox of a user, it is delivered on the next checkout",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n", "u"},
				Usage:       "Name of the user receiving the message",
				Destination: &name,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "title",
				Destination: &title,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "message",
				Aliases:     []string{"m"},
				Destination: &message,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			svc, err := common.Open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.Notify(ctx.Context, name, title, message)
		},
	}
}

package users

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andrebq/gatekeeper/internal/cmdflags"
	"github.com/urfave/cli/v2"
)

func Cmd(common *cmdflags.Common) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts without going through the HTTP API",
		Subcommands: []*cli.Command{
			signupCmd(common),
			findCmd(common),
		},
	}
}

func signupCmd(common *cmdflags.Common) *cli.Command {
	var name string
	return &cli.Command{
		Name:  "signup",
		Usage: "Create a new user (password is read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n", "u"},
				Usage:       "Name of the user to create",
				Destination: &name,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			password, err := readPassword(ctx.App.Reader)
			if err != nil {
				return err
			}
			svc, err := common.Open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			row, err := svc.Manager.SignUp(ctx.Context, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, row)
			return nil
		},
	}
}

// readPassword returns the first line of r, only the line break is removed
// so passwords may start or end with spaces.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("unable to read password, cause %w", err)
	}
	password := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	if len(password) == 0 {
		return "", errors.New("missing password from stdin")
	}
	return password, nil
}

func findCmd(common *cmdflags.Common) *cli.Command {
	var name string
	var id string
	return &cli.Command{
		Name:  "find",
		Usage: "Print the id of a user given its name, or the name given the id",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n", "u"},
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "id",
				Destination: &id,
			},
		},
		Action: func(ctx *cli.Context) error {
			if (name == "") == (id == "") {
				return errors.New("either --name or --id must be provided")
			}
			svc, err := common.Open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			var out string
			if name != "" {
				out, err = svc.Manager.FindID(ctx.Context, name)
			} else {
				out, err = svc.Manager.FindName(ctx.Context, id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, out)
			return nil
		},
	}
}

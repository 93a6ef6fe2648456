package cmdflags

import (
	"github.com/andrebq/gatekeeper/authority"
	"github.com/urfave/cli/v2"
)

func Config(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to a .json or .lua configuration file",
		EnvVars:     []string{"GATEKEEPER_CONFIG"},
		Destination: out,
		Value:       *out,
	}
}

func StorageDir(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "storage-dir",
		Usage:       "Directory holding the sqlite cassettes, overrides the config file",
		EnvVars:     []string{"GATEKEEPER_STORAGE_DIR"},
		Destination: out,
		Value:       *out,
	}
}

func StorageDSN(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "dsn",
		Usage:       "Postgres connection string, switches the storage driver to postgres",
		EnvVars:     []string{"GATEKEEPER_DSN", "DATABASE_URL"},
		Destination: out,
		Value:       *out,
	}
}

func LogLevel(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "log-level",
		Usage:       "Overrides the log level from the config file",
		EnvVars:     []string{"GATEKEEPER_LOG_LEVEL"},
		Destination: out,
		Value:       *out,
	}
}

func RootKeyEnvVar(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = authority.RootKeyEnvVar
	}
	return &cli.StringFlag{
		Name:        "root-key-envvar-name",
		Usage:       "Name of the environment variable that holds the root key. The key itself should not be passed as an argument",
		Value:       *out,
		Destination: out,
	}
}

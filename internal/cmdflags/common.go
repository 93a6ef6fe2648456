package cmdflags

import (
	"os"

	"github.com/andrebq/gatekeeper/authority"
	"github.com/andrebq/gatekeeper/config"
	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/andrebq/gatekeeper/internal/service"
	"github.com/urfave/cli/v2"
)

type (
	// Common holds the flags every command accepts, they are applied on
	// top of the configuration file.
	Common struct {
		ConfigPath    string
		StorageDir    string
		DSN           string
		LogLevel      string
		RootKeyEnvVar string
	}
)

func (c *Common) Flags() []cli.Flag {
	return []cli.Flag{
		Config(&c.ConfigPath),
		StorageDir(&c.StorageDir),
		StorageDSN(&c.DSN),
		LogLevel(&c.LogLevel),
		RootKeyEnvVar(&c.RootKeyEnvVar),
	}
}

// Load reads the configuration, applies the flags and sets up the process
// logger.
func (c *Common) Load() (config.Config, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.StorageDir != "" {
		cfg.Storage.Driver = config.DriverSQLite
		cfg.Storage.Dir = c.StorageDir
	}
	if c.DSN != "" {
		cfg.Storage.Driver = config.DriverPostgres
		cfg.Storage.DSN = c.DSN
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if _, err := logutil.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Open loads the configuration and opens the service described by it.
// When the root key variable is set, tokens are signed with it instead of
// the secret kept in the cassette.
func (c *Common) Open(ctx *cli.Context) (*service.S, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}
	var opts []service.Option
	if os.Getenv(c.RootKeyEnvVar) != "" {
		secrets, err := authority.EnvSecret(c.RootKeyEnvVar, os.Getenv, os.Setenv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSecrets(secrets))
	}
	return service.Open(ctx.Context, cfg, opts...)
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andrebq/gatekeeper/internal/lua/luadefaults"
	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
)

type (
	// file mirrors Config with durations kept as strings, both the json
	// decoder and gluamapper only touch the keys present in the document.
	file struct {
		Hooks           map[string]map[string]bool `json:"hooks"`
		Lengths         Lengths                    `json:"lengths"`
		LockTimeout     string                     `json:"lockTimeout"`
		Hashing         Hashing                    `json:"hashing"`
		Tokens          fileTokens                 `json:"tokens"`
		Sessions        fileSessions               `json:"sessions"`
		Storage         Storage                    `json:"storage"`
		HTTP            HTTP                       `json:"http"`
		Log             Log                        `json:"log"`
		UniformFailures bool                       `json:"uniformFailures"`
	}

	fileTokens struct {
		Enabled  bool   `json:"enabled"`
		Format   string `json:"format"`
		Validity string `json:"validity"`
		Issuer   string `json:"issuer"`
	}

	fileSessions struct {
		Validity string `json:"validity"`
		CacheTTL string `json:"cacheTTL"`
	}

	UnsupportedFormat struct {
		Path string
	}
)

func (u UnsupportedFormat) Error() string {
	return fmt.Sprintf("config file %v should end with .json or .lua", u.Path)
}

// Load returns Default overridden by the file at path, an empty path
// returns the defaults. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	f := toFile(cfg)
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSON(path, &f)
	case ".lua":
		err = decodeLua(path, &f)
	default:
		return Config{}, UnsupportedFormat{Path: path}
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err = f.toConfig()
	if err != nil {
		return Config{}, fmt.Errorf("unable to load %v, cause %w", path, err)
	}
	return cfg, cfg.Validate()
}

func decodeJSON(path string, out *file) error {
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open config file, cause %w", err)
	}
	defer fd.Close()
	dec := json.NewDecoder(fd)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("unable to decode %v, cause %w", path, err)
	}
	return nil
}

func decodeLua(path string, out *file) error {
	L, err := luadefaults.NewConfigState()
	if err != nil {
		return fmt.Errorf("unable to prepare lua state, cause %w", err)
	}
	defer L.Close()
	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("unable to evaluate %v, cause %w", path, err)
	}
	tbl, ok := L.Get(-1).(*lua.LTable)
	if !ok {
		return fmt.Errorf("config file %v should return a table", path)
	}
	mapper := gluamapper.NewMapper(gluamapper.Option{
		NameFunc: func(s string) string { return s },
		TagName:  "json",
	})
	if err := mapper.Map(tbl, out); err != nil {
		return fmt.Errorf("unable to map %v, cause %w", path, err)
	}
	return nil
}

func toFile(c Config) file {
	return file{
		Hooks:       c.Hooks,
		Lengths:     c.Lengths,
		LockTimeout: c.LockTimeout.String(),
		Hashing:     c.Hashing,
		Tokens: fileTokens{
			Enabled:  c.Tokens.Enabled,
			Format:   c.Tokens.Format,
			Validity: c.Tokens.Validity.String(),
			Issuer:   c.Tokens.Issuer,
		},
		Sessions: fileSessions{
			Validity: c.Sessions.Validity.String(),
			CacheTTL: c.Sessions.CacheTTL.String(),
		},
		Storage:         c.Storage,
		HTTP:            c.HTTP,
		Log:             c.Log,
		UniformFailures: c.UniformFailures,
	}
}

func (f file) toConfig() (Config, error) {
	c := Config{
		Hooks:   f.Hooks,
		Lengths: f.Lengths,
		Hashing: f.Hashing,
		Tokens: Tokens{
			Enabled: f.Tokens.Enabled,
			Format:  f.Tokens.Format,
			Issuer:  f.Tokens.Issuer,
		},
		Storage:         f.Storage,
		HTTP:            f.HTTP,
		Log:             f.Log,
		UniformFailures: f.UniformFailures,
	}
	for _, d := range []struct {
		name string
		val  string
		out  *time.Duration
	}{
		{"lockTimeout", f.LockTimeout, &c.LockTimeout},
		{"tokens.validity", f.Tokens.Validity, &c.Tokens.Validity},
		{"sessions.validity", f.Sessions.Validity, &c.Sessions.Validity},
		{"sessions.cacheTTL", f.Sessions.CacheTTL, &c.Sessions.CacheTTL},
	} {
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return Config{}, Invalid{Field: d.name, Reason: err.Error()}
		}
		*d.out = v
	}
	return c, nil
}

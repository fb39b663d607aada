// Package config loads application configuration from a YAML file with
// CROSSPOST_-prefixed environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CROSSPOST_"

// Config is the full application configuration tree. Keys are lowercase so
// environment overrides map onto them without a translation table:
// CROSSPOST_HTTP_PORT -> http.port, CROSSPOST_OAUTH_GOOGLE_ID ->
// oauth.google.id.
type Config struct {
	HTTP struct {
		Port         int           `koanf:"port"`
		ReadTimeout  time.Duration `koanf:"readtimeout"`
		WriteTimeout time.Duration `koanf:"writetimeout"`
		IdleTimeout  time.Duration `koanf:"idletimeout"`
	} `koanf:"http"`

	Log struct {
		Level  string `koanf:"level"`  // debug, info, warn, error
		Format string `koanf:"format"` // text or json
	} `koanf:"log"`

	Cache struct {
		Path string `koanf:"path"` // sqlite file for the local cache
	} `koanf:"cache"`

	Auth struct {
		DBPath     string        `koanf:"dbpath"` // sqlite file for accounts and profiles
		JWTSecret  string        `koanf:"jwtsecret"`
		SessionTTL time.Duration `koanf:"sessionttl"`
	} `koanf:"auth"`

	OAuth struct {
		Callback string              `koanf:"callback"` // shared redirect URL, one route serves every provider
		Apps     map[string]OAuthApp `koanf:"apps"`
	} `koanf:"oauth"`

	Instagram struct {
		ExchangeEndpoint string `koanf:"exchangeendpoint"`
	} `koanf:"instagram"`

	RateLimit struct {
		PerSecond float64 `koanf:"persecond"`
		Burst     int     `koanf:"burst"`
	} `koanf:"ratelimit"`
}

// OAuthApp holds one provider's application credentials.
type OAuthApp struct {
	ID     string `koanf:"id"`
	Secret string `koanf:"secret"`
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	cfg := new(Config)
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "crosspost-cache.db"
	}
	if c.Auth.DBPath == "" {
		c.Auth.DBPath = "crosspost-auth.db"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = 1
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwtsecret is required (set %sAUTH_JWTSECRET)", envPrefix)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

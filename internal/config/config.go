// Package config loads the server configuration.
//
// LAYERING (lowest to highest precedence):
//  1. Defaults set in setDefaults
//  2. config.yaml, found in ".", "~/.photoshare" or "/etc/photoshare"
//     (or the file named explicitly with -config)
//  3. Environment variables prefixed PHOTOSHARE_, with "." in the key
//     replaced by "_". server.port becomes PHOTOSHARE_SERVER_PORT.
//
// WHY A viper INSTANCE AND NOT THE GLOBAL?
// Tests load several configurations in one process. A fresh *viper.Viper
// per Load keeps them from leaking into each other.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	PhotoDir       string // served under /img/photos/
	// AutocertHost enables TLS through Let's Encrypt when set.
	AutocertHost     string
	AutocertCacheDir string
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "badger"
	Path   string // file for sqlite, directory for badger
}

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

type AuthConfig struct {
	// StateSecret signs the OAuth state of the REST login redirect. The
	// redirect routes are off while it is empty.
	StateSecret string
	// FakeUsers registers the fakeUserAuth mutation.
	FakeUsers bool
}

type RandomUserConfig struct {
	URL string
}

type QueryConfig struct {
	MaxDepth      int
	MaxComplexity int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level string
}

// Config holds configuration for the whole process.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	GitHub     GitHubConfig
	Auth       AuthConfig
	RandomUser RandomUserConfig
	Query      QueryConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// Every key needs a default, even an empty one. viper only consults the
// environment during Unmarshal for keys it already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.requestTimeout", 5*time.Second)
	v.SetDefault("server.photoDir", "assets/photos")
	v.SetDefault("server.autocertHost", "")
	v.SetDefault("server.autocertCacheDir", "~/.photoshare/certs")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/photoshare.db")

	v.SetDefault("github.clientID", "")
	v.SetDefault("github.clientSecret", "")
	v.SetDefault("github.callbackURL", "")

	v.SetDefault("auth.stateSecret", "")
	v.SetDefault("auth.fakeUsers", true)

	v.SetDefault("randomuser.url", "https://randomuser.me/api/")

	v.SetDefault("query.maxDepth", 5)
	v.SetDefault("query.maxComplexity", 1000)

	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("log.level", "info")
}

// Load reads the configuration. configFile may be empty, in which case the
// standard locations are searched and a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		path, err := homedir.Expand(configFile)
		if err != nil {
			return nil, fmt.Errorf("config: expanding %q: %w", configFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := homedir.Expand("~/.photoshare"); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("/etc/photoshare")
	}

	v.SetEnvPrefix("photoshare")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	for _, p := range []*string{&cfg.Database.Path, &cfg.Server.PhotoDir, &cfg.Server.AutocertCacheDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("config: expanding %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("config: database.driver must be %q or %q, got %q", DriverSQLite, DriverBadger, c.Database.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: server.requestTimeout must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("config: ratelimit.rps and ratelimit.burst must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// OAuthRoutesEnabled reports whether the REST login redirect can run.
func (c *Config) OAuthRoutesEnabled() bool {
	return c.Auth.StateSecret != "" && c.GitHub.ClientID != ""
}

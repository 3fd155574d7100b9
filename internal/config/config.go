// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package config loads Inkwell runtime configuration.
//
// Values are layered in increasing precedence: built-in defaults, an optional
// YAML file, command-line flags, and environment variables. Secrets come from
// the environment only and are rejected when present in the file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/inkwell/inkwell/internal/auth"
	"github.com/inkwell/inkwell/internal/logging"
	"github.com/inkwell/inkwell/internal/mail"
	"github.com/inkwell/inkwell/internal/xdg"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Mail drivers.
const (
	MailDriverHTTP = "http"
	MailDriverLog  = "log"
)

// Config is the complete runtime configuration.
type Config struct {
	Token   TokenConfig   `koanf:"token"`
	Otp     OtpConfig     `koanf:"otp"`
	Hasher  HasherConfig  `koanf:"hasher"`
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Store   StoreConfig   `koanf:"store"`
	Mail    MailConfig    `koanf:"mail"`
	Log     LogConfig     `koanf:"log"`
}

// TokenConfig configures session tokens. The algorithm is always HS256.
type TokenConfig struct {
	Secret string        `koanf:"-"`
	TTL    time.Duration `koanf:"ttl"`
	Issuer string        `koanf:"issuer"`
}

// OtpConfig configures password-reset challenges.
type OtpConfig struct {
	Window        time.Duration `koanf:"window"`
	CodeLength    int           `koanf:"code_length"`
	MaxAttempts   int           `koanf:"max_attempts"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// HasherConfig configures the argon2id work factor.
type HasherConfig struct {
	Time    uint32 `koanf:"time"`
	Memory  uint32 `koanf:"memory"`
	Threads uint8  `koanf:"threads"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// StoreConfig selects and configures persistence.
type StoreConfig struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
	MaxConns    int32  `koanf:"max_conns"`
}

// MailConfig selects and configures reset-code delivery.
type MailConfig struct {
	Driver      string `koanf:"driver"`
	Endpoint    string `koanf:"endpoint"`
	SenderEmail string `koanf:"sender_email"`
	SenderName  string `koanf:"sender_name"`
	APIToken    string `koanf:"-"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// secrets are read from the environment only.
type secrets struct {
	TokenSecret  string `env:"INKWELL_TOKEN_SECRET"`
	DatabaseURL  string `env:"DATABASE_URL"`
	MailAPIToken string `env:"INKWELL_MAIL_API_TOKEN"`
}

// secretKeys must never appear in a config file.
var secretKeys = []string{"token.secret", "mail.api_token"}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	return Config{
		Token: TokenConfig{
			TTL:    auth.DefaultTokenTTL,
			Issuer: auth.DefaultTokenIssuer,
		},
		Otp: OtpConfig{
			Window:        auth.DefaultOtpWindow,
			CodeLength:    auth.DefaultOtpCodeLength,
			MaxAttempts:   auth.DefaultOtpMaxAttempts,
			PurgeInterval: 5 * time.Minute,
		},
		Hasher: HasherConfig{
			Time:    argon.Time,
			Memory:  argon.Memory,
			Threads: argon.Threads,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Store: StoreConfig{
			Driver:   StoreDriverPostgres,
			MaxConns: 10,
		},
		Mail: MailConfig{
			Driver:     MailDriverHTTP,
			Endpoint:   mail.DefaultEndpoint,
			SenderName: "Inkwell",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"store-driver": "store.driver",
	"mail-driver":  "mail.driver",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the flag-settable keys to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("store-driver", d.Store.Driver, "persistence driver (postgres or memory)")
	fs.String("mail-driver", d.Mail.Driver, "reset mail driver (http or log)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is an explicit config file. It must exist when set. When empty,
	// the XDG default is read if present.
	File string
	// Flags holds flags registered with RegisterFlags. Only flags the user
	// changed override file values.
	Flags *pflag.FlagSet
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Load assembles and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
		for _, key := range secretKeys {
			if k.Exists(key) {
				return nil, oops.Code("CONFIG_SECRET_IN_FILE").
					With("path", path).
					With("key", key).
					Errorf("%s must be provided through the environment", key)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithValue(opts.Flags, ".", k, func(name, value string) (string, any) {
			key, ok := flagKeys[name]
			if !ok {
				return "", nil
			}
			return key, value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	var s secrets
	if err := env.ParseWithOptions(&s, env.Options{Environment: opts.Environment}); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	cfg.Token.Secret = s.TokenSecret
	cfg.Mail.APIToken = s.MailAPIToken
	if s.DatabaseURL != "" {
		cfg.Store.DatabaseURL = s.DatabaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}
	path := xdg.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
	}
	return path, nil
}

// Validate checks required keys and ranges.
func (c *Config) Validate() error {
	switch {
	case len(c.Token.Secret) < auth.MinTokenSecretBytes:
		return invalid("token.secret", "INKWELL_TOKEN_SECRET must be set to at least %d bytes", auth.MinTokenSecretBytes)
	case c.Token.TTL <= 0:
		return invalid("token.ttl", "must be positive")
	case c.Otp.Window <= 0:
		return invalid("otp.window", "must be positive")
	case c.Otp.CodeLength < auth.MinOtpCodeLength || c.Otp.CodeLength > auth.MaxOtpCodeLength:
		return invalid("otp.code_length", "must be between %d and %d", auth.MinOtpCodeLength, auth.MaxOtpCodeLength)
	case c.Otp.MaxAttempts < 0:
		return invalid("otp.max_attempts", "cannot be negative")
	case c.Otp.PurgeInterval <= 0:
		return invalid("otp.purge_interval", "must be positive")
	case c.HTTP.Addr == "":
		return invalid("http.addr", "is required")
	case c.HTTP.ShutdownTimeout <= 0:
		return invalid("http.shutdown_timeout", "must be positive")
	}
	if _, err := auth.NewArgon2idHasherWithParams(c.Argon2Params()); err != nil {
		return invalid("hasher", "parameters rejected: %v", err)
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "DATABASE_URL is required for the postgres driver")
		}
	case StoreDriverMemory:
	default:
		return invalid("store.driver", "unknown driver %q", c.Store.Driver)
	}

	switch c.Mail.Driver {
	case MailDriverHTTP:
		if c.Mail.APIToken == "" {
			return invalid("mail.api_token", "INKWELL_MAIL_API_TOKEN is required for the http driver")
		}
		if c.Mail.SenderEmail == "" {
			return invalid("mail.sender_email", "is required for the http driver")
		}
	case MailDriverLog:
	default:
		return invalid("mail.driver", "unknown driver %q", c.Mail.Driver)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s "+format, append([]any{key}, args...)...)
}

// TokenIssuerConfig returns the auth.TokenConfig for the configured session
// tokens.
func (c *Config) TokenIssuerConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.Token.Secret),
		TTL:    c.Token.TTL,
		Issuer: c.Token.Issuer,
	}
}

// OtpStoreConfig returns the auth.OtpConfig for reset challenges.
func (c *Config) OtpStoreConfig() auth.OtpConfig {
	return auth.OtpConfig{
		Window:      c.Otp.Window,
		CodeLength:  c.Otp.CodeLength,
		MaxAttempts: c.Otp.MaxAttempts,
	}
}

// Argon2Params returns the hasher parameters with default salt and key sizes.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Time = c.Hasher.Time
	p.Memory = c.Hasher.Memory
	p.Threads = c.Hasher.Threads
	return p
}

package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. It is loaded and validated once at startup and
// then passed by value into every component constructor.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"production"`
	Port string `env:"PORT" envDefault:"5000"`

	// Discord application credentials and the public origin of this service.
	ClientID     string `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"CLIENT_SECRET,required,notEmpty"`
	BackendURL   string `env:"BACKEND_URL,required,notEmpty"`
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`

	// TrustProxy enables client IP resolution from proxy headers. Leave it
	// off unless the service sits behind a proxy that overwrites them.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	DBPoolSize          int           `env:"DB_POOL_SIZE" envDefault:"5"`
	DBRetryBudget       int           `env:"DB_RETRY_BUDGET" envDefault:"1"`
	DBKeepAliveInterval time.Duration `env:"DB_KEEPALIVE_INTERVAL" envDefault:"30s"`

	OAuthTimeout time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`

	RedisURL       string        `env:"REDIS_URL"`
	StatusCacheTTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"10s"`

	AMQPURL string `env:"AMQP_URL"`

	StatusAPISecret string `env:"STATUS_API_SECRET"`
}

// Load reads an optional .env file, then parses and validates the process
// environment. Callers treat a returned error as fatal.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	return parse(env.Options{})
}

// LoadFrom is like Load but reads variables from the given map instead of
// the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes derived values and rejects settings the service
// cannot start with.
func (c *Config) Validate() error {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid BACKEND_URL: %q", c.BackendURL)
	}
	if c.DBPoolSize < 1 {
		c.DBPoolSize = 1
	}
	if c.DBPoolSize > 10 {
		c.DBPoolSize = 10
	}
	if c.DBRetryBudget < 0 {
		c.DBRetryBudget = 0
	}
	if c.OAuthTimeout <= 0 {
		c.OAuthTimeout = 10 * time.Second
	}
	return nil
}

// RedirectURL is the OAuth callback registered with Discord.
func (c Config) RedirectURL() string { return c.BackendURL + "/callback" }

// IsDevelopment reports whether the service runs in a local environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

const hidden = "***HIDDEN***"

// Masked returns the configuration with credentials replaced, suitable for
// debug output.
func (c Config) Masked() map[string]any {
	mask := func(s string) any {
		if s == "" {
			return nil
		}
		return hidden
	}
	orNil := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}
	return map[string]any{
		"CLIENT_ID":         orNil(c.ClientID),
		"CLIENT_SECRET":     mask(c.ClientSecret),
		"BACKEND_URL":       orNil(c.BackendURL),
		"DATABASE_URL":      mask(c.DatabaseURL),
		"PORT":              c.Port,
		"TRUST_PROXY":       c.TrustProxy,
		"REDIS_URL":         mask(c.RedisURL),
		"AMQP_URL":          mask(c.AMQPURL),
		"STATUS_API_SECRET": mask(c.StatusAPISecret),
	}
}

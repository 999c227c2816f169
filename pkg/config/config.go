// Package config loads livesync settings from defaults, an optional TOML
// file, LIVESYNC_ environment variables and bound flags, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const EnvPrefix = "LIVESYNC"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Primary    PrimaryConfig    `mapstructure:"primary"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	// URL is the http base url of the task engine.
	URL string `mapstructure:"url"`
}

type PrimaryConfig struct {
	// Path of the live view websocket relative to the server url.
	Path             string        `mapstructure:"path"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// ReadTimeout drops a silent connection. The engine pings every 5s.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type SupervisorConfig struct {
	RetryBudget int `mapstructure:"retry_budget"`
}

type BackoffConfig struct {
	Base   time.Duration `mapstructure:"base"`
	Cap    time.Duration `mapstructure:"cap"`
	Jitter time.Duration `mapstructure:"jitter"`
}

type FallbackConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StoreConfig struct {
	// Path of the sqlite snapshot database. Empty disables persistence.
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{URL: "http://127.0.0.1:3333"},
		Primary: PrimaryConfig{
			Path:             "/ws/",
			HandshakeTimeout: 10 * time.Second,
			ReadTimeout:      15 * time.Second,
		},
		Supervisor: SupervisorConfig{RetryBudget: 10},
		Backoff:    BackoffConfig{Base: time.Second, Cap: 30 * time.Second, Jitter: time.Second},
		Fallback:   FallbackConfig{PollInterval: 5 * time.Second, RequestTimeout: 10 * time.Second},
		Store:      StoreConfig{BackupInterval: 5 * time.Second},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// values flattens the defaults into dotted viper keys.
func values(c Config) map[string]interface{} {
	return map[string]interface{}{
		"server.url":                c.Server.URL,
		"primary.path":              c.Primary.Path,
		"primary.handshake_timeout": c.Primary.HandshakeTimeout,
		"primary.read_timeout":      c.Primary.ReadTimeout,
		"supervisor.retry_budget":   c.Supervisor.RetryBudget,
		"backoff.base":              c.Backoff.Base,
		"backoff.cap":               c.Backoff.Cap,
		"backoff.jitter":            c.Backoff.Jitter,
		"fallback.poll_interval":    c.Fallback.PollInterval,
		"fallback.request_timeout":  c.Fallback.RequestTimeout,
		"store.path":                c.Store.Path,
		"store.backup_interval":     c.Store.BackupInterval,
		"logging.level":             c.Logging.Level,
		"logging.format":            c.Logging.Format,
	}
}

// New returns a viper instance with defaults and environment lookups
// registered.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range values(Default()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or the first livesync.toml found in the user config
// directory or the working directory when path is empty, and returns the
// validated result. A missing implicit file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("livesync")
		v.AddConfigPath("$HOME/.config/livesync")
		v.AddConfigPath(".")
	}
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must be http or https, got %q", c.Server.URL)
	}
	if c.Supervisor.RetryBudget < 1 {
		return fmt.Errorf("supervisor.retry_budget must be at least 1")
	}
	if c.Backoff.Base <= 0 || c.Backoff.Cap < c.Backoff.Base || c.Backoff.Jitter < 0 {
		return fmt.Errorf("backoff requires 0 < base <= cap and jitter >= 0")
	}
	if c.Fallback.PollInterval <= 0 {
		return fmt.Errorf("fallback.poll_interval must be positive")
	}
	switch c.Logging.Format {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("logging.format must be one of text, json or pretty, got %q", c.Logging.Format)
	}
	return nil
}

// BaseURL is the parsed server url.
func (c Config) BaseURL() (*url.URL, error) {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	return u, nil
}

// PrimaryURL is the websocket url derived from the server url and
// primary.path.
func (c Config) PrimaryURL() (string, error) {
	u, err := c.BaseURL()
	if err != nil {
		return "", err
	}
	u = u.JoinPath(c.Primary.Path)
	if strings.HasSuffix(c.Primary.Path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// WriteExample writes the defaults as a TOML file.
func WriteExample(w io.Writer) error {
	nested := make(map[string]map[string]interface{})
	for key, value := range values(Default()) {
		section, name, _ := strings.Cut(key, ".")
		if nested[section] == nil {
			nested[section] = make(map[string]interface{})
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		nested[section][name] = value
	}
	if _, err := io.WriteString(w, "# livesync configuration. Every key can also be set as LIVESYNC_<SECTION>_<KEY>.\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(nested); err != nil {
		return fmt.Errorf("failed to encode example: %w", err)
	}
	return nil
}

// Package config loads the settings of a garage sync client from an optional
// config file, .env files and GARAGESYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/pkg/logging"
	"github.com/goliatone/go-garage-sync/remote"
)

// EnvPrefix prefixes every environment variable, e.g. GARAGESYNC_REMOTE_BASE_URL.
const EnvPrefix = "GARAGESYNC"

// Session backends.
const (
	SessionMemory = "memory"
	SessionValkey = "valkey"
)

// Realtime transports.
const (
	TransportNone      = "none"
	TransportValkey    = "valkey"
	TransportWebsocket = "websocket"
)

// Config is the complete client configuration.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Session  SessionConfig  `mapstructure:"session"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Valkey   ValkeyConfig   `mapstructure:"valkey"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type CacheConfig struct {
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	MaxTTL             time.Duration `mapstructure:"max_ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
}

type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type SessionConfig struct {
	Backend string `mapstructure:"backend"`
	// ID scopes mirrored pages; empty generates one per process.
	ID     string `mapstructure:"id"`
	Prefix string `mapstructure:"prefix"`
}

type RealtimeConfig struct {
	Transport      string        `mapstructure:"transport"`
	URL            string        `mapstructure:"url"`
	Channel        string        `mapstructure:"channel"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	// Actor identifies this client; events it caused refresh silently.
	Actor string `mapstructure:"actor"`
}

type ValkeyConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	DB        int      `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Options controls where Load looks for settings.
type Options struct {
	// File is an optional config file (yaml, json or toml).
	File string
	// EnvFiles are loaded into the environment before reading it. Missing
	// files are ignored. Empty means ".env".
	EnvFiles []string
	// Overrides win over every other source, keyed like "remote.base_url".
	Overrides map[string]any
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	store := cache.DefaultConfig()
	rc := remote.DefaultConfig()
	lc := logging.DefaultConfig()

	return Config{
		Cache: CacheConfig{
			Capacity:           store.Capacity,
			NumShards:          store.NumShards,
			MaxTTL:             store.MaxTTL,
			EvictionPercentage: store.EvictionPercentage,
		},
		Remote: RemoteConfig{
			Timeout:   rc.Timeout,
			UserAgent: rc.UserAgent,
		},
		Session: SessionConfig{
			Backend: SessionMemory,
			Prefix:  "garagesync:session",
		},
		Realtime: RealtimeConfig{
			Transport:      TransportNone,
			Channel:        "garagesync:events",
			ReconnectDelay: 2 * time.Second,
			RefreshTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: lc.Level, Format: lc.Format},
	}
}

// Load merges defaults, env files, environment variables, the config file
// and overrides, in increasing order of precedence, and validates the result.
func Load(opts Options) (Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}
	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.num_shards", d.Cache.NumShards)
	v.SetDefault("cache.max_ttl", d.Cache.MaxTTL)
	v.SetDefault("cache.eviction_percentage", d.Cache.EvictionPercentage)

	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.user_agent", d.Remote.UserAgent)

	v.SetDefault("session.backend", d.Session.Backend)
	v.SetDefault("session.id", d.Session.ID)
	v.SetDefault("session.prefix", d.Session.Prefix)

	v.SetDefault("realtime.transport", d.Realtime.Transport)
	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.channel", d.Realtime.Channel)
	v.SetDefault("realtime.reconnect_delay", d.Realtime.ReconnectDelay)
	v.SetDefault("realtime.refresh_timeout", d.Realtime.RefreshTimeout)
	v.SetDefault("realtime.actor", d.Realtime.Actor)

	v.SetDefault("valkey.addresses", append([]string{}, d.Valkey.Addresses...))
	v.SetDefault("valkey.username", d.Valkey.Username)
	v.SetDefault("valkey.password", d.Valkey.Password)
	v.SetDefault("valkey.db", d.Valkey.DB)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// Validate checks every section and the settings that depend on each other.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Cache),
		validation.Field(&c.Remote),
		validation.Field(&c.Session),
		validation.Field(&c.Realtime),
		validation.Field(&c.Logging),
	)
	if err != nil {
		return err
	}

	if c.usesValkey() && len(c.Valkey.Addresses) == 0 {
		return validation.Errors{"valkey": validation.Errors{
			"addresses": errors.New("required by the valkey session backend or transport"),
		}}
	}
	return nil
}

func (c Config) usesValkey() bool {
	return c.Session.Backend == SessionValkey || c.Realtime.Transport == TransportValkey
}

func (c CacheConfig) Validate() error {
	return c.Store().Validate()
}

// Store converts the section into cache store settings.
func (c CacheConfig) Store() cache.Config {
	return cache.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
	}
}

func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return validation.ValidateStruct(&c, validation.Field(&c.Timeout, validation.Min(time.Duration(0))))
	}
	return c.Client().Validate()
}

// Client converts the section into REST client settings.
func (c RemoteConfig) Client() remote.Config {
	return remote.Config{BaseURL: c.BaseURL, Timeout: c.Timeout, UserAgent: c.UserAgent}
}

func (c SessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(SessionMemory, SessionValkey)),
	)
}

func (c RealtimeConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Transport, validation.Required, validation.In(TransportNone, TransportValkey, TransportWebsocket)),
		validation.Field(&c.URL,
			validation.When(c.Transport == TransportWebsocket, validation.Required, validation.By(websocketURL)),
		),
		validation.Field(&c.Channel, validation.When(c.Transport == TransportValkey, validation.Required)),
		validation.Field(&c.ReconnectDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshTimeout, validation.Min(time.Duration(0))),
	)
}

func websocketURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" || u.Host == "" {
		return errors.New("must be a ws:// or wss:// URL")
	}
	return nil
}

func (c LoggingConfig) Validate() error {
	return c.Logger().Validate()
}

// Logger converts the section into logger settings.
func (c LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

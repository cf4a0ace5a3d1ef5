package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode   string      `mapstructure:"mode"`
	Port   int         `mapstructure:"port"`
	Secret string      `mapstructure:"secret"`
	Log    LogConfig   `mapstructure:"log"`
	WS     WSConfig    `mapstructure:"ws"`
	Chat   ChatConfig  `mapstructure:"chat"`
	Store  StoreConfig `mapstructure:"store"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type ChatConfig struct {
	Ordering        string        `mapstructure:"ordering"`
	PersistTimeout  time.Duration `mapstructure:"persist_timeout"`
	MaxTextLen      int           `mapstructure:"max_text_len"`
	IncludeReadFlag bool          `mapstructure:"include_read_flag"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateInterval    time.Duration `mapstructure:"rate_interval"`
	Workers         int           `mapstructure:"workers"`
	Backpressure    string        `mapstructure:"backpressure"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig enables the unread counters when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). A missing
// file is not an error; defaults and RELAY_* env vars still apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Str("ordering", cfg.Chat.Ordering).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 32)

	v.SetDefault("chat.ordering", "persist_then_broadcast")
	v.SetDefault("chat.persist_timeout", "3s")
	v.SetDefault("chat.max_text_len", 4000)
	v.SetDefault("chat.include_read_flag", false)
	v.SetDefault("chat.rate_limit", 0)
	v.SetDefault("chat.rate_interval", "10s")
	v.SetDefault("chat.workers", 4)
	v.SetDefault("chat.backpressure", "drop")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "relay.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("mode: unknown value %q", c.Mode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: out of range %d", c.Port))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown value %q", c.Log.Format))
	}
	switch c.Chat.Ordering {
	case "persist_then_broadcast", "broadcast_then_persist":
	default:
		errs = append(errs, fmt.Errorf("chat.ordering: unknown value %q", c.Chat.Ordering))
	}
	switch c.Chat.Backpressure {
	case "drop", "kick", "none":
	default:
		errs = append(errs, fmt.Errorf("chat.backpressure: unknown value %q", c.Chat.Backpressure))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown value %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn: required"))
	}
	if c.Chat.MaxTextLen < 0 {
		errs = append(errs, fmt.Errorf("chat.max_text_len: negative %d", c.Chat.MaxTextLen))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

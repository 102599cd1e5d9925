package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"futsync/internal/domain/contract"
)

type Config struct {
	App struct {
		BeaconEnabled bool   `toml:"beacon_enabled"`
		LogLevel      string `toml:"log_level"`
	} `toml:"app"`

	Feed struct {
		URL             string  `toml:"url"`
		FetchTimeoutSec float64 `toml:"fetch_timeout_sec"`
	} `toml:"feed"`

	Collector struct {
		ActiveSymbol    string `toml:"active_symbol"`
		ShortWindowSec  int    `toml:"short_window_sec"`
		BackfillMaxDays int    `toml:"backfill_max_days"`
		WindowSliceHrs  int    `toml:"window_slice_hours"`
		WindowPauseMs   int    `toml:"window_pause_ms"`
	} `toml:"collector"`

	Monitor struct {
		BaseRetryDelaySec float64 `toml:"base_retry_delay_sec"`
		MaxRetryDelaySec  float64 `toml:"max_retry_delay_sec"`
		LivenessPeriodSec float64 `toml:"liveness_period_sec"`
		ConnectTimeoutSec float64 `toml:"connect_timeout_sec"`
	} `toml:"monitor"`

	Watcher struct {
		Epsilon float64 `toml:"epsilon"`
	} `toml:"watcher"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled      bool   `toml:"enabled"`
			Addr         string `toml:"addr"`
			Password     string `toml:"password"`
			DB           int    `toml:"db"`
			Prefix       string `toml:"prefix"`
			TTLSec       int    `toml:"ttl_sec"`
			EventStream  string `toml:"event_stream"`
			EventChannel string `toml:"event_channel"`
		} `toml:"redis"`
	} `toml:"storage"`

	Telegram struct {
		BotToken     string `toml:"bot_token"`
		EnabledLogs  bool   `toml:"enabled_logs"`
		EnabledTrade bool   `toml:"enabled_trade"`
		ChatIDLogs   int64  `toml:"chat_id_logs"`
		ChatIDTrade  int64  `toml:"chat_id_trade"`
		TimeoutSec   int    `toml:"timeout_sec"`
	} `toml:"telegram"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Feed.FetchTimeoutSec <= 0 {
		cfg.Feed.FetchTimeoutSec = 10
	}
	if cfg.Collector.ShortWindowSec <= 0 {
		cfg.Collector.ShortWindowSec = 40
	}
	if cfg.Collector.BackfillMaxDays <= 0 {
		cfg.Collector.BackfillMaxDays = 10
	}
	if cfg.Collector.WindowSliceHrs <= 0 {
		cfg.Collector.WindowSliceHrs = 24
	}
	if cfg.Collector.WindowPauseMs <= 0 {
		cfg.Collector.WindowPauseMs = 200
	}
	if cfg.Monitor.BaseRetryDelaySec <= 0 {
		cfg.Monitor.BaseRetryDelaySec = 1.5
	}
	if cfg.Monitor.MaxRetryDelaySec <= 0 {
		cfg.Monitor.MaxRetryDelaySec = 30
	}
	if cfg.Monitor.LivenessPeriodSec <= 0 {
		cfg.Monitor.LivenessPeriodSec = 2
	}
	if cfg.Monitor.ConnectTimeoutSec <= 0 {
		cfg.Monitor.ConnectTimeoutSec = 10
	}
	if cfg.Watcher.Epsilon <= 0 {
		cfg.Watcher.Epsilon = 1e-8
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "futsync"
	}
	if cfg.Telegram.TimeoutSec <= 0 {
		cfg.Telegram.TimeoutSec = 10
	}
}

func validate(cfg *Config) error {
	cfg.Feed.URL = strings.TrimSpace(cfg.Feed.URL)
	if cfg.Feed.URL == "" {
		return errors.New("feed.url is empty")
	}

	cfg.Collector.ActiveSymbol = strings.ToUpper(strings.TrimSpace(cfg.Collector.ActiveSymbol))
	if cfg.Collector.ActiveSymbol == "" {
		return errors.New("collector.active_symbol is empty")
	}
	if _, err := contract.New(cfg.Collector.ActiveSymbol); err != nil {
		return fmt.Errorf("collector.active_symbol: %w", err)
	}

	if !cfg.Storage.SQLite.Enabled && !cfg.Storage.Postgres.Enabled {
		return errors.New("no primary storage enabled (storage.sqlite or storage.postgres)")
	}
	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		return errors.New("storage.sqlite.path empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}

	if (cfg.Telegram.EnabledLogs || cfg.Telegram.EnabledTrade) && strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return errors.New("telegram.bot_token empty but a channel is enabled")
	}
	return nil
}

// Duration accessors keep the per-component config structs explicit at the
// wiring site.

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Feed.FetchTimeoutSec * float64(time.Second))
}

func (c *Config) ShortWindow() time.Duration {
	return time.Duration(c.Collector.ShortWindowSec) * time.Second
}

func (c *Config) BackfillMaxWindow() time.Duration {
	return time.Duration(c.Collector.BackfillMaxDays) * 24 * time.Hour
}

func (c *Config) WindowSlice() time.Duration {
	return time.Duration(c.Collector.WindowSliceHrs) * time.Hour
}

func (c *Config) WindowPause() time.Duration {
	return time.Duration(c.Collector.WindowPauseMs) * time.Millisecond
}

func (c *Config) BaseRetryDelay() time.Duration {
	return time.Duration(c.Monitor.BaseRetryDelaySec * float64(time.Second))
}

func (c *Config) MaxRetryDelay() time.Duration {
	return time.Duration(c.Monitor.MaxRetryDelaySec * float64(time.Second))
}

func (c *Config) LivenessPeriod() time.Duration {
	return time.Duration(c.Monitor.LivenessPeriodSec * float64(time.Second))
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Monitor.ConnectTimeoutSec * float64(time.Second))
}

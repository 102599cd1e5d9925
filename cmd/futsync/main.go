package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/application/service"
	"futsync/internal/infrastructure/config"
	"futsync/internal/infrastructure/container"
	"futsync/internal/infrastructure/feed/gateway"
	"futsync/internal/infrastructure/logger"
	"futsync/internal/infrastructure/notify"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container init failed")
	}
	defer func() { _ = c.Close() }()

	feed := gateway.New(cfg.Feed.URL)
	defer func() { _ = feed.Close() }()

	notifier := buildNotifier(cfg)

	monitor := service.NewConnectionMonitor(feed, notifier, service.MonitorConfig{
		BaseRetryDelay: cfg.BaseRetryDelay(),
		MaxRetryDelay:  cfg.MaxRetryDelay(),
		LivenessPeriod: cfg.LivenessPeriod(),
		ConnectTimeout: cfg.ConnectTimeout(),
	})

	backfill := service.NewBackfillEngine(c.Repository(), feed, service.BackfillConfig{
		MaxWindow:    cfg.BackfillMaxWindow(),
		WindowSlice:  cfg.WindowSlice(),
		WindowPause:  cfg.WindowPause(),
		FetchTimeout: cfg.FetchTimeout(),
	})
	poller := service.NewIncrementalPoller(c.Repository(), feed, service.PollerConfig{
		ShortWindow:  cfg.ShortWindow(),
		FetchTimeout: cfg.FetchTimeout(),
	})
	collector := service.NewBarCollector(c.Repository(), backfill, poller, monitor, cfg.Collector.ActiveSymbol)

	watcher := service.NewPositionWatcher(feed, monitor, c.Repository(), notifier, service.WatcherConfig{
		Eps: cfg.Watcher.Epsilon,
	})

	log.Info().
		Str("config", *configPath).
		Str("active", cfg.Collector.ActiveSymbol).
		Str("feed", cfg.Feed.URL).
		Msg("futsync started")

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("service", name).Msg("service exited")
				stop()
			}
		}()
	}

	run("monitor", monitor.Run)
	run("collector", collector.Run)
	run("watcher", watcher.Run)
	if cfg.App.BeaconEnabled {
		run("beacon", service.NewHourBeacon(notifier).Run)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
}

func buildNotifier(cfg *config.Config) port.Notifier {
	if !cfg.Telegram.EnabledLogs && !cfg.Telegram.EnabledTrade {
		log.Warn().Msg("telegram disabled, notifications go to the log")
		return notify.LogNotifier{}
	}
	return notify.NewTelegram(
		cfg.Telegram.BotToken,
		time.Duration(cfg.Telegram.TimeoutSec)*time.Second,
		map[port.Destination]notify.Channel{
			port.DestLogs:  {ChatID: cfg.Telegram.ChatIDLogs, Enabled: cfg.Telegram.EnabledLogs},
			port.DestTrade: {ChatID: cfg.Telegram.ChatIDTrade, Enabled: cfg.Telegram.EnabledTrade},
		},
	)
}

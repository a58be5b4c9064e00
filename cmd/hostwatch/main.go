package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/config"
	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/events"
	"github.com/hamed0406/hostwatch/internal/httpapi"
	"github.com/hamed0406/hostwatch/internal/logging"
	"github.com/hamed0406/hostwatch/internal/metrics"
	"github.com/hamed0406/hostwatch/internal/notify"
	"github.com/hamed0406/hostwatch/internal/probe"
	"github.com/hamed0406/hostwatch/internal/scheduler"
)

func main() {
	env, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	path := env.ConfigPath
	flag.StringVar(&path, "config-path", path, "path to the YAML or JSON config file")
	flag.StringVar(&path, "c", path, "shorthand for -config-path")
	flag.Parse()

	logger, err := logging.NewLogger(env.LogDir, env.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(path, env)
	if err != nil {
		logger.Fatal("config_invalid", zap.String("path", path), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	bot := notify.NewTelegram(cfg.Telegram.APIToken, cfg.Telegram.APIURL)
	if me, err := bot.GetMe(ctx); err != nil {
		logger.Warn("telegram_unreachable", zap.Error(err))
	} else {
		logger.Info("telegram_ready", zap.String("bot", me.Username))
	}

	pub, err := events.Open(ctx, cfg.Events.TopicURL, logger, reg)
	if err != nil {
		logger.Fatal("events_open_error", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Close(closeCtx); err != nil {
			logger.Warn("events_close_error", zap.Error(err))
		}
	}()

	sup := &scheduler.Supervisor{
		Logger:     logger,
		Alerter:    scheduler.NewAlerter(logger, bot, cfg.Telegram.ChatIDs, cfg.RetryBackoff(), reg),
		Classifier: probe.NewClassifier(),
		Events:     pub,
		Metrics:    reg,
	}
	if cfg.Telegram.CommandsEnabled {
		if err := bot.SetCommands(ctx, scheduler.BotCommands); err != nil {
			logger.Warn("telegram_set_commands_error", zap.Error(err))
		}
		sup.Commands = scheduler.NewCommandListener(logger, bot, cfg.Telegram.ChatIDs, cfg.PollTimeout(), reg)
	}

	if cfg.Ops.Addr != "" {
		ops := httpapi.NewServer(logger, reg, cfg.Ops.AllowedOrigins)
		go func() {
			if err := ops.ListenAndServe(ctx, cfg.Ops.Addr); err != nil {
				logger.Error("ops_server_error", zap.Error(err))
			}
		}()
	}

	if err := sup.Start(ctx, buildWatches(cfg)); err != nil {
		logger.Fatal("monitor_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

// buildWatches turns both config groups into watches: ICMP for ping_config,
// HTTP GET for request_config.
func buildWatches(cfg *config.Config) []scheduler.Watch {
	var watches []scheduler.Watch
	for _, a := range cfg.Ping.Addresses {
		s := cfg.Ping.ScheduleFor(a)
		watches = append(watches, scheduler.Watch{
			Target: domain.Target{Address: a.Address, Description: a.Description, Kind: domain.KindPing},
			Prober: probe.NewPingProber(s.Timeout),
			Config: monitorConfig(s),
		})
	}
	for _, a := range cfg.Request.Addresses {
		s := cfg.Request.ScheduleFor(a)
		watches = append(watches, scheduler.Watch{
			Target: domain.Target{Address: a.Address, Description: a.Description, Kind: domain.KindHTTP},
			Prober: probe.NewHTTPChecker(s.Timeout),
			Config: monitorConfig(s),
		})
	}
	return watches
}

func monitorConfig(s config.Schedule) scheduler.MonitorConfig {
	return scheduler.MonitorConfig{Interval: s.Interval, Threshold: s.Threshold, Cooldown: s.Cooldown}
}

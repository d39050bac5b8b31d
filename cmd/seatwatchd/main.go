package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	apiPkg "github.com/h1v3-io/seatwatch/internal/api"
	"github.com/h1v3-io/seatwatch/internal/chatops"
	"github.com/h1v3-io/seatwatch/internal/config"
	"github.com/h1v3-io/seatwatch/internal/connector"
	slackconn "github.com/h1v3-io/seatwatch/internal/connector/slack"
	"github.com/h1v3-io/seatwatch/internal/connector/telegram"
	"github.com/h1v3-io/seatwatch/internal/connector/webhook"
	"github.com/h1v3-io/seatwatch/internal/engine"
	"github.com/h1v3-io/seatwatch/internal/handover"
	"github.com/h1v3-io/seatwatch/internal/journal"
	"github.com/h1v3-io/seatwatch/internal/logbuf"
	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/internal/scheduler"
	"github.com/h1v3-io/seatwatch/internal/site/httpsite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (.json, .yaml, .yml)")
	remoteURL := flag.String("remote-url", os.Getenv("SEATWATCH_REMOTE_URL"), "Dashboard URL serving the config")
	remoteKey := flag.String("remote-key", os.Getenv("SEATWATCH_REMOTE_KEY"), "API key for the dashboard")
	dataDir := flag.String("data-dir", os.Getenv("SEATWATCH_DATA_DIR"), "Local data directory in remote mode")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(logbuf.DefaultSize)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (3 modes: file, remote, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else if *remoteURL != "" {
		logger.Info("loading config from dashboard", "url", *remoteURL)
		cfg, err = config.LoadFromRemote(config.RemoteOptions{
			URL:     *remoteURL,
			APIKey:  *remoteKey,
			DataDir: *dataDir,
		})
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	platforms, _ := platform.Select(cfg.Watch.Platforms) // unknown names rejected by Validate
	logger.Info("seatwatchd starting", "platforms", len(platforms), "match", cfg.Search.MatchText)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Journal
	opts := engine.Options{
		Platforms:         platforms,
		Criteria:          cfg.Search,
		CycleInterval:     cfg.Watch.CycleInterval.D(),
		MonitorPause:      cfg.Watch.MonitorPause.D(),
		CandidateLimit:    cfg.Watch.CandidateLimit,
		ProbeTimeout:      cfg.Watch.ProbeTimeout.D(),
		MaxProbes:         cfg.Watch.MaxProbes,
		SampleCategories:  cfg.Watch.SampleCategories,
		NotifyDiscoveries: cfg.Notify.Discoveries,
		LogLines:          cfg.Watch.LogLines,
		Logs:              logBuf,
		Logger:            logger,
	}
	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = openJournal(ctx, cfg.Journal)
		if err != nil {
			logger.Error("failed to open journal", "driver", cfg.Journal.Driver, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts.Journal = store
		logger.Info("journal opened", "driver", cfg.Journal.Driver)
	}

	// 2. Site sessions + engine
	opts.Factory = httpsite.Factory(httpsite.Options{
		UserAgent: cfg.Site.UserAgent,
		Timeout:   cfg.Site.RequestTimeout.D(),
		Logger:    logger.With("component", "site"),
	})
	eng, err := engine.New(opts)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// 3. Chat commands + connectors
	commands := chatops.New(ctx, eng, logger.With("component", "chatops"))
	kinds := []handover.Kind{handover.KindHandover}
	if cfg.Notify.Discoveries {
		kinds = append(kinds, handover.KindDiscovered)
	}

	if tg := cfg.Notify.Telegram; tg != nil {
		tgConn, err := telegram.New(telegram.Config{
			Token:     tg.Token,
			AllowFrom: tg.AllowFrom,
		}, commands.Inbound, logger.With("connector", "telegram"))
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		startConnector(ctx, logger, tgConn)
		eng.AddNotifier(&handover.ConnectorNotifier{
			Conn:   tgConn,
			ChatID: strconv.FormatInt(tg.ChatID, 10),
			Kinds:  kinds,
		})
	}

	if sl := cfg.Notify.Slack; sl != nil {
		slConn, err := slackconn.New(slackconn.Config{
			BotToken:  sl.BotToken,
			AppToken:  sl.AppToken,
			Channel:   sl.Channel,
			AllowFrom: sl.AllowFrom,
		}, commands.Inbound, logger.With("connector", "slack"))
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		startConnector(ctx, logger, slConn)
		eng.AddNotifier(&handover.ConnectorNotifier{Conn: slConn, Kinds: kinds})
	}

	var inbound *webhook.Handler
	if wh := cfg.Notify.Webhook; wh != nil {
		sender, err := webhook.NewSender(webhook.Config{
			URL:     wh.URL,
			Secret:  wh.Secret,
			Headers: wh.Headers,
			Kinds:   kinds,
		}, logger.With("connector", "webhook"))
		if err != nil {
			logger.Error("failed to init webhook sender", "error", err)
			os.Exit(1)
		}
		eng.AddNotifier(sender)
		if wh.Secret != "" {
			inbound = webhook.NewHandler(webhook.InboundConfig{Secret: wh.Secret}, commands.Inbound, logger.With("connector", "webhook"))
		}
	}

	// 4. API server
	apiSrv := apiPkg.NewServer(ctx, eng, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)
	if store != nil {
		apiSrv.SetHistory(store)
	}
	if inbound != nil {
		apiSrv.Mount("POST /api/webhook", inbound)
	}
	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
		}
	})

	// 5. Schedule
	sched := scheduler.New(eng, logger.With("component", "scheduler"))
	if err := sched.Window(cfg.Schedule.Start, cfg.Schedule.Stop); err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}
	if sched.JobCount() > 0 {
		go safeGo(logger, "scheduler", func() { sched.Run(ctx) })
		logger.Info("schedule armed", "start", cfg.Schedule.Start, "stop", cfg.Schedule.Stop)
	}

	if cfg.Watch.AutoStart {
		eng.Start(ctx)
	}

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	eng.Shutdown()
	logger.Info("seatwatchd stopped")
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (*journal.Store, error) {
	if cfg.Driver == config.JournalPostgres {
		return journal.OpenPostgres(ctx, cfg.DSN)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return journal.Open(cfg.Path)
}

func startConnector(ctx context.Context, logger *slog.Logger, c connector.Connector) {
	go safeGo(logger, c.Name(), func() {
		if err := c.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("connector stopped", "connector", c.Name(), "error", err)
		}
	})
	logger.Info("connector started", "connector", c.Name())
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"baby_sleep_tracker_bot/internal/config"
	"baby_sleep_tracker_bot/internal/domain"
	"baby_sleep_tracker_bot/internal/feature/registration"
	"baby_sleep_tracker_bot/internal/feature/settings"
	"baby_sleep_tracker_bot/internal/health"
	"baby_sleep_tracker_bot/internal/logging"
	"baby_sleep_tracker_bot/internal/state"
	"baby_sleep_tracker_bot/internal/store"
	"baby_sleep_tracker_bot/internal/telegram"
	"baby_sleep_tracker_bot/internal/webapp"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	storageCountTimeout     = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":   "startup",
		"backend": cfg.StorageBackend,
	}).Info("configuration loaded")

	var (
		profiles       domain.ProfileStore
		storageChecker health.StorageChecker
	)

	switch cfg.StorageBackend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
		manager, err := store.NewManager(connectCtx, cfg)
		cancel()
		if err != nil {
			logger.WithError(err).Error("mongo connection error")
			fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
			os.Exit(1)
		}

		logger.WithField("event", "mongo_connect").Info("connected to mongo")

		indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
		if err := manager.EnsureProfileIndexes(indexCtx); err != nil {
			cancelIndexes()
			logger.WithError(err).Error("mongo index setup error")
			fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
			os.Exit(1)
		}
		cancelIndexes()

		logger.WithField("event", "mongo_indexes").Info("ensured profile indexes")

		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
			if err := manager.Close(shutdownCtx); err != nil {
				logger.WithError(err).Error("mongo disconnect error")
			} else {
				logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
			}
			cancelShutdown()
		}()

		profiles = store.NewMongoStore(manager.Profiles(), logger)
		storageChecker = manager

	default:
		fileStore := store.NewFileStore(cfg.UsersFile, logger)
		logger.WithFields(logging.Fields{
			"event": "file_store_ready",
			"path":  cfg.UsersFile,
		}).Info("using file store")

		profiles = fileStore
		storageChecker = fileStore
	}

	countCtx, cancelCount := context.WithTimeout(context.Background(), storageCountTimeout)
	if count, err := profiles.Count(countCtx); err != nil {
		logger.WithError(err).Warn("could not count stored profiles")
	} else {
		logger.WithFields(logging.Fields{
			"event":         "profile_count",
			"profile_count": count,
		}).Info("profile store ready")
	}
	cancelCount()

	states := state.NewTracker()
	links := webapp.NewLinkBuilder(cfg.WebAppURL)
	registrationFlow := registration.NewFlow(profiles, states, links, logger)
	settingsFlow := settings.NewFlow(profiles, states, links, logger)

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithRegistrationFlow(registrationFlow),
		telegram.WithSettingsFlow(settingsFlow),
		telegram.WithStateTracker(states),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, storageChecker, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

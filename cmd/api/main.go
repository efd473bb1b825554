package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/livesync"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/remote"
	"storefront/internal/repository"
	"storefront/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// remoteStore is what the repositories and the sync store need from the backend.
type remoteStore interface {
	domain.Source
	domain.Subscriber
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	source, err := initRemote(cfg, &logger)
	if err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		notifier domain.Notifier
		history  domain.NotificationHistory
	)
	if cfg.Notifications.Enabled {
		db, err := database.NewDB(cfg.Database.Path, &logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return err
		}
		defer db.Close()

		deliveryWorker := worker.NewDeliveryWorker(db, initChannels(cfg, &logger), redisClient,
			worker.PolicyFromConfig(cfg.Notifications.Retry), &logger)
		go deliveryWorker.Start(ctx)

		notifier = notify.NewDispatcher(deliveryWorker, initLimiter(redisClient, &logger), cfg.Notifications.RateLimit, &logger)
		history = db
	} else {
		logger.Warn().Msg("notifications disabled, catalog changes will not be announced")
	}

	items := repository.NewItemRepository(source, notifier, &logger)
	bookings := repository.NewBookingRepository(source, notifier, &logger)
	categories := repository.NewCategoryRepository(source)
	reviews := repository.NewReviewRepository(source)
	about := repository.NewAboutRepository(source)
	appInfo := repository.NewAppInfoRepository(source)

	bus := events.NewEventBus()
	unsubscribe := bus.Subscribe(events.EventCollectionChanged, func(e *events.Event) error {
		var change events.CollectionChange
		if err := e.Decode(&change); err != nil {
			return err
		}
		logger.Debug().Str("collection", change.Collection).Str("reason", change.Reason).Int("size", change.Size).Msg("collection changed")
		return nil
	})
	defer unsubscribe()

	store := livesync.New(livesync.Sources{
		Items:      items,
		Bookings:   bookings,
		Categories: categories,
		Reviews:    reviews,
		About:      about,
		AppInfo:    appInfo,
	}, source,
		livesync.WithLogger(&logger),
		livesync.WithEventBus(bus),
		livesync.WithFetchTimeout(cfg.Remote.Timeout),
		livesync.WithErrorReporter(func(stage, collection string, err error) {
			logger.Warn().Err(err).Str("stage", stage).Str("collection", collection).Msg("sync error")
		}),
	)
	defer store.Close()
	if err := store.Start(ctx); err != nil {
		// the loaded snapshot is still served, only live updates are missing
		logger.Error().Err(err).Msg("sync store started without change feeds")
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, serving the sync store only")
		<-ctx.Done()
		return nil
	}

	httpServer := api.NewServer(cfg.API, api.Deps{
		Catalog:    store,
		Items:      items,
		Bookings:   bookings,
		Categories: categories,
		Reviews:    reviews,
		About:      about,
		AppInfo:    appInfo,
		Notifier:   notifier,
		History:    history,
	}, &logger)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := *logging.Component(baseLogger, "main")

	return cfg, logger, closer, nil
}

func initRemote(cfg *config.Config, logger *zerolog.Logger) (remoteStore, error) {
	switch cfg.Remote.Driver {
	case config.DriverMemory:
		mem := remote.NewMemory()
		if cfg.Remote.SeedPath != "" {
			if err := remote.LoadSeed(mem, cfg.Remote.SeedPath); err != nil {
				logger.Error().Err(err).Str("seed_path", cfg.Remote.SeedPath).Msg("load seed")
				return nil, err
			}
		}
		logger.Info().Msg("using in-memory catalog")
		return mem, nil
	default:
		logger.Info().Str("url", cfg.Remote.URL).Msg("using hosted catalog")
		return remote.NewClient(cfg.Remote, logger), nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverLimiter(repository.NewRedisLimiter(redisClient, "notify_limit"), memory, logger)
}

func initChannels(cfg *config.Config, logger *zerolog.Logger) *notify.Fanout {
	fanout := notify.NewFanout(logger)

	if cfg.Notifications.Push.AppID != "" && cfg.Notifications.Push.APIKey != "" {
		fanout.Add("push", notify.NewPushClient(cfg.Notifications.Push, &http.Client{Timeout: 10 * time.Second}))
	}

	tg := cfg.Notifications.Telegram
	if tg.BotToken != "" && len(tg.ChatIDs) > 0 {
		bot, err := tgbotapi.NewBotAPI(tg.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		} else {
			bot.Debug = tg.Debug
			logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(tg.ChatIDs)).Msg("telegram connected")
			fanout.Add("telegram", notify.NewTelegramChannel(bot, tg.ChatIDs))
		}
	}

	if fanout.Len() == 0 {
		logger.Warn().Msg("no delivery channels configured, notifications are only recorded")
	}
	return fanout
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("storefront started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("storefront stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

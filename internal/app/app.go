package app

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pricealert/internal/config"
	"github.com/NasaVasa/pricealert/internal/delivery/rest"
	"github.com/NasaVasa/pricealert/internal/delivery/telegram"
	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/infra/auth"
	"github.com/NasaVasa/pricealert/internal/infra/binance"
	"github.com/NasaVasa/pricealert/internal/infra/cache"
	"github.com/NasaVasa/pricealert/internal/infra/db"
	"github.com/NasaVasa/pricealert/internal/infra/log"
	"github.com/NasaVasa/pricealert/internal/infra/mail"
	"github.com/NasaVasa/pricealert/internal/infra/metrics"
	"github.com/NasaVasa/pricealert/internal/usecase"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type priceCache interface {
	domain.PriceCache
	Close() error
}

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	alerts     domain.AlertRepository
	registry   *usecase.SubscriptionRegistry
	feed       *usecase.FeedConnection
	engine     *usecase.MatchEngine
	dispatcher *usecase.Dispatcher
	server     *rest.Server
	prices     priceCache
	cleanupFn  func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanup := func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	userRepo := db.NewUserRepository(dbConn)
	alertRepo := db.NewAlertRepository(dbConn)
	prom := metrics.NewPrometheus()
	prices := newPriceCache(ctx, cfg, logger)

	sink, err := newNotificationSink(cfg, logger)
	if err != nil {
		_ = cleanup()
		_ = prices.Close()
		return nil, err
	}

	registry := usecase.NewSubscriptionRegistry(prom, logger)
	dialer := binance.NewWSDialer(cfg.BinanceWSURL, cfg.FeedReadTimeout, cfg.FeedWriteTimeout, logger)
	feed := usecase.NewFeedConnection(dialer, registry, cfg.FeedReconnectBackoff, cfg.FeedControlBuffer, prom, logger)
	dispatcher := usecase.NewDispatcher(sink, cfg.NotifyWorkers, cfg.NotifyTimeout, prom, logger)
	engine := usecase.NewMatchEngine(alertRepo, userRepo, registry, dispatcher, prices, prom, logger)

	lifecycle := usecase.NewAlertLifecycle(alertRepo, registry, logger)
	alertUC := usecase.NewAlertUsecase(userRepo, alertRepo, lifecycle)
	userUC := usecase.NewUserUsecase(userRepo, auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL))

	handlers := rest.NewHandlers(userUC, alertUC, prices, feed, prom.Handler(), logger)
	server := rest.NewServer(cfg.HTTPAddr, handlers.Routes(), logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		alerts:     alertRepo,
		registry:   registry,
		feed:       feed,
		engine:     engine,
		dispatcher: dispatcher,
		server:     server,
		prices:     prices,
		cleanupFn:  cleanup,
	}, nil
}

func newPriceCache(ctx context.Context, cfg config.Config, logger *zap.Logger) priceCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.PriceCacheTTL)
	}
	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PriceCacheTTL)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory price cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return cache.NewMemoryCache(cfg.PriceCacheTTL)
	}
	return redisCache
}

// newNotificationSink always emails; telegram is added when a bot token is set.
func newNotificationSink(cfg config.Config, logger *zap.Logger) (domain.NotificationSink, error) {
	client, err := mail.NewSMTPClient(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	if err != nil {
		return nil, err
	}
	sinks := usecase.MultiSink{mail.NewSMTPNotifier(client, cfg.SMTPFrom, logger)}

	if cfg.TelegramBotToken != "" {
		api, err := telegram.NewAPI(cfg.TelegramBotToken, cfg.NotifyTimeout)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, telegram.NewNotifier(api, logger))
	}
	return sinks, nil
}

// Run seeds the registry from stored alerts and serves until ctx is done or
// one of the loops fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("pricealert service starting")

	keys, err := a.alerts.ListActiveChannelKeys(ctx)
	if err != nil {
		return err
	}
	a.registry.Seed(keys)

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		a.feed.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		a.engine.Run(ctx, a.feed.Ticks())
		return nil
	})
	p.Go(func(ctx context.Context) error {
		return a.server.Run()
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("pricealert service started", zap.Int("alerts", len(keys)))
	err = p.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown must be called after Run has returned.
func (a *App) Shutdown() {
	a.logger.Info("pricealert service shutting down")

	drained := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(a.cfg.NotifyTimeout + time.Second):
		a.logger.Warn("notification dispatcher did not drain in time")
	}

	if err := a.prices.Close(); err != nil {
		a.logger.Warn("failed to close price cache", zap.Error(err))
	}
	if a.cleanupFn != nil {
		if err := a.cleanupFn(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

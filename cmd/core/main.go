package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/folio-core/internal/api/handler"
	"github.com/xela07ax/folio-core/internal/api/server"
	"github.com/xela07ax/folio-core/internal/audit"
	"github.com/xela07ax/folio-core/internal/chat"
	"github.com/xela07ax/folio-core/internal/events"
	"github.com/xela07ax/folio-core/internal/infra"
	"github.com/xela07ax/folio-core/internal/infra/auth"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/repository/memory"
	"github.com/xela07ax/folio-core/internal/repository/postgres"
	redisrepo "github.com/xela07ax/folio-core/internal/repository/redis"
	"github.com/xela07ax/folio-core/internal/resolver"
	"github.com/xela07ax/folio-core/internal/shared"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: config.yaml in . or ./configs)")
	flag.Parse()

	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// SIGINT/SIGTERM отменяют appCtx и запускают graceful shutdown
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(appCtx, cfg, *configPath, logger); err != nil {
		logger.Fatal("core exited with error", zap.Error(err))
	}
	logger.Info("core exited properly")
}

func run(ctx context.Context, cfg *infra.Config, configPath string, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clock := shared.SystemClock{}

	// 2. Каталог фактов
	catalog, err := resolver.NewCatalog(cfg.Facts)
	if err != nil {
		return err
	}
	facts := resolver.NewRegistry(catalog)
	logger.Info("fact catalog loaded",
		zap.Int("skills", len(cfg.Facts.Skills)),
		zap.Int("brands", len(cfg.Facts.Brands)))

	// 3. Infrastructure
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
	}

	store, closeStore, err := openAuditStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var dlq audit.DeadLetterQueue = memory.NewDeadLetterRepo()
	if cfg.Audit.DeadLetter == "redis" {
		dlq = redisrepo.NewDeadLetterRepo(rdb, infra.RedisKeyDeadLetters, logger)
	}

	// 4. Шина и сервисы. Аудит подписывается раньше, чем кто-то начнет публиковать.
	bus := events.NewBus(cfg.Bus.HighWater, logger, m)
	reliable := audit.NewReliableStore(store,
		audit.RetryConfig{
			Attempts:  cfg.Audit.RetryAttempts,
			BaseDelay: cfg.Audit.RetryBaseDelay,
			MaxDelay:  cfg.Audit.RetryMaxDelay,
		},
		audit.BreakerConfig{
			MaxRequests:         cfg.Audit.BreakerRequests,
			Interval:            cfg.Audit.BreakerInterval,
			Timeout:             cfg.Audit.BreakerTimeout,
			ConsecutiveFailures: cfg.Audit.BreakerFailures,
		},
		logger, m)
	auditSvc := audit.NewService(reliable, dlq, clock, logger, m, audit.WithPageSize(cfg.Audit.PageSize))
	auditSvc.Register(bus)
	bus.Start()

	chatSvc := chat.NewService(chat.NewStore(), facts, bus, clock, chat.Config{
		SessionTimeout:   cfg.Chat.SessionTimeout,
		IdleAfter:        cfg.Chat.IdleAfter,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}, logger, m, chat.WithFallback(auditSvc.OnEvent))

	// 5. HTTP Server
	opts := server.Options{
		Logger:    logger,
		Chat:      handler.NewChatHandler(chatSvc, logger),
		Audit:     handler.NewAuditHandler(auditSvc, logger),
		Gatherer:  reg,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		// очередь недоставленных своя у процесса ядра, так что операции с ней здесь корректны
		DeadLetters:      true,
		TrustActorHeader: cfg.Server.TrustActorHeader,
	}
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return err
		}
		opts.Validator = auth.NewRSAValidator(pub)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.New(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Работаем до сигнала
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("core started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return chat.NewSweeper(chatSvc, cfg.Chat.SweepInterval, logger).Run(gctx)
	})
	if rdb != nil {
		g.Go(func() error {
			return chat.NewCloseListener(chatSvc, rdb, logger).Run(gctx)
		})
		g.Go(func() error {
			listenFactsReload(gctx, rdb, facts, configPath, logger)
			return nil
		})
	}

	// 7. Graceful Shutdown: перестаем принимать запросы, затем дренируем шину,
	// чтобы каждый отвеченный ход дошел до аудита.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("core stopping...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := bus.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// openAuditStore выбирает postgres, если задан database.url, и память
// в остальных случаях.
func openAuditStore(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (audit.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database.url: audit records are kept in memory only")
		return memory.NewAuditRepo(), func() {}, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := postgres.Open(openCtx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewAuditRepo(db)
	if cfg.Database.EnsureSchema {
		if err := repo.EnsureSchema(openCtx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repo, func() { closeDB(db, logger) }, nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}

// listenFactsReload пересобирает каталог из конфига каждый раз, когда
// админка сообщает об изменении таблиц фактов.
func listenFactsReload(ctx context.Context, rdb *redis.Client, facts *resolver.Registry, configPath string, logger *zap.Logger) {
	logger = logger.Named("facts-reload")
	infra.ListenResilient(ctx, rdb, logger, infra.RedisChanFactsReload, nil, func(_ context.Context, _ string) {
		cfg, err := infra.LoadConfig(configPath)
		if err != nil {
			logger.Error("reload config failed, keeping current catalog", zap.Error(err))
			return
		}
		if err := facts.Reload(cfg.Facts); err != nil {
			logger.Error("rebuild catalog failed, keeping current catalog", zap.Error(err))
			return
		}
		logger.Info("fact catalog reloaded",
			zap.Int("skills", len(cfg.Facts.Skills)),
			zap.Int("brands", len(cfg.Facts.Brands)))
	})
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/api/handler"
	"github.com/xela07ax/folio-core/internal/api/server"
	"github.com/xela07ax/folio-core/internal/audit"
	"github.com/xela07ax/folio-core/internal/chat"
	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/infra"
	"github.com/xela07ax/folio-core/internal/infra/auth"
	"github.com/xela07ax/folio-core/internal/metrics"
	"github.com/xela07ax/folio-core/internal/repository/memory"
	"github.com/xela07ax/folio-core/internal/repository/postgres"
	redisrepo "github.com/xela07ax/folio-core/internal/repository/redis"
	"github.com/xela07ax/folio-core/internal/shared"
)

// Консоль отдает админке чтение аудита прямо из postgres.
// На шину она не подписывается, пишут инстансы ядра.
func main() {
	var (
		configPath   = flag.String("config", "", "path to config file")
		issueFor     = flag.String("issue-token", "", "print an admin token for this user id and exit")
		scopes       = flag.String("scopes", domain.ScopeAuditRead, "comma separated scopes for -issue-token")
		closeSession = flag.String("close-session", "", "ask every core instance to close this session and exit")
		reloadFacts  = flag.Bool("reload-facts", false, "ask every core instance to reload its fact tables and exit")
	)
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *issueFor != "":
		err = issueToken(cfg, *issueFor, *scopes)
	case *closeSession != "" || *reloadFacts:
		err = signalCore(ctx, cfg, *closeSession, *reloadFacts, logger)
	default:
		err = serve(ctx, cfg, logger)
	}
	if err != nil {
		logger.Fatal("console failed", zap.Error(err))
	}
}

func issueToken(cfg *infra.Config, userID, scopes string) error {
	key, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return err
	}
	list := strings.Split(scopes, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	tok, err := auth.NewIssuer(key, cfg.Auth.TokenTTL).Issue(userID, list, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func signalCore(ctx context.Context, cfg *infra.Config, sessionID string, reload bool, logger *zap.Logger) error {
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required to signal core instances")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	if sessionID != "" {
		n, err := chat.RequestClose(ctx, rdb, sessionID)
		if err != nil {
			return err
		}
		logger.Info("close requested", zap.String("session_id", sessionID), zap.Int64("receivers", n))
	}
	if reload {
		n, err := rdb.Publish(ctx, infra.RedisChanFactsReload, "reload").Result()
		if err != nil {
			return err
		}
		logger.Info("facts reload requested", zap.Int64("receivers", n))
	}
	return nil
}

func serve(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	db, err := postgres.Open(openCtx, cfg.Database.URL)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var dlq audit.DeadLetterQueue = memory.NewDeadLetterRepo()
	if cfg.Audit.DeadLetter == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		dlq = redisrepo.NewDeadLetterRepo(rdb, infra.RedisKeyDeadLetters, logger)
	}

	reliable := audit.NewReliableStore(postgres.NewAuditRepo(db),
		audit.RetryConfig{Attempts: cfg.Audit.RetryAttempts, BaseDelay: cfg.Audit.RetryBaseDelay, MaxDelay: cfg.Audit.RetryMaxDelay},
		audit.BreakerConfig{
			MaxRequests:         cfg.Audit.BreakerRequests,
			Interval:            cfg.Audit.BreakerInterval,
			Timeout:             cfg.Audit.BreakerTimeout,
			ConsecutiveFailures: cfg.Audit.BreakerFailures,
		},
		logger, m)
	auditSvc := audit.NewService(reliable, dlq, shared.SystemClock{}, logger, m, audit.WithPageSize(cfg.Audit.PageSize))

	opts := server.Options{
		Logger:           logger,
		Audit:            handler.NewAuditHandler(auditSvc, logger),
		Gatherer:         reg,
		DeadLetters:      cfg.Audit.DeadLetter == "redis",
		TrustActorHeader: cfg.Server.TrustActorHeader,
	}
	if !opts.DeadLetters {
		// memory-очередь живет в процессе ядра, отсюда ее не видно
		logger.Warn("dead-letter routes disabled: audit.dead_letter is not redis")
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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("console stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

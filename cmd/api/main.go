package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/config"
	"github.com/hamed0406/subcheck/internal/httpapi"
	apimw "github.com/hamed0406/subcheck/internal/httpapi/middleware"
	"github.com/hamed0406/subcheck/internal/logging"
	"github.com/hamed0406/subcheck/internal/notify"
	"github.com/hamed0406/subcheck/internal/probe"
	"github.com/hamed0406/subcheck/internal/repo"
	"github.com/hamed0406/subcheck/internal/repo/memory"
	"github.com/hamed0406/subcheck/internal/repo/postgres"
	"github.com/hamed0406/subcheck/internal/scan"
	"github.com/hamed0406/subcheck/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repo.ScanStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("db_connect_error", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("db_migrate_error", zap.Error(err))
		}
		store = pg
		logger.Info("store_postgres")
	} else {
		store = memory.New()
		logger.Info("store_memory")
	}

	prober := probe.NewHTTPProber(logger, cfg.ProbeTimeout).WithRateLimit(cfg.ProbeRPS)
	if cfg.InsecureTLS {
		prober.Client.Transport = probe.NewTransport(true)
	}
	sched := scheduler.NewBatchScheduler(logger, prober, cfg.BatchSize)

	var classifier scan.Classifier
	if cfg.DNSDiagnose {
		classifier = probe.NewDNSClassifier(cfg.DNSResolver, 0)
	}

	var notifiers notify.Multi
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		notifiers = append(notifiers, s)
	}

	mgr := scan.NewManager(logger, store, sched, classifier, notifiers)

	api := httpapi.NewServer(logger, mgr)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.Int("batch_size", cfg.BatchSize),
			zap.Duration("probe_timeout", cfg.ProbeTimeout),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_listen_error", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	logger.Info("api_shutdown")
	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	if err := mgr.Shutdown(shutCtx); err != nil {
		logger.Warn("scan_shutdown_error", zap.Error(err))
	}
}

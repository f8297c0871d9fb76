package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"zkns/internal/ledger"
	"zkns/internal/platform/config"
	"zkns/internal/platform/httpserver"
	"zkns/internal/platform/logger"
	"zkns/internal/platform/metrics"
	"zkns/internal/platform/middleware"
	platformredis "zkns/internal/platform/redis"
	"zkns/internal/proof"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/cache"
	"zkns/internal/registry/handler"
	"zkns/internal/registry/models"
	"zkns/internal/registry/service"
	"zkns/internal/registry/state"
	"zkns/internal/settlement"
	"zkns/internal/settlement/events"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business rules live in the internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	actions, cleanup, err := openActionLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// Rebuild the last-settled views from the durable log before anything
	// reads or settles; a fresh log yields the genesis state.
	st, err := state.NewFromLog(ctx, actions, state.Genesis{
		Admin:   models.PublicKey(cfg.AdminKey),
		Premium: cfg.Premium,
	})
	if err != nil {
		return err
	}
	if c := st.Commitment(); c.Cursor > 0 {
		log.Info("state rebuilt from settled log", "cursor", c.Cursor)
	}

	backend := proof.NewFake()
	if err := backend.Compile(ctx); err != nil {
		return err
	}
	chain := ledger.NewMemory(st.Commitment(), backend)

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		pub = kafka
		log.Info("settlement events enabled", "topic", cfg.KafkaTopic)
	}

	m := metrics.New()
	machine := settlement.New(settlement.Config{
		Log:        actions,
		State:      st,
		Backend:    backend,
		Ledger:     chain,
		Events:     pub,
		Metrics:    m,
		Logger:     log,
		BatchLimit: cfg.BatchLimit,
	})
	daemon := settlement.NewDaemon(machine, actions, log, cfg.SettleInterval, cfg.RetryWait, cfg.PendingThreshold)

	var recordCache service.RecordCache
	if cfg.RedisURL != "" {
		rdb, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		recordCache = cache.New(rdb.Client, cfg.CacheTTL)
		log.Info("resolve cache enabled", "ttl", cfg.CacheTTL)
	}

	svc := service.New(st, service.NoopCollector{}, recordCache, daemon, log, m)
	machine.OnSettled(svc.InvalidateSettled)

	h := handler.New(svc, st, actions, log)
	router := newRouter(cfg, log, h)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return daemon.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting zkns", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func newRouter(cfg config.Config, log *slog.Logger, h *handler.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.CallerKey)

	r.Group(h.Register)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		h.RegisterAdmin(r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// openActionLog picks the durable log when a DSN is configured, the in-memory
// one otherwise. Memory is for dev: pending actions do not survive a restart.
func openActionLog(ctx context.Context, cfg config.Config, log *slog.Logger) (actionlog.Log, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("no postgres DSN configured, action log is in-memory")
		return actionlog.NewMemory(), func() {}, nil
	}
	pg, err := actionlog.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	log.Info("action log backed by postgres")
	return pg, func() { _ = pg.Close() }, nil
}

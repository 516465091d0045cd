// notification-service
//
// Job-digest notifications and the in-process domain-event bus for the
// BuilderPulse marketplace.
//
//   - POST /events/{kind}     → publish a domain event inside one DB transaction
//   - POST /admin/digest/run  → run one digest pass now (also over gRPC)
//   - background scheduler    → digest pass every DIGEST_INTERVAL_MINUTES
//
// Every event is forwarded to Redis as EVENT_<KIND> for the gateway's live
// updates and, when RABBIT_URL is set, to a RabbitMQ topic exchange.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"builderpulse/notification-service/internal/config"
	"builderpulse/notification-service/internal/db"
	"builderpulse/notification-service/internal/digest"
	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/events"
	"builderpulse/notification-service/internal/grpcserver"
	"builderpulse/notification-service/internal/handlers"
	"builderpulse/notification-service/internal/httpapi"
	"builderpulse/notification-service/internal/logger"
	"builderpulse/notification-service/internal/metrics"
	"builderpulse/notification-service/internal/scheduler"
	"builderpulse/notification-service/internal/store"
	"builderpulse/notification-service/internal/tracing"
)

const version = "1.0.0"

const lockTTL = 10 * time.Minute

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[notification-service] Config error: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("[notification-service] Logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatalw("notification-service stopped with error", "err", err)
	}
}

func run(cfg *config.Config, lg *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Otel, version, lg)
	if err != nil {
		return err
	}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	lg.Infow("connecting to postgres")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "postgres")
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, lg.Named("migrate")); err != nil {
			return err
		}
	}

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		lg.Infow("connecting to redis")
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "redis")
		}
		defer rdb.Close()
	}

	// ── Metrics ──────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	// ── Email ────────────────────────────────────────────────────────────────
	templates, err := email.NewTemplates(cfg.Email.AppBaseURL)
	if err != nil {
		return err
	}
	var sender email.Sender = email.NewLogSender(lg)
	if cfg.Email.Enabled && cfg.Email.IsConfigured() {
		mg := email.NewMailgunSender(cfg.Email.MailgunDomain, cfg.Email.MailgunAPIKey,
			cfg.Email.FromName, cfg.Email.FromAddress, lg)
		if cfg.Email.TestMode {
			mg = mg.WithTestMode()
		}
		sender = mg
	}

	st := store.New(pool)

	// ── Event bus ────────────────────────────────────────────────────────────
	deps := handlers.Deps{Store: st, Sender: sender, Templates: templates, Log: lg}
	if rdb != nil {
		deps.Redis = rdb
	}
	if cfg.Events.RabbitURL != "" {
		fwd, err := handlers.DialAMQP(cfg.Events.RabbitURL, cfg.Events.Exchange, lg)
		if err != nil {
			return errors.Wrap(err, "rabbitmq")
		}
		defer func() { _ = fwd.Close() }()
		deps.AMQP = fwd
	}

	reg := events.NewRegistry()
	handlers.Register(reg, deps)

	mode := events.DispatchStrict
	if cfg.Events.IsolateHandlers {
		mode = events.DispatchIsolated
	}
	bus := events.NewBus(reg, lg, events.WithMode(mode), events.WithMetrics(m))

	// ── Digest ───────────────────────────────────────────────────────────────
	runner := digest.NewRunner(st, sender, templates, digest.SystemClock{}, digest.Config{
		MinInterval:     cfg.Digest.MinDigestInterval(),
		MaxContractors:  cfg.Digest.MaxContractors,
		MaxBatchSize:    cfg.Digest.MaxBatchSize,
		IsolateFailures: cfg.Digest.IsolateFailures,
	}, lg, m)

	schedOpts := []scheduler.Option{scheduler.WithMetrics(m)}
	if cfg.Digest.LockEnabled {
		schedOpts = append(schedOpts, scheduler.WithLocker(scheduler.NewRedisLock(rdb, lockTTL, lg)))
	}
	sched := scheduler.New(runner, cfg.Digest.DigestInterval(), lg, schedOpts...)
	if cfg.Digest.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		lg.Infow("digest scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewHandler(httpapi.Config{
		Bus: bus,
		InTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.InTx(ctx, pool, fn)
		},
		Digest:   sched,
		Gatherer: promReg,
		Log:      lg,
		Version:  version,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      otelhttp.NewHandler(mux, "notification-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	grpcSrv, health := grpcserver.New(sched, lg)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return errors.Wrapf(err, "listen grpc :%s", cfg.GRPCPort)
	}

	errc := make(chan error, 2)
	go func() {
		lg.Infow("http listening", "port", cfg.Port, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Wrap(err, "http server")
		}
	}()
	go func() {
		lg.Infow("grpc listening", "port", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			errc <- errors.Wrap(err, "grpc server")
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		lg.Infow("shutting down", "signal", sig.String())
	case runErr = <-errc:
		lg.Errorw("server failed; shutting down", "err", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	health.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if err := sched.Stop(shutdownCtx); err != nil {
		lg.Warnw("scheduler stop", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warnw("http shutdown", "err", err)
	}
	grpcSrv.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warnw("tracing shutdown", "err", err)
	}

	lg.Infow("stopped")
	return runErr
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"erasure/internal/account"
	"erasure/internal/audit"
	"erasure/internal/deletion"
	deletionsvc "erasure/internal/deletion/service"
	jwttoken "erasure/internal/jwt_token"
	"erasure/internal/monitor"
	"erasure/internal/monitor/notify"
	"erasure/internal/platform/config"
	"erasure/internal/platform/httpserver"
	"erasure/internal/platform/logger"
	"erasure/internal/platform/metrics"
	platformredis "erasure/internal/platform/redis"
	"erasure/internal/report"
	httptransport "erasure/internal/transport/http"
	"erasure/pkg/platform/tx"
)

const (
	sweepInterval    = time.Hour
	resolvedAlertTTL = 30 * 24 * time.Hour
)

// main wires the stores, services and transport. Business logic lives in the
// internal packages; everything here is construction and lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	m := metrics.New()

	var (
		auditStore   audit.Store
		requestStore deletion.Store
		accountStore account.Store
		runner       tx.Runner

		alertStore monitor.AlertStore = monitor.NewMemoryAlertStore()
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		auditStore = audit.NewPostgresStore(db)
		requestStore = deletion.NewPostgresStore(db)
		accountStore = account.NewPostgresStore(db)
		runner = tx.NewSQLRunner(db)
	} else {
		// Memory stores for local development only.
		log.Warn("DATABASE_URL not set, using in-memory stores")
		auditStore = audit.NewMemoryStore()
		requestStore = deletion.NewMemoryStore()
		accountStore = account.NewMemoryStore()
		runner = tx.NewMutexRunner()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		alertStore = monitor.NewRedisAlertStore(redisClient.Client, resolvedAlertTTL)
	}

	recorderOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.CriticalTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		recorderOpts = append(recorderOpts, audit.WithCriticalPublisher(publisher))
	}
	recorder := audit.NewRecorder(auditStore, recorderOpts...)

	deletionService := deletionsvc.NewService(requestStore, accountStore, recorder, runner,
		deletionsvc.WithLogger(log),
		deletionsvc.WithMetrics(m),
	)

	monitorOpts := []monitor.Option{
		monitor.WithLogger(log),
		monitor.WithMetrics(m),
		monitor.WithChannels(
			notify.NewEmailChannel(log),
			notify.NewSMSChannel(log),
		),
	}
	// HTTP-backed channels get a circuit breaker: a dead endpoint must not
	// slow alert fan-out.
	if cfg.SlackWebhookURL != "" {
		slack := notify.WithBreaker(notify.NewSlackChannel(cfg.SlackWebhookURL), log)
		monitorOpts = append(monitorOpts, monitor.WithChannels(slack))
	}
	if cfg.AlertWebhookURL != "" {
		webhook := notify.WithBreaker(notify.NewWebhookChannel(cfg.AlertWebhookURL), log)
		monitorOpts = append(monitorOpts, monitor.WithChannels(webhook))
	}
	if cfg.AlertRulesPath != "" {
		rules, err := monitor.LoadRulesFile(cfg.AlertRulesPath)
		if err != nil {
			log.Error("failed to load alert rules", "path", cfg.AlertRulesPath, "error", err)
			os.Exit(1)
		}
		monitorOpts = append(monitorOpts, monitor.WithRules(rules))
	}
	monitorService := monitor.NewService(alertStore, auditStore, requestStore, recorder, monitorOpts...)
	recorder.SetObserver(monitorService.ProcessEntry)

	reportService := report.NewService(requestStore, accountStore, recorder,
		report.WithLogger(log),
		report.WithMetrics(m),
	)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httptransport.NewRouter(httptransport.Deps{
		Deletion:  deletionService,
		Monitor:   monitorService,
		Reports:   reportService,
		Validator: jwttoken.NewAdapter(jwtService),
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := deletionsvc.NewSweeper(deletionService, sweepInterval, log)
	go sweeper.Run(ctx)

	go func() {
		log.Info("starting erasure server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// main wires the inheritance engine: stores, orchestrator, batch runner,
// audit pipeline, and the HTTP surface. Business logic lives in the internal
// packages; this file only composes them and manages the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"heirloom/internal/account"
	accounthandler "heirloom/internal/account/handler"
	accountpg "heirloom/internal/account/store/postgres"
	"heirloom/internal/audit"
	audithandler "heirloom/internal/audit/handler"
	"heirloom/internal/audit/outbox"
	auditpg "heirloom/internal/audit/store/postgres"
	"heirloom/internal/engine"
	enginehandler "heirloom/internal/engine/handler"
	enginemetrics "heirloom/internal/engine/metrics"
	"heirloom/internal/heir"
	heirservice "heirloom/internal/heir/service"
	heirpg "heirloom/internal/heir/store/postgres"
	"heirloom/internal/jwtauth"
	"heirloom/internal/notify"
	"heirloom/internal/plan"
	planpg "heirloom/internal/plan/store/postgres"
	"heirloom/internal/platform/config"
	"heirloom/internal/platform/httpserver"
	kafkaproducer "heirloom/internal/platform/kafka/producer"
	"heirloom/internal/platform/logger"
	platformredis "heirloom/internal/platform/redis"
	httptransport "heirloom/internal/transport/http"
	"heirloom/internal/trigger"
	"heirloom/internal/vault"
	vaultservice "heirloom/internal/vault/service"
	vaultpg "heirloom/internal/vault/store/postgres"
)

type stores struct {
	accounts account.Store
	plans    plan.Store
	heirs    heir.Store
	vaults   vault.Store
	audit    audit.Store
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
	}
	st := buildStores(db)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit pipeline: best-effort publisher drained into the store by a
	// worker; the postgres store doubles as the outbox writer.
	publisher := audit.NewPublisher(log)
	auditWorker := audit.NewWorker(st.audit, publisher.Inbox(), log)

	var notifier notify.Notifier
	if email := notify.NewEmailNotifier(cfg.SMTP); email != nil {
		notifier = email
	} else {
		notifier = notify.NewLogNotifier(log)
		log.Info("SMTP not configured, notifications go to the log")
	}
	sink := notify.NewSink(publisher, notifier, log)

	evaluator := trigger.NewEvaluator(trigger.WithDefaultInactivityDays(cfg.Run.DefaultInactivityDays))
	granter := heirservice.NewGranter(st.heirs, st.plans, sink, heirservice.WithLogger(log))
	dispatcher := vaultservice.NewDispatcher(st.vaults, st.heirs, sink, vaultservice.WithLogger(log))
	orchestrator := engine.NewOrchestrator(st.accounts, st.plans, evaluator, granter, dispatcher, sink, engine.WithLogger(log))

	engineMetrics := enginemetrics.New()
	runnerOpts := []engine.RunnerOption{
		engine.WithMetrics(engineMetrics),
		engine.WithRunnerLogger(log),
	}
	if redisClient != nil {
		runnerOpts = append(runnerOpts, engine.WithLocker(redisClient))
	}
	runner := engine.NewRunner(st.accounts, orchestrator, sink, cfg.Run, runnerOpts...)

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, "heirloom", "heirloom-operators")

	router := httptransport.NewRouter(httptransport.Dependencies{
		Engine:  enginehandler.New(orchestrator, runner, log),
		Account: accounthandler.New(st.accounts, sink, log),
		Audit:   audithandler.New(st.audit, log),
		Auth:    jwtService,
		Health:  healthCheck(db, redisClient),
		Logger:  log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting heirloom engine", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("batch runner: %w", err)
		}
		return nil
	})

	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkaproducer.New(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		relay := outbox.New(db, producer, cfg.Kafka.AuditTopic, log)
		g.Go(func() error {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("outbox relay: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("heirloom engine stopped")
	return nil
}

// buildStores selects postgres-backed stores when a database is configured
// and in-memory stores otherwise (local development, tests).
func buildStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			accounts: account.NewInMemoryStore(),
			plans:    plan.NewInMemoryStore(),
			heirs:    heir.NewInMemoryStore(),
			vaults:   vault.NewInMemoryStore(),
			audit:    audit.NewInMemoryStore(),
		}
	}
	return stores{
		accounts: accountpg.New(db),
		plans:    planpg.New(db),
		heirs:    heirpg.New(db),
		vaults:   vaultpg.New(db),
		audit:    auditpg.New(db),
	}
}

func healthCheck(db *sql.DB, redisClient *platformredis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"iris/internal/anchor"
	"iris/internal/audit"
	"iris/internal/document"
	"iris/internal/dossier"
	"iris/internal/ledger"
	"iris/internal/platform/config"
	"iris/internal/platform/httpserver"
	"iris/internal/platform/logger"
	"iris/internal/platform/metrics"
	"iris/internal/platform/middleware"
	platformredis "iris/internal/platform/redis"
	"iris/internal/retention"
	"iris/internal/storage"
	"iris/internal/storage/blob"
	"iris/internal/storage/memory"
	"iris/internal/storage/postgres"
	httptransport "iris/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store      storage.Store
		auditStore audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if err := postgres.ApplySchema(ctx, db); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		store = postgres.New(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres entity store")
	} else {
		store = memory.New()
		auditStore = audit.NewInMemoryStore()
		log.Warn("no database configured, using in-memory store")
	}

	blobs, err := blob.NewFilesystem(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("open blob root: %w", err)
	}

	var states anchor.StateStore = anchor.NewInMemoryStateStore()
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		states = anchor.NewRedisStateStore(rdb.Client)
		log.Info("using redis anchor state store")
	}

	var ldg ledger.Ledger
	if cfg.Ledger.URL != "" {
		opts := []ledger.ClientOption{}
		if cfg.Ledger.APIKey != "" {
			opts = append(opts, ledger.WithAPIKey(cfg.Ledger.APIKey))
		}
		ldg = ledger.NewClient(cfg.Ledger.URL, opts...)
	} else {
		ldg = ledger.NewInMemory()
		log.Warn("no ledger gateway configured, using in-process fake")
	}

	group, ctx := errgroup.WithContext(ctx)

	writerOpts := []audit.Option{}
	if len(cfg.Kafka.Brokers) > 0 {
		mirror, err := audit.NewMirror(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return fmt.Errorf("connect audit mirror: %w", err)
		}
		defer mirror.Close(context.Background())

		inbox := make(chan audit.Record, 256)
		writerOpts = append(writerOpts, audit.WithMirror(inbox))
		group.Go(func() error {
			err := audit.NewWorker(mirror, inbox).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		log.Info("audit mirror enabled", "topic", cfg.Kafka.Topic)
	}
	auditor := audit.NewWriter(auditStore, log, writerOpts...)

	httpMetrics := metrics.New()
	anchorMetrics := anchor.NewMetrics()

	retentionSvc := retention.NewService(store, auditStore, auditor, log)
	anchorSvc := anchor.NewService(store, ldg, states, blobs, auditor, log,
		anchor.WithConfirmationDepth(cfg.Ledger.ConfirmDepth),
		anchor.WithConfirmationWait(cfg.Ledger.ConfirmWait),
		anchor.WithExplorerBase(cfg.Ledger.ExplorerBase),
		anchor.WithMetrics(anchorMetrics),
	)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Documents:     document.NewService(store, blobs, auditor, log),
		Dossiers:      dossier.NewService(store, blobs, auditor, log),
		Anchors:       anchorSvc,
		Verifier:      anchorSvc,
		Retention:     retentionSvc,
		Validator:     middleware.NewJWTService(cfg.JWTSigningKey),
		APITokens:     retentionSvc,
		Metrics:       httpMetrics,
		AnchorMetrics: anchorMetrics,
		Logger:        log,
	})

	srv := httpserver.New(cfg.Addr, router)
	group.Go(func() error {
		log.Info("starting iris", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("iris stopped")
	return nil
}

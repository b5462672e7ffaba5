// Command worker runs the sync job loop: claim a queued mailing list sync
// job, stream its repositories through the parser/importer/threading/
// indexer pipeline via core/sync.Orchestrator, and report success or
// failure back to the job queue. One process, pool-driven concurrency
// inside, same signal-driven shutdown shape as the teacher's combined
// api/worker main.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tansanrao/nexus/adapter/embedder"
	"github.com/tansanrao/nexus/adapter/postgres"
	"github.com/tansanrao/nexus/config"
	"github.com/tansanrao/nexus/core/checkpoint"
	"github.com/tansanrao/nexus/core/clock"
	"github.com/tansanrao/nexus/core/importer"
	"github.com/tansanrao/nexus/core/indexer"
	"github.com/tansanrao/nexus/core/jobqueue"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/core/sync"
	"github.com/tansanrao/nexus/core/threading"
	"github.com/tansanrao/nexus/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "nexus-worker",
	})
	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerologLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database: %v", err)
	}
	defer store.Close()

	jobDB, err := jobQueueDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open job queue connection: %v", err)
	}
	defer jobDB.Close()

	emb := embedder.New(embedder.Config{
		BaseURL:               cfg.EmbedderBaseURL,
		Dimension:             cfg.EmbedderDimension,
		BatchSize:             cfg.EmbedderBatchSize,
		Timeout:               cfg.EmbedderTimeout,
		DocPrefix:             cfg.EmbedderDocPrefix,
		QueryPrefix:           cfg.EmbedderQueryPrefix,
		MaxRetries:            cfg.EmbedderMaxRetries,
		RetryBackoff:          500 * time.Millisecond,
		MaxConcurrentRequests: cfg.EmbedderMaxConcurrent,
		RequestsPerSecond:     cfg.EmbedderRequestsPerSecond,
		BurstSize:             cfg.EmbedderBurstSize,
	})
	defer emb.Close()

	cache := threading.New()
	imp := importer.New(store, cache, cfg.SearchRebuildChunks)
	idx := indexer.New(store, emb, cfg.SearchSemanticEnabled, cfg.EmbedderBatchSize)
	cp := checkpoint.New(store, clock.Real{})

	orch := sync.New(store, newArchiveReader(), cp, imp, cache, idx, cfg.SyncChunkSize, zlog)

	jobStore := postgres.NewJobQueueStore(jobDB)
	queue := jobqueue.New(jobStore, clock.Real{})
	queue.LeaseDuration = cfg.WorkerClaimTimeout

	workerCfg := jobqueue.DefaultWorkerConfig()
	workerCfg.PollInterval = cfg.WorkerPollInterval
	workerCfg.JanitorPeriod = cfg.WorkerHeartbeat

	w := jobqueue.NewWorker(queue, orch, cfg.WorkerID, workerCfg, zlog)

	logger.Info("starting worker %s", cfg.WorkerID)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("worker exited with error: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight jobs (timeout %v)", shutdownTimeout)
		select {
		case err := <-done:
			if err != nil {
				logger.Error("worker exited with error: %v", err)
			}
		case <-time.After(shutdownTimeout):
			logger.Warn("worker shutdown timed out, forcing exit")
		}
	}

	logger.Info("worker stopped")
}

// jobQueueDB opens a plain *sql.DB for adapter/postgres.NewJobQueueStore,
// which drives its row-level locking through database/sql directly rather
// than through sqlx like the rest of adapter/postgres.
func jobQueueDB(dsn string) (*sql.DB, error) {
	dbx, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := dbx.Ping(); err != nil {
		dbx.Close()
		return nil, err
	}
	return dbx.DB, nil
}

func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// newArchiveReader constructs the repository commit-log reader. A real
// git-log backed implementation is an external collaborator outside this
// module (core/port.ArchiveReader's doc comment), so this returns a stub
// that fails loudly instead of silently importing nothing.
func newArchiveReader() port.ArchiveReader {
	return unconfiguredArchiveReader{}
}

type unconfiguredArchiveReader struct{}

func (unconfiguredArchiveReader) CommitsSince(ctx context.Context, repoURL string, fromCommit string) (<-chan port.ArchiveCommit, <-chan error) {
	out := make(chan port.ArchiveCommit)
	errs := make(chan error, 1)
	close(out)
	errs <- archiveNotConfiguredError{repoURL: repoURL}
	close(errs)
	return out, errs
}

type archiveNotConfiguredError struct {
	repoURL string
}

func (e archiveNotConfiguredError) Error() string {
	return "no archive reader configured for " + e.repoURL + ": wire a real git-log adapter before running sync jobs"
}

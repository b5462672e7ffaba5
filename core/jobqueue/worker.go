package jobqueue

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"github.com/tansanrao/nexus/core/domain"
)

// SyncRunner drives one mailing list's parse/import/thread/index pass for a
// claimed job. core/sync.Orchestrator implements this.
type SyncRunner interface {
	RunSync(ctx context.Context, job domain.SyncJob) error
}

// WorkerConfig controls polling and concurrency.
type WorkerConfig struct {
	Concurrency   int           // concurrent jobs this process runs at once
	PollInterval  time.Duration // sleep between empty Claim() calls
	ErrorBackoff  time.Duration // sleep after an unexpected Claim() error
	JanitorPeriod time.Duration // how often ReclaimExpired runs
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:   4,
		PollInterval:  5 * time.Second,
		ErrorBackoff:  10 * time.Second,
		JanitorPeriod: 30 * time.Second,
	}
}

// jobWorker adapts SyncRunner to go-pkgz/pool's Worker interface so claimed
// jobs are processed over a fixed-size goroutine pool rather than one
// goroutine per job.
type jobWorker struct {
	w *Worker
}

func (jw *jobWorker) Do(ctx context.Context, job *domain.SyncJob) error {
	return jw.w.process(ctx, *job)
}

// Worker runs the claim/heartbeat/complete/fail loop described by the
// Queue's state machine, dispatching claimed jobs onto a go-pkgz/pool
// worker group so up to Concurrency jobs run at once in one process.
type Worker struct {
	queue  *Queue
	runner SyncRunner
	owner  string
	cfg    WorkerConfig
	log    zerolog.Logger

	pool *pool.WorkerGroup[*domain.SyncJob]
}

func NewWorker(queue *Queue, runner SyncRunner, owner string, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	w := &Worker{
		queue:  queue,
		runner: runner,
		owner:  owner,
		cfg:    cfg,
		log:    log.With().Str("component", "jobqueue_worker").Str("owner", owner).Logger(),
	}
	w.pool = pool.New[*domain.SyncJob](cfg.Concurrency, &jobWorker{w: w}).WithContinueOnError()
	return w
}

// Run polls for claimable jobs and the janitor on a timer until ctx is
// canceled. It blocks until every in-flight job finishes draining.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.pool.Go(ctx); err != nil {
		return err
	}
	defer w.pool.Close(context.Background())

	janitor := time.NewTicker(w.cfg.JanitorPeriod)
	defer janitor.Stop()

	w.log.Info().Msg("sync worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("sync worker stopping")
			return nil
		case <-janitor.C:
			if n, err := w.queue.ReclaimExpired(ctx); err != nil {
				w.log.Warn().Err(err).Msg("janitor reclaim failed")
			} else if n > 0 {
				w.log.Info().Int("reclaimed", n).Msg("janitor reclaimed expired jobs")
			}
		default:
			job, err := w.queue.Claim(ctx, w.owner)
			if err != nil {
				w.log.Error().Err(err).Msg("claim failed")
				sleep(ctx, jitter(w.cfg.ErrorBackoff))
				continue
			}
			if job == nil {
				sleep(ctx, jitter(w.cfg.PollInterval))
				continue
			}
			w.log.Info().Str("job_id", job.ID).Int64("mailing_list_id", job.MailingListID).Msg("claimed job")
			w.pool.Submit(job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job domain.SyncJob) error {
	if err := w.queue.Start(ctx, job.ID); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job running")
		return err
	}

	stop := w.startHeartbeat(ctx, job.ID)
	defer stop()

	err := w.runner.RunSync(ctx, job)
	if err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("sync job failed")
		if failErr := w.queue.Fail(ctx, job.ID, err); failErr != nil {
			w.log.Error().Err(failErr).Str("job_id", job.ID).Msg("failed to record job failure")
		}
		return err
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job complete")
		return err
	}
	w.log.Info().Str("job_id", job.ID).Msg("job complete")
	return nil
}

// startHeartbeat extends the job's lease periodically for the duration of
// RunSync; the returned func stops it.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	interval := w.queue.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := w.queue.Heartbeat(hbCtx, jobID); err != nil {
					w.log.Warn().Err(err).Str("job_id", jobID).Msg("heartbeat failed")
				}
			}
		}
	}()
	return cancel
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

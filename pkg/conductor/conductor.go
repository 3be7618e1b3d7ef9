// Package conductor runs the ingestion pipeline as a long-lived daemon:
// a weekly full-sync sweep over every tracked city and a continuous
// drain of the summarization queue, following the same
// Start/Stop-with-background-goroutine shape the teacher's cleanup
// service uses.
package conductor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/engagic/ingest/pkg/fetcher"
	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/notify"
	"github.com/engagic/ingest/pkg/redact"
	"github.com/engagic/ingest/pkg/repository"
)

// Processor hands a claimed queue job off to the external summarization
// system. The conductor never summarizes anything itself; per §4.6 the
// processing loop is a no-op when no Processor is configured.
type Processor interface {
	Process(ctx context.Context, job models.QueueJob) error
}

// ErrAlreadyProcessing is returned by SyncAndProcessCity when another
// forced run is already draining a city's queue.
var ErrAlreadyProcessing = errors.New("conductor: a forced run is already in progress")

// State is a snapshot of the conductor's current status, returned by
// the admin CLI's --status operation.
type State struct {
	IsRunning         bool
	LastFullSync      *time.Time
	LastFullSyncError string
	ActiveCities      int
	TotalMeetings     int
	SummarizedMeetings int
	PendingMeetings   int
	FailedCities      []string
}

// Conductor owns the two background loops and exposes the admin
// operations the CLI drives.
type Conductor struct {
	repos     *repository.Repositories
	fetcher   *fetcher.Fetcher
	notifier  *notify.Service
	processor Processor
	cron      *cron.Cron
	logger    *slog.Logger

	processingTick time.Duration

	mu           sync.Mutex
	running      bool
	lastFullSync *time.Time
	lastErr      error
	cancel       context.CancelFunc
	done         chan struct{}

	forcedRun atomic.Bool
}

// New builds a Conductor. notifier and processor may both be nil: with
// no processor configured, the processing loop claims nothing and is a
// true no-op, per §4.6.
func New(repos *repository.Repositories, f *fetcher.Fetcher, notifier *notify.Service, processor Processor, processingTick time.Duration) *Conductor {
	return &Conductor{
		repos:          repos,
		fetcher:        f,
		notifier:       notifier,
		processor:      processor,
		cron:           cron.New(),
		logger:         slog.Default().With("component", "conductor"),
		processingTick: processingTick,
	}
}

// Start launches the full-sync schedule and the queue-drain loop in the
// background. fullSyncCron is a standard 5-field cron expression; an
// empty string defaults to a weekly sweep at 03:00 Sunday.
func (c *Conductor) Start(ctx context.Context, fullSyncCron string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	if fullSyncCron == "" {
		fullSyncCron = "0 3 * * 0"
	}
	if _, err := c.cron.AddFunc(fullSyncCron, func() { c.runFullSync(ctx) }); err != nil {
		return err
	}
	c.cron.Start()

	go c.drainLoop(ctx)

	c.logger.Info("conductor started", "full_sync_cron", fullSyncCron, "processing_tick", c.processingTick)
	return nil
}

// Stop signals both loops to exit and waits for the drain loop to
// finish its current tick.
func (c *Conductor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cron := c.cron.Stop()
	<-cron.Done()
	cancel()
	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Info("conductor stopped")
}

// RunFullSyncNow runs one full-sync sweep synchronously, the operation
// behind the admin CLI's --full-sync flag.
func (c *Conductor) RunFullSyncNow(ctx context.Context) ([]fetcher.SyncResult, error) {
	return c.runFullSync(ctx)
}

// SyncCity runs a one-off sync for a single city, the operation behind
// --sync-city.
func (c *Conductor) SyncCity(ctx context.Context, banana string) (fetcher.SyncResult, error) {
	return c.fetcher.SyncCity(ctx, banana)
}

// Status returns a snapshot of the conductor's current state.
func (c *Conductor) Status(ctx context.Context) (State, error) {
	c.mu.Lock()
	s := State{
		IsRunning:    c.running,
		LastFullSync: c.lastFullSync,
		FailedCities: failedCitiesSlice(c.fetcher),
	}
	if c.lastErr != nil {
		s.LastFullSyncError = c.lastErr.Error()
	}
	c.mu.Unlock()

	cities, err := c.repos.Cities.ListActive(ctx)
	if err != nil {
		return s, err
	}
	s.ActiveCities = len(cities)

	pending, err := c.repos.Queue.CountPending(ctx)
	if err != nil {
		return s, err
	}
	s.PendingMeetings = pending

	total, summarized, err := c.repos.Meetings.CountTotals(ctx)
	if err != nil {
		return s, err
	}
	s.TotalMeetings = total
	s.SummarizedMeetings = summarized

	return s, nil
}

func (c *Conductor) runFullSync(ctx context.Context) ([]fetcher.SyncResult, error) {
	start := time.Now()
	results, err := c.fetcher.RunFullSync(ctx)

	c.mu.Lock()
	now := time.Now().UTC()
	c.lastFullSync = &now
	c.lastErr = err
	c.mu.Unlock()

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			if c.notifier != nil {
				c.notifier.NotifyCityFailed(ctx, r.Banana, r.Error)
			}
		}
	}
	if c.notifier != nil {
		c.notifier.NotifyFullSyncCompleted(ctx, len(results)-failed, failed, time.Since(start))
	}
	if err != nil {
		c.logger.Error("full sync sweep failed", "error", redact.Error(err))
	} else {
		c.logger.Info("full sync sweep completed", "cities", len(results), "failed", failed, "duration", time.Since(start))
	}
	return results, err
}

func (c *Conductor) drainLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.processingTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainOnce(ctx)
		}
	}
}

// drainOnce claims at most one pending job per tick and hands it to the
// configured Processor, recording its terminal state. With no processor
// configured this is a no-op: claiming a job nothing will ever complete
// would strand it in 'processing' forever, so the loop must not touch
// the queue at all in that case.
func (c *Conductor) drainOnce(ctx context.Context) {
	if c.processor == nil {
		return
	}

	job, err := repository.ClaimNext(ctx, c.repos.Pool())
	if err != nil {
		if err != repository.ErrNoJobAvailable {
			c.logger.Error("claim next queue job", "error", err)
		}
		return
	}
	c.logger.Info("claimed queue job", "job_id", job.ID, "source_url", job.SourceURL, "banana", job.Banana)
	c.processJob(ctx, *job)
}

func (c *Conductor) processJob(ctx context.Context, job models.QueueJob) {
	procErr := c.processor.Process(ctx, job)
	if procErr != nil {
		c.logger.Warn("queue job processing failed", "job_id", job.ID, "error", redact.Error(procErr))
	}
	if err := c.repos.Queue.Complete(ctx, job.ID, procErr); err != nil {
		c.logger.Error("complete queue job", "job_id", job.ID, "error", err)
	}
}

// SyncAndProcessCity runs one sync for banana, then drains every job it
// just queued (and anything else already pending for that city) through
// the configured Processor. It refuses to run concurrently with another
// forced run, and always clears its forced-run flag on exit, even when
// the sync itself fails.
func (c *Conductor) SyncAndProcessCity(ctx context.Context, banana string) (fetcher.SyncResult, int, error) {
	if !c.forcedRun.CompareAndSwap(false, true) {
		return fetcher.SyncResult{}, 0, ErrAlreadyProcessing
	}
	defer c.forcedRun.Store(false)

	result, err := c.fetcher.SyncCity(ctx, banana)
	if err != nil {
		return result, 0, err
	}

	jobs, err := c.repos.Queue.ForCity(ctx, banana)
	if err != nil {
		return result, 0, err
	}

	if c.processor == nil {
		return result, 0, nil
	}

	drained := 0
	for _, job := range jobs {
		if job.Status != models.QueueJobPending {
			continue
		}
		claimed, err := repository.ClaimByID(ctx, c.repos.Pool(), job.ID)
		if err != nil {
			if err != repository.ErrNoJobAvailable {
				c.logger.Error("claim city queue job", "job_id", job.ID, "error", err)
			}
			continue
		}
		c.processJob(ctx, *claimed)
		drained++
	}
	return result, drained, nil
}

func failedCitiesSlice(f *fetcher.Fetcher) []string {
	failed := f.FailedCities()
	out := make([]string, 0, len(failed))
	for banana := range failed {
		out = append(out, banana)
	}
	return out
}

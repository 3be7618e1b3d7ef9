package conductor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/fetcher"
	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/ratelimit"
	"github.com/engagic/ingest/pkg/repository"
	"github.com/engagic/ingest/pkg/transport"
	"github.com/engagic/ingest/pkg/vendor"
	testdb "github.com/engagic/ingest/test/database"
)

type fakeProcessor struct {
	mu   sync.Mutex
	err  error
	jobs []string
}

func (f *fakeProcessor) Process(ctx context.Context, job models.QueueJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job.ID)
	return f.err
}

func newTestConductor(t *testing.T, processor Processor) (*Conductor, *repository.Repositories) {
	t.Helper()
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	registry := vendor.NewRegistry(transport.New(), ratelimit.NewVendorLimiter())
	f := fetcher.New(repos, registry, ratelimit.NewVendorLimiter(), 30, 30)
	c := &Conductor{
		repos:     repos,
		fetcher:   f,
		processor: processor,
		logger:    slog.Default().With("component", "conductor_test"),
	}
	return c, repos
}

func seedQueueableMeeting(t *testing.T, repos *repository.Repositories, banana string) models.Meeting {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.Cities.Upsert(ctx, models.City{Banana: banana, Name: banana, Vendor: "fakevendor", Active: true}))
	m := models.Meeting{
		ID:               "meeting-" + banana,
		Banana:           banana,
		Title:            "Regular Meeting",
		AgendaURL:        "https://example.com/" + banana + "/agenda",
		Status:           models.MeetingStatusScheduled,
		ProcessingStatus: models.ProcessingPending,
	}
	require.NoError(t, repos.Meetings.Store(ctx, m))
	return m
}

func TestConductor_DrainOnce_NilProcessorNeverClaims(t *testing.T) {
	c, repos := newTestConductor(t, nil)
	ctx := context.Background()
	m := seedQueueableMeeting(t, repos, "drainnoop")
	_, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)

	c.drainOnce(ctx)

	pending, err := repos.Queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "a nil processor must never transition a job out of pending")
}

func TestConductor_DrainOnce_ProcessorSuccessCompletesJob(t *testing.T) {
	proc := &fakeProcessor{}
	c, repos := newTestConductor(t, proc)
	ctx := context.Background()
	m := seedQueueableMeeting(t, repos, "drainsuccess")
	jobID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)

	c.drainOnce(ctx)

	assert.Equal(t, []string{jobID}, proc.jobs)
	pending, err := repos.Queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestConductor_DrainOnce_ProcessorFailureReturnsJobToPending(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("downstream summarizer timed out")}
	c, repos := newTestConductor(t, proc)
	ctx := context.Background()
	m := seedQueueableMeeting(t, repos, "drainfailure")
	jobID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)

	c.drainOnce(ctx)

	jobs, err := repos.Queue.ForCity(ctx, m.Banana)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)
	assert.Equal(t, models.QueueJobPending, jobs[0].Status, "a retryable failure goes back to pending, not stuck in processing")
	assert.Equal(t, 1, jobs[0].Attempts)
}

func TestConductor_SyncAndProcessCity_RefusesConcurrentForcedRun(t *testing.T) {
	c, _ := newTestConductor(t, nil)
	require.True(t, c.forcedRun.CompareAndSwap(false, true))
	defer c.forcedRun.Store(false)

	_, _, err := c.SyncAndProcessCity(context.Background(), "anycity")
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
}

func TestConductor_SyncAndProcessCity_ClearsForcedRunFlagOnExit(t *testing.T) {
	c, _ := newTestConductor(t, nil)
	ctx := context.Background()

	// banana has no registered city, so SyncCity fails fast; the flag
	// must still be cleared afterward.
	_, _, err := c.SyncAndProcessCity(ctx, "nosuchcity")
	require.Error(t, err)
	assert.False(t, c.forcedRun.Load())
}

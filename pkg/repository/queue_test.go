package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/repository"
	testdb "github.com/engagic/ingest/test/database"
)

func seedMeeting(t *testing.T, repos *repository.Repositories, banana string) models.Meeting {
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

func TestQueueRepository_EnqueueIsIdempotentOnSourceURL(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	m := seedMeeting(t, repos, "queuecityA")

	firstID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)
	require.NotEmpty(t, firstID)

	secondID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 5)
	require.NoError(t, err)
	assert.Empty(t, secondID, "ON CONFLICT DO NOTHING returns no new id for a duplicate source_url")

	pending, err := repos.Queue.HasPendingForSourceURL(ctx, m.AgendaURL)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestQueueRepository_ClaimNextClaimsHighestPriorityPendingJob(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	m1 := seedMeeting(t, repos, "queuecityB1")
	m2 := seedMeeting(t, repos, "queuecityB2")

	_, err := repos.Queue.Enqueue(ctx, m1.AgendaURL, m1.ID, m1.Banana, 0)
	require.NoError(t, err)
	_, err = repos.Queue.Enqueue(ctx, m2.AgendaURL, m2.ID, m2.Banana, 10)
	require.NoError(t, err)

	job, err := repository.ClaimNext(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, m2.Banana, job.Banana, "the higher-priority job claims first")
	assert.Equal(t, models.QueueJobProcessing, job.Status)

	job2, err := repository.ClaimNext(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, m1.Banana, job2.Banana)

	_, err = repository.ClaimNext(ctx, pool)
	assert.ErrorIs(t, err, repository.ErrNoJobAvailable)
}

func TestQueueRepository_ClaimByIDOnlyClaimsTheNamedJob(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	m1 := seedMeeting(t, repos, "queuecityC1")
	m2 := seedMeeting(t, repos, "queuecityC2")

	id1, err := repos.Queue.Enqueue(ctx, m1.AgendaURL, m1.ID, m1.Banana, 0)
	require.NoError(t, err)
	id2, err := repos.Queue.Enqueue(ctx, m2.AgendaURL, m2.ID, m2.Banana, 100)
	require.NoError(t, err)

	claimed, err := repository.ClaimByID(ctx, pool, id1)
	require.NoError(t, err)
	assert.Equal(t, id1, claimed.ID, "ClaimByID must not steal the higher-priority global job")

	_, err = repository.ClaimByID(ctx, pool, id1)
	assert.ErrorIs(t, err, repository.ErrNoJobAvailable, "already-claimed job can't be claimed twice")

	claimed2, err := repository.ClaimByID(ctx, pool, id2)
	require.NoError(t, err)
	assert.Equal(t, id2, claimed2.ID)
}

func TestQueueRepository_CompleteSuccessMarksCompleted(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	m := seedMeeting(t, repos, "queuecityD")

	jobID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)
	_, err = repository.ClaimNext(ctx, pool)
	require.NoError(t, err)

	require.NoError(t, repos.Queue.Complete(ctx, jobID, nil))

	pending, err := repos.Queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestQueueRepository_CompleteFailureRetriesThenDeadLetters(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	m := seedMeeting(t, repos, "queuecityE")

	jobID, err := repos.Queue.Enqueue(ctx, m.AgendaURL, m.ID, m.Banana, 0)
	require.NoError(t, err)

	procErr := errors.New("summarizer unavailable")
	for i := 0; i < 3; i++ {
		job, err := repository.ClaimNext(ctx, pool)
		require.NoError(t, err)
		require.NoError(t, repos.Queue.Complete(ctx, job.ID, procErr))
	}

	var status string
	var attempts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT status, attempts FROM queue_jobs WHERE id = $1`, jobID).Scan(&status, &attempts))
	assert.Equal(t, string(models.QueueJobDeadLetter), status)
	assert.Equal(t, 3, attempts)

	jobs, err := repos.Queue.ForCity(ctx, m.Banana)
	require.NoError(t, err)
	assert.Empty(t, jobs, "a dead-lettered job is no longer pending or processing")

	_, err = repository.ClaimNext(ctx, pool)
	assert.ErrorIs(t, err, repository.ErrNoJobAvailable, "a dead-lettered job is never claimable again")
}

func TestQueueRepository_ForCityFiltersByBanana(t *testing.T) {
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)
	ctx := context.Background()
	mA := seedMeeting(t, repos, "queuecityF1")
	mB := seedMeeting(t, repos, "queuecityF2")

	_, err := repos.Queue.Enqueue(ctx, mA.AgendaURL, mA.ID, mA.Banana, 0)
	require.NoError(t, err)
	_, err = repos.Queue.Enqueue(ctx, mB.AgendaURL, mB.ID, mB.Banana, 0)
	require.NoError(t, err)

	jobs, err := repos.Queue.ForCity(ctx, mA.Banana)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, mA.Banana, jobs[0].Banana)
}

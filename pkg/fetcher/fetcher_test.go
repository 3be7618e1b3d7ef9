package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/ratelimit"
	"github.com/engagic/ingest/pkg/repository"
	"github.com/engagic/ingest/pkg/transport"
	"github.com/engagic/ingest/pkg/vendor"
	testdb "github.com/engagic/ingest/test/database"
)

const fakeVendorTag = "fakevendor"

type fakeAdapter struct {
	meetings []vendor.MeetingDTO
	err      error
}

func (a *fakeAdapter) FetchMeetings(ctx context.Context, daysBack, daysForward int) ([]vendor.MeetingDTO, error) {
	return a.meetings, a.err
}

func newTestFetcher(t *testing.T, adapter vendor.Adapter) (*Fetcher, *repository.Repositories) {
	t.Helper()
	pool := testdb.NewTestPool(t)
	repos := repository.New(pool)

	registry := vendor.NewRegistry(transport.New(), ratelimit.NewVendorLimiter())
	registry.Register(fakeVendorTag, func(slug string, pool *transport.Pool, limiter *ratelimit.VendorLimiter) (vendor.Adapter, error) {
		return adapter, nil
	})

	f := New(repos, registry, ratelimit.NewVendorLimiter(), 30, 30)
	return f, repos
}

func TestFetcher_SyncCity_StoresMeetingsAndMarksSynced(t *testing.T) {
	start := time.Now().UTC()
	adapter := &fakeAdapter{meetings: []vendor.MeetingDTO{
		{
			VendorID:  "evt-1",
			Title:     "City Council Regular Meeting",
			Start:     &start,
			AgendaURL: "https://example.com/evt-1/agenda",
			Status:    models.MeetingStatusScheduled,
		},
	}}
	f, repos := newTestFetcher(t, adapter)
	ctx := context.Background()

	require.NoError(t, repos.Cities.Upsert(ctx, models.City{
		Banana: "fetchcityA", Name: "Fetch City", Vendor: fakeVendorTag, Active: true,
	}))

	result, err := f.SyncCity(ctx, "fetchcityA")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 1, result.MeetingsFound)
	assert.Equal(t, 1, result.MeetingsProcessed)

	city, err := repos.Cities.Get(ctx, "fetchcityA")
	require.NoError(t, err)
	assert.NotNil(t, city.LastSyncedAt)
}

func TestFetcher_SyncCity_UnknownCityReturnsError(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeAdapter{})
	_, err := f.SyncCity(context.Background(), "nosuchcity")
	assert.ErrorIs(t, err, repository.ErrCityNotFound)
}

func TestFetcher_SyncCity_EmptyAdapterResultSkipsMeetingStorage(t *testing.T) {
	f, repos := newTestFetcher(t, &fakeAdapter{})
	ctx := context.Background()
	require.NoError(t, repos.Cities.Upsert(ctx, models.City{
		Banana: "fetchcityB", Name: "Fetch City B", Vendor: fakeVendorTag, Active: true,
	}))

	result, err := f.SyncCity(ctx, "fetchcityB")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Zero(t, result.MeetingsFound)
}

func TestGroupByVendor_GroupsCitiesByVendorTag(t *testing.T) {
	cities := []models.City{
		{Banana: "a", Vendor: "legistar"},
		{Banana: "b", Vendor: "primegov"},
		{Banana: "c", Vendor: "legistar"},
	}
	groups := groupByVendor(cities)
	assert.Len(t, groups, 2)
	assert.Len(t, groups["legistar"], 2)
	assert.Len(t, groups["primegov"], 1)
}

func TestFetcher_ShouldSync_NeverSyncedCityAlwaysDue(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeAdapter{})
	assert.True(t, f.shouldSync(context.Background(), models.City{Banana: "never-synced"}))
}

func TestFetcher_ShouldSync_RecentOverrideIntervalNotYetElapsed(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeAdapter{})
	last := time.Now().Add(-time.Minute)
	override := time.Hour
	due := f.shouldSync(context.Background(), models.City{
		Banana:               "recently-synced",
		LastSyncedAt:         &last,
		SyncIntervalOverride: &override,
	})
	assert.False(t, due)
}

func TestFetcher_Priority_NeverSyncedScoresAboveEverythingElse(t *testing.T) {
	f, repos := newTestFetcher(t, &fakeAdapter{})
	ctx := context.Background()
	require.NoError(t, repos.Cities.Upsert(ctx, models.City{Banana: "fetchcityC", Vendor: fakeVendorTag, Active: true}))

	last := time.Now().Add(-48 * time.Hour)
	synced := models.City{Banana: "fetchcityC", LastSyncedAt: &last}
	neverSynced := models.City{Banana: "fetchcityD"}

	assert.Greater(t, f.priority(ctx, neverSynced), f.priority(ctx, synced))
}

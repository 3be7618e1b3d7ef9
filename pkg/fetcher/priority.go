package fetcher

import (
	"context"
	"time"

	"github.com/engagic/ingest/pkg/models"
)

// neverSyncedScore is the priority assigned to a city that has no
// last_synced_at, far above anything a recent-activity score could
// reach, so first-time cities always sort to the front of their vendor
// group.
const neverSyncedScore = 1000.0

// priority scores c for sort order within its vendor group: recent
// activity dominates, with a small, capped boost for how long it has
// been since the last sync.
func (f *Fetcher) priority(ctx context.Context, c models.City) float64 {
	if c.LastSyncedAt == nil {
		return neverSyncedScore
	}
	recent, _ := f.meetings.CountSince(ctx, c.Banana, time.Now().AddDate(0, 0, -30))
	hoursSince := time.Since(*c.LastSyncedAt).Hours()
	staleness := hoursSince / 24
	if staleness > 10 {
		staleness = 10
	}
	return float64(recent)*10 + staleness
}

// shouldSync applies the frequency-tiered re-sync cadence: a city that
// has never synced always qualifies; otherwise the interval since the
// last sync must exceed the threshold implied by its last-30-days
// meeting frequency.
func (f *Fetcher) shouldSync(ctx context.Context, c models.City) bool {
	if c.LastSyncedAt == nil {
		return true
	}
	if c.SyncIntervalOverride != nil {
		return time.Since(*c.LastSyncedAt) >= *c.SyncIntervalOverride
	}

	recent, _ := f.meetings.CountSince(ctx, c.Banana, time.Now().AddDate(0, 0, -30))
	var interval time.Duration
	switch {
	case recent >= 8:
		interval = 12 * time.Hour
	case recent >= 4:
		interval = 24 * time.Hour
	case recent >= 1:
		interval = 72 * time.Hour
	default:
		interval = 168 * time.Hour
	}
	return time.Since(*c.LastSyncedAt) >= interval
}

// Package fetcher schedules and runs the periodic sweep across every
// tracked city: deciding which cities are due, fetching their meetings
// through the registered vendor adapter, and handing each one to the
// sync orchestrator.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/ratelimit"
	"github.com/engagic/ingest/pkg/redact"
	"github.com/engagic/ingest/pkg/repository"
	"github.com/engagic/ingest/pkg/syncorch"
	"github.com/engagic/ingest/pkg/vendor"
)

// retryDelays are the backoff steps applied between attempts at fetching
// a single city's meetings; jitter of up to 2s is added to each.
var retryDelays = []time.Duration{5 * time.Second, 20 * time.Second}

// groupPause is how long the Fetcher rests between vendor groups,
// spreading load across portals that may share infrastructure.
const groupPause = 30 * time.Second

// SyncResult reports the outcome of fetching and syncing one city.
type SyncResult struct {
	Banana            string
	Vendor            string
	Status            string
	MeetingsFound     int
	MeetingsProcessed int
	MeetingsSkipped   int
	Duration          time.Duration
	Error             error
}

// Fetcher runs the full-sync sweep over every active city.
type Fetcher struct {
	cities     *repository.CityRepository
	meetings   *repository.MeetingRepository
	registry   *vendor.Registry
	limiter    *ratelimit.VendorLimiter
	orch       *syncorch.Orchestrator
	daysBack   int
	daysForward int
	logger     *slog.Logger

	mu           sync.Mutex
	failedCities map[string]error
}

// New builds a Fetcher backed by the given repositories, vendor
// registry and rate limiter.
func New(repos *repository.Repositories, registry *vendor.Registry, limiter *ratelimit.VendorLimiter, daysBack, daysForward int) *Fetcher {
	return &Fetcher{
		cities:      repos.Cities,
		meetings:    repos.Meetings,
		registry:    registry,
		limiter:     limiter,
		orch:        syncorch.New(repos),
		daysBack:    daysBack,
		daysForward: daysForward,
		logger:      slog.Default().With("component", "fetcher"),
	}
}

// RunFullSync sweeps every active city, grouped by vendor, applying the
// should-sync cadence and rate limiting, and returns one SyncResult per
// city actually attempted.
func (f *Fetcher) RunFullSync(ctx context.Context) ([]SyncResult, error) {
	cities, err := f.cities.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetcher: list active cities: %w", err)
	}

	groups := groupByVendor(cities)
	vendors := make([]string, 0, len(groups))
	for v := range groups {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)

	f.mu.Lock()
	f.failedCities = make(map[string]error)
	f.mu.Unlock()

	var results []SyncResult
	for gi, v := range vendors {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		due := f.dueCities(ctx, groups[v])
		for _, c := range due {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			res := f.syncCity(ctx, c)
			results = append(results, res)
			if res.Error != nil {
				f.mu.Lock()
				f.failedCities[c.Banana] = res.Error
				f.mu.Unlock()
			}
		}
		if gi < len(vendors)-1 {
			f.sleep(ctx, groupPause)
		}
	}
	return results, nil
}

// SyncCity fetches and syncs a single city regardless of its should-sync
// cadence, used by the admin CLI's --sync-city operation.
func (f *Fetcher) SyncCity(ctx context.Context, banana string) (SyncResult, error) {
	c, err := f.cities.Get(ctx, banana)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetcher: get city %s: %w", banana, err)
	}
	return f.syncCity(ctx, *c), nil
}

// FailedCities returns the bananas of cities whose most recent full-sync
// attempt failed, alongside the error that caused it.
func (f *Fetcher) FailedCities() map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]error, len(f.failedCities))
	for k, v := range f.failedCities {
		out[k] = v
	}
	return out
}

func (f *Fetcher) dueCities(ctx context.Context, cities []models.City) []models.City {
	due := make([]models.City, 0, len(cities))
	for _, c := range cities {
		if f.shouldSync(ctx, c) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return f.priority(ctx, due[i]) > f.priority(ctx, due[j])
	})
	return due
}

func (f *Fetcher) syncCity(ctx context.Context, c models.City) SyncResult {
	start := time.Now()
	result := SyncResult{Banana: c.Banana, Vendor: c.Vendor}

	if err := f.limiter.Wait(ctx, c.Vendor); err != nil {
		result.Status = "error"
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	adapter, err := f.registry.Build(c.Vendor, c.VendorSlug)
	if err != nil {
		result.Status = "error"
		result.Error = fmt.Errorf("fetcher: build adapter for %s: %w", c.Banana, err)
		result.Duration = time.Since(start)
		return result
	}

	dtos, err := f.fetchWithRetry(ctx, adapter, c)
	if err != nil {
		result.Status = "error"
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	result.MeetingsFound = len(dtos)

	for _, dto := range dtos {
		stats, err := f.orch.SyncMeeting(ctx, c.Banana, dto)
		if err != nil {
			f.logger.Error("sync meeting failed", "banana", c.Banana, "vendor_id", dto.VendorID, "error", err)
			continue
		}
		if stats.MeetingSkipped {
			result.MeetingsSkipped++
			continue
		}
		result.MeetingsProcessed++
	}

	if err := f.cities.MarkSynced(ctx, c.Banana, time.Now().UTC()); err != nil {
		f.logger.Error("mark synced failed", "banana", c.Banana, "error", err)
	}

	result.Status = "ok"
	result.Duration = time.Since(start)
	return result
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, adapter vendor.Adapter, c models.City) ([]vendor.MeetingDTO, error) {
	dtos, err := adapter.FetchMeetings(ctx, f.daysBack, f.daysForward)
	if err == nil {
		return dtos, nil
	}

	var lastErr = err
	for _, delay := range retryDelays {
		jitter := time.Duration(rand.Int63n(int64(2 * time.Second)))
		f.sleep(ctx, delay+jitter)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		dtos, err = adapter.FetchMeetings(ctx, f.daysBack, f.daysForward)
		if err == nil {
			return dtos, nil
		}
		lastErr = err
		f.logger.Warn("retrying city fetch", "banana", c.Banana, "vendor", c.Vendor, "error", redact.Error(err))
	}
	return nil, fmt.Errorf("fetcher: fetch meetings for %s after retries: %w", c.Banana, lastErr)
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func groupByVendor(cities []models.City) map[string][]models.City {
	groups := make(map[string][]models.City)
	for _, c := range cities {
		groups[c.Vendor] = append(groups[c.Vendor], c)
	}
	return groups
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/engagic/ingest/pkg/models"
)

// ErrCityNotFound is returned when a lookup by banana finds nothing.
var ErrCityNotFound = errors.New("repository: city not found")

// CityRepository stores and retrieves the static city roster.
type CityRepository struct {
	db DB
}

// Upsert inserts or updates a city's roster row, used when the static
// fixture is reloaded at startup. It never deletes a city: the roster
// is admin-managed and the pipeline only ever adds or refreshes rows.
func (r *CityRepository) Upsert(ctx context.Context, c models.City) error {
	vendorConfig, err := json.Marshal(c.VendorConfig)
	if err != nil {
		return fmt.Errorf("repository: marshal vendor config: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO cities (banana, name, state, county, vendor, vendor_slug, vendor_config, population, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (banana) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			county = EXCLUDED.county,
			vendor = EXCLUDED.vendor,
			vendor_slug = EXCLUDED.vendor_slug,
			vendor_config = EXCLUDED.vendor_config,
			population = EXCLUDED.population,
			active = EXCLUDED.active,
			updated_at = CURRENT_TIMESTAMP
	`, c.Banana, c.Name, c.State, c.County, c.Vendor, c.VendorSlug, vendorConfig, c.Population, c.Active)
	if err != nil {
		return fmt.Errorf("repository: upsert city %s: %w", c.Banana, err)
	}

	for _, z := range c.ZipCodes {
		_, err := r.db.Exec(ctx, `
			INSERT INTO zipcodes (banana, code, is_primary) VALUES ($1, $2, $3)
			ON CONFLICT (banana, code) DO UPDATE SET is_primary = EXCLUDED.is_primary
		`, c.Banana, z.Code, z.Primary)
		if err != nil {
			return fmt.Errorf("repository: upsert zipcode %s/%s: %w", c.Banana, z.Code, err)
		}
	}
	return nil
}

// Get returns the city with the given banana, or ErrCityNotFound.
func (r *CityRepository) Get(ctx context.Context, banana string) (*models.City, error) {
	row := r.db.QueryRow(ctx, `
		SELECT banana, name, state, county, vendor, vendor_slug, vendor_config, population, active,
		       last_synced_at, created_at, updated_at
		FROM cities WHERE banana = $1
	`, banana)
	c, err := scanCity(row)
	if err != nil {
		return nil, err
	}
	zips, err := r.zipCodes(ctx, c.Banana)
	if err != nil {
		return nil, err
	}
	c.ZipCodes = zips
	return c, nil
}

// ListActive returns every active city, ordered by banana for
// deterministic iteration order across sync runs.
func (r *CityRepository) ListActive(ctx context.Context) ([]models.City, error) {
	rows, err := r.db.Query(ctx, `
		SELECT banana, name, state, county, vendor, vendor_slug, vendor_config, population, active,
		       last_synced_at, created_at, updated_at
		FROM cities WHERE active = true ORDER BY banana
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: list active cities: %w", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		cities = append(cities, *c)
	}
	return cities, rows.Err()
}

func (r *CityRepository) zipCodes(ctx context.Context, banana string) ([]models.ZipCode, error) {
	rows, err := r.db.Query(ctx, `SELECT code, is_primary FROM zipcodes WHERE banana = $1 ORDER BY code`, banana)
	if err != nil {
		return nil, fmt.Errorf("repository: zipcodes for %s: %w", banana, err)
	}
	defer rows.Close()

	var zips []models.ZipCode
	for rows.Next() {
		var z models.ZipCode
		if err := rows.Scan(&z.Code, &z.Primary); err != nil {
			return nil, fmt.Errorf("repository: scan zipcode: %w", err)
		}
		zips = append(zips, z)
	}
	return zips, rows.Err()
}

// MarkSynced records the timestamp of a successful sync.
func (r *CityRepository) MarkSynced(ctx context.Context, banana string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE cities SET last_synced_at = $2, updated_at = CURRENT_TIMESTAMP WHERE banana = $1`, banana, at)
	if err != nil {
		return fmt.Errorf("repository: mark synced %s: %w", banana, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCity(row rowScanner) (*models.City, error) {
	var c models.City
	var vendorConfig []byte
	var county, vendorSlug *string
	err := row.Scan(&c.Banana, &c.Name, &c.State, &county, &c.Vendor, &vendorSlug, &vendorConfig, &c.Population, &c.Active,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, fmt.Errorf("repository: scan city: %w", err)
	}
	if len(vendorConfig) > 0 {
		if err := json.Unmarshal(vendorConfig, &c.VendorConfig); err != nil {
			return nil, fmt.Errorf("repository: unmarshal vendor config: %w", err)
		}
	}
	if county != nil {
		c.County = *county
	}
	if vendorSlug != nil {
		c.VendorSlug = *vendorSlug
	}
	return &c, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/engagic/ingest/pkg/models"
)

// cityRecord is the on-disk shape of an entry in data/cities.json.
type cityRecord struct {
	Banana       string          `json:"banana"`
	Name         string          `json:"name"`
	State        string          `json:"state"`
	County       string          `json:"county"`
	Vendor       string          `json:"vendor"`
	VendorSlug   string          `json:"vendor_slug"`
	VendorConfig map[string]any  `json:"vendor_config"`
	Population   int             `json:"population"`
	Active       *bool           `json:"active"`
	ZipCodes     []zipCodeRecord `json:"zipcodes"`
}

type zipCodeRecord struct {
	Code    string `json:"code"`
	Primary bool   `json:"primary"`
}

// LoadCities reads the static city roster from configDir/data/cities.json.
func LoadCities(configDir string) ([]models.City, error) {
	path := filepath.Join(configDir, "data", "cities.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var records []cityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cities := make([]models.City, 0, len(records))
	for _, r := range records {
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		zips := make([]models.ZipCode, 0, len(r.ZipCodes))
		for _, z := range r.ZipCodes {
			zips = append(zips, models.ZipCode{Code: z.Code, Primary: z.Primary})
		}
		cities = append(cities, models.City{
			Banana:       r.Banana,
			Name:         r.Name,
			State:        r.State,
			County:       r.County,
			Vendor:       r.Vendor,
			VendorSlug:   r.VendorSlug,
			VendorConfig: r.VendorConfig,
			Population:   r.Population,
			Active:       active,
			ZipCodes:     zips,
		})
	}
	return cities, nil
}

// LoadVendorFixture reads a vendor-specific static JSON fixture from
// configDir/data/<name>.json into v, e.g. the onbase site directory
// that has no derivable-from-slug portal URL.
func LoadVendorFixture(configDir, name string, v any) error {
	path := filepath.Join(configDir, "data", name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

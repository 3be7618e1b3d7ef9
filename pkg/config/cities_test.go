package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, dir, name, content string) {
	t.Helper()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644))
}

func TestLoadCities_DefaultsActiveToTrue(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "cities.json", `[
		{"banana": "springfield-il", "name": "Springfield", "state": "IL", "vendor": "primegov", "vendor_slug": "springfield"},
		{"banana": "shelbyville-il", "name": "Shelbyville", "state": "IL", "vendor": "legistar", "active": false}
	]`)

	cities, err := LoadCities(dir)
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.True(t, cities[0].Active)
	assert.False(t, cities[1].Active)
	assert.Equal(t, "springfield", cities[0].VendorSlug)
}

func TestLoadCities_ParsesZipCodes(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "cities.json", `[
		{"banana": "springfield-il", "name": "Springfield", "vendor": "primegov",
		 "zipcodes": [{"code": "62701", "primary": true}, {"code": "62702", "primary": false}]}
	]`)

	cities, err := LoadCities(dir)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	require.Len(t, cities[0].ZipCodes, 2)
	assert.Equal(t, "62701", cities[0].ZipCodes[0].Code)
	assert.True(t, cities[0].ZipCodes[0].Primary)
}

func TestLoadCities_MissingFile(t *testing.T) {
	_, err := LoadCities(t.TempDir())
	assert.Error(t, err)
}

func TestLoadVendorFixture(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "granicus_view_ids.json", `{"springfield-il": 42, "shelbyville-il": 7}`)

	var viewIDs map[string]int
	require.NoError(t, LoadVendorFixture(dir, "granicus_view_ids", &viewIDs))
	assert.Equal(t, 42, viewIDs["springfield-il"])
	assert.Equal(t, 7, viewIDs["shelbyville-il"])
}

func TestLoadVendorFixture_MissingFile(t *testing.T) {
	var m map[string]int
	err := LoadVendorFixture(t.TempDir(), "missing", &m)
	assert.Error(t, err)
}

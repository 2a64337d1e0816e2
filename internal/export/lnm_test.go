package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"world-helipads/internal/config"
	"world-helipads/internal/point"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInfo(t *testing.T, s string) point.Info {
	t.Helper()
	in, err := point.ParseInfo(s)
	require.NoError(t, err)
	return in
}

func TestElevationFeet(t *testing.T) {
	type testCase struct {
		info   string
		expect string
	}
	tests := []testCase{
		{info: `{"elevation":412}`, expect: "1351.70608"},
		{info: `{"elevation":547.5}`, expect: "1796.2599"},
		{info: `{"elevation":"12 m"}`, expect: "39.37008"},
		{info: `{"elevation":"12,5"}`, expect: "41.0105"},
		{info: `{"elevation":"-3.5m"}`, expect: "-11.48294"},
		{info: `{"elevation":0}`, expect: "0.0"},
		{info: `{"elevation":""}`, expect: ""},
		{info: `{"elevation":null}`, expect: ""},
		{info: `{"elevation":"unknown"}`, expect: ""},
		{info: `{"elevation":"1.2.3"}`, expect: ""},
		{info: `{"name":"x"}`, expect: ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expect, ElevationFeet(mustInfo(t, tc.info)), tc.info)
	}
}

func TestDescription(t *testing.T) {
	info := mustInfo(t, `{"name":"Roof","icaoCode":"XXHP","surface":"concrete","operator":"","description":"night ops","elevation":"12","site":"Hospital"}`)
	assert.Equal(t, "Surface: concrete\nDescription: night ops\nElevation: 12m MSL\nSite: Hospital\nSource: OSM", Description("OSM", info))

	info = mustInfo(t, `{"icaoCode":"EDXY","name":"Klinikum","operator":"Civil","elevation":""}`)
	assert.Equal(t, "Operator: Civil\nSource: OpenAIP", Description("OpenAIP", info))

	assert.Equal(t, "Source: OSM", Description("OSM", nil))
	assert.Equal(t, "Icaocode", capitalize("icaoCode"))
	assert.Equal(t, "Übersicht", capitalize("übersicht"))
}

func TestAssignRegion(t *testing.T) {
	bands := config.DefaultRegions()
	type testCase struct {
		lon    float64
		expect string
	}
	for _, tc := range []testCase{{-180, "Region 1"}, {-20, "Region 2"}, {59.9, "Region 2"}, {60, "Region 3"}, {180, "Region 3"}} {
		got, err := AssignRegion(tc.lon, bands)
		require.NoError(t, err)
		assert.Equal(t, tc.expect, got, "lon %v", tc.lon)
	}
	_, err := AssignRegion(181, bands)
	var re *RegionAssignmentError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 181.0, re.Longitude)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	set := point.Set{
		{Lat: 48.1106, Lon: 11.4697, Source: point.SourceOpenAIP, Info: `{"icaoCode":"","name":"Klinikum","operator":"Civil","elevation":547.5}`},
		{Lat: 40.7, Lon: -74, Source: point.SourceOSM, Info: `{"name":"Downtown","icaoCode":"KJRA","surface":"","operator":"","description":"","elevation":""}`},
		{Lat: 35.6, Lon: 139.7, Source: point.SourceOSM, Info: `{"name":"Tokyo, \"Roof\""}`},
		{Lat: 52.5, Lon: 13.4, Source: point.SourceOSM, Info: `{}`},
	}
	counts, err := Write(set, config.DefaultRegions(), dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Region 1": 1, "Region 2": 2, "Region 3": 1}, counts)

	f, err := os.Open(filepath.Join(dir, "export_lnm_Region 2.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"Helipad", "Klinikum", "", "48.1106", "11.4697", "1796.2599", "", "WorldHelipads", "Operator: Civil\nElevation: 547.5m MSL\nSource: OpenAIP", "Region 2", "", "", ""}, rows[1])
	assert.Equal(t, "52.5", rows[2][3])
	assert.Equal(t, "Source: OSM", rows[2][8])

	b, err := os.ReadFile(filepath.Join(dir, "export_lnm_Region 1.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "Helipad,Downtown,KJRA,40.7,-74.0,,,WorldHelipads,Source: OSM,Region 1,,,")

	b, err = os.ReadFile(filepath.Join(dir, "export_lnm_Region 3.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Tokyo, ""Roof"""`)
}

func TestWrite_RegionErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	set := point.Set{
		{Lat: 1, Lon: 1, Source: point.SourceOSM, Info: `{}`},
		{Lat: 1, Lon: 200, Source: point.SourceOSM, Info: `{}`},
	}
	_, err := Write(set, config.DefaultRegions(), dir)
	var re *RegionAssignmentError
	require.ErrorAs(t, err, &re)
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, ents)

	_, err = Write(point.Set{{Lat: 1, Lon: 1, Info: "["}}, config.DefaultRegions(), dir)
	assert.Error(t, err)
}

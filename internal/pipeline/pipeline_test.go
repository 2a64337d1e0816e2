package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"world-helipads/internal/config"
	"world-helipads/internal/osm"
	"world-helipads/internal/point"
	"world-helipads/internal/table"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	root := t.TempDir()
	c := config.Default()
	c.RawDir = filepath.Join(root, "raw")
	c.OpenAIPDir = filepath.Join(c.RawDir, "openaip")
	c.OSMDir = filepath.Join(c.RawDir, "osm")
	c.IntermediateDir = filepath.Join(root, "intermediate")
	c.ExportDir = filepath.Join(root, "export")
	c.LatDivisions = 1
	c.LonDivisions = 2
	c.Workers = 2
	return c
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// 一个航空点位（民用）与附近 20 米处的地图直升机坪重复；地图中另有一个独立点与一个跨瓦片重复点
func seed(t *testing.T, c config.Config) {
	write(t, filepath.Join(c.OpenAIPDir, "de_apt.json"), `[
		{"name":"Klinikum","type":7,"geometry":{"coordinates":[11.4697,48.1106]},"elevation":{"value":547}},
		{"name":"EDDF","type":2,"geometry":{"coordinates":[8.57,50.03]}}
	]`)
	heli := filepath.Join(c.OSMDir, "heli")
	write(t, filepath.Join(heli, "(-90.0, -180.0, 90.0, 0.0).json"), `{"elements":[
		{"type":"node","lat":40.7,"lon":-74.0,"tags":{"name":"Downtown","icao":"KJRA"}}
	]}`)
	write(t, filepath.Join(heli, "(-90.0, 0.0, 90.0, 180.0).json"), `{"elements":[
		{"type":"node","lat":48.11078,"lon":11.4697,"tags":{"name":"Klinikum Dach"}},
		{"type":"node","lat":35.6,"lon":139.7,"tags":{"name":"Tokyo"}},
		{"type":"way","center":{"lat":35.6,"lon":139.7},"tags":{"name":"Tokyo again"}}
	]}`)
	write(t, filepath.Join(c.OSMDir, "hospital", "(-90.0, 0.0, 90.0, 180.0).json"), `{"elements":[
		{"type":"way","center":{"lat":35.6010,"lon":139.7},"tags":{"name":"St. Luke"}}
	]}`)
}

func TestMergeAndExport(t *testing.T) {
	c := testConfig(t)
	seed(t, c)
	p := &Pipeline{Cfg: c, RunID: "test"}

	merged, err := p.Merge(context.Background())
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, point.SourceOpenAIP, merged[0].Source)
	assert.Equal(t, "Downtown", mustGet(t, merged[1], "name"))
	assert.Equal(t, "Tokyo", mustGet(t, merged[2], "name"))
	assert.Equal(t, "Hospital", mustGet(t, merged[2], "site"))
	assert.Equal(t, "", mustGet(t, merged[1], "site"))

	for _, name := range []string{TableOpenAIP, TableOSMHeli, TableHospitals, TableHelipads} {
		assert.FileExists(t, p.TablePath(name))
		assert.FileExists(t, strings.TrimSuffix(p.TablePath(name), ".parquet")+".csv")
	}
	assert.NoFileExists(t, p.TablePath(TableOffshore))

	back, err := table.Read(context.Background(), p.TablePath(TableHelipads))
	require.NoError(t, err)
	assert.Equal(t, merged, back)

	counts, err := p.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Region 1": 1, "Region 2": 1, "Region 3": 1}, counts)
	b, err := os.ReadFile(filepath.Join(c.ExportDir, "export_lnm_Region 3.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "Site: Hospital\nSource: OSM")
}

func TestMerge_MissingInputs(t *testing.T) {
	c := testConfig(t)
	p := &Pipeline{Cfg: c}
	_, err := p.Merge(context.Background())
	assert.Error(t, err)
}

func mustGet(t *testing.T, r point.Record, key string) string {
	t.Helper()
	in, err := point.ParseInfo(r.Info)
	require.NoError(t, err)
	return in.Get(key)
}

type fakeObjects struct{ objs map[string]string }

func (f *fakeObjects) List(_ context.Context, suffix string) ([]string, error) {
	var out []string
	for k := range f.objs {
		if strings.HasSuffix(k, suffix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeObjects) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.objs[key])), nil
}

type fakeOverpass struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (f *fakeOverpass) Query(_ context.Context, tmpl string, b orb.Bound) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[tmpl]++
	if tmpl == f.fail {
		return nil, errors.New("gateway timeout")
	}
	return []byte(`{"elements":[]}`), nil
}

func TestRetrieve(t *testing.T) {
	c := testConfig(t)
	c.HeliQuery, c.HospitalQuery, c.OffshoreQuery = "heli", "hospital", "offshore"
	ov := &fakeOverpass{calls: map[string]int{}, fail: "offshore"}
	p := &Pipeline{
		Cfg:      c,
		Objects:  &fakeObjects{objs: map[string]string{"de_apt.json": "[]", "de_nav.json": "[]"}},
		Overpass: ov,
	}
	err := p.Retrieve(context.Background())
	assert.ErrorContains(t, err, "tiles failed")
	assert.FileExists(t, filepath.Join(c.OpenAIPDir, "de_apt.json"))
	assert.NoFileExists(t, filepath.Join(c.OpenAIPDir, "de_nav.json"))
	assert.FileExists(t, filepath.Join(c.OSMDir, "heli", "(-90.0, -180.0, 90.0, 0.0).json"))
	assert.FileExists(t, filepath.Join(c.OSMDir, "hospital", "(-90.0, 0.0, 90.0, 180.0).json"))
	assert.Equal(t, map[string]int{"heli": 2, "hospital": 2, "offshore": 2}, ov.calls)

	ov.fail = ""
	require.NoError(t, p.Retrieve(context.Background()))
	assert.Equal(t, map[string]int{"heli": 2, "hospital": 2, "offshore": 4}, ov.calls)
}

func TestRun_UnknownStage(t *testing.T) {
	p := &Pipeline{Cfg: testConfig(t)}
	assert.ErrorContains(t, p.Run(context.Background(), []string{"deploy"}), "unknown stage")
}

var _ osm.Querier = (*fakeOverpass)(nil)

func TestNew_TileCache(t *testing.T) {
	c := testConfig(t)
	p, err := New(context.Background(), c, "run")
	require.NoError(t, err)
	client, ok := p.Overpass.(*osm.Client)
	require.True(t, ok)
	assert.Nil(t, client.Cache)
	assert.Equal(t, c.OverpassRetries, client.Retries)

	t.Setenv("REDIS_URL", "redis://127.0.0.1:6379/1")
	c.RedisCache = true
	p, err = New(context.Background(), c, "run")
	require.NoError(t, err)
	assert.IsType(t, &osm.RedisCache{}, p.Overpass.(*osm.Client).Cache)
}

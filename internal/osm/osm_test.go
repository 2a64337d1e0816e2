package osm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"world-helipads/internal/point"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldTiles(t *testing.T) {
	tiles := WorldTiles(18, 36)
	require.Len(t, tiles, 648)
	assert.Equal(t, "(-90.0, -180.0, -80.0, -170.0).json", TileFileName(tiles[0]))
	assert.Equal(t, "(-90.0, -170.0, -80.0, -160.0).json", TileFileName(tiles[1]))
	assert.Equal(t, "(80.0, 170.0, 90.0, 180.0).json", TileFileName(tiles[len(tiles)-1]))
	assert.Equal(t, "(0.0, -180.0, 10.0, -170.0).json", TileFileName(tiles[9*36]))

	odd := WorldTiles(7, 1)
	assert.Equal(t, "(-90.0, -180.0, -64.28571428571428, 180.0).json", TileFileName(odd[0]))
	assert.Nil(t, WorldTiles(0, 36))
}

func TestRenderQuery(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-170, -90}, Max: orb.Point{-160, -80}}
	assert.Equal(t, "node(-90.0, -170.0, -80.0, -160.0);way(-90.0, -170.0, -80.0, -160.0);", RenderQuery("node($bbox$);way($bbox$);", b))
}

func TestMinuteLimiter(t *testing.T) {
	now := time.Unix(600, 0)
	ml := NewMinuteLimiter(2)
	ml.now = func() time.Time { return now }
	assert.True(t, ml.allow())
	assert.True(t, ml.allow())
	assert.False(t, ml.allow())
	now = now.Add(time.Minute)
	assert.True(t, ml.allow())

	ml.poll = time.Millisecond
	ml.used = ml.capacity
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ml.Wait(ctx), context.Canceled)

	var nilLimiter *MinuteLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))
	assert.True(t, NewMinuteLimiter(0).allow())
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = val
	return nil
}

func testClient(url string) *Client {
	c := NewClient(url, 0, 5*time.Second)
	c.Backoff = time.Millisecond
	return c
}

var tile = orb.Bound{Min: orb.Point{10, 40}, Max: orb.Point{20, 50}}

func TestClient_Query(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Equal(t, "[out:json];node(40.0, 10.0, 50.0, 20.0);out center;", form.Get("data"))
		_, _ = io.WriteString(w, `{"elements":[]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.Cache = &memCache{m: map[string][]byte{}}
	for i := 0; i < 2; i++ {
		b, err := c.Query(context.Background(), "[out:json];node($bbox$);out center;", tile)
		require.NoError(t, err)
		assert.JSONEq(t, `{"elements":[]}`, string(b))
	}
	assert.Equal(t, int32(1), hits.Load(), "second query served from cache")
}

func TestClient_Retry(t *testing.T) {
	type testCase struct {
		description string
		responses   []func(w http.ResponseWriter)
		expectErr   bool
		expectHits  int32
	}
	ok := func(w http.ResponseWriter) { _, _ = io.WriteString(w, `{"elements":[]}`) }
	unavailable := func(w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) }
	tooMany := func(w http.ResponseWriter) { w.WriteHeader(http.StatusTooManyRequests) }
	badRequest := func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadRequest) }
	timeout := func(w http.ResponseWriter) {
		_, _ = io.WriteString(w, `{"elements":[],"remark":"runtime error: Query timed out in \"query\" at line 1 after 26 seconds."}`)
	}
	tests := []testCase{
		{description: "503 then ok", responses: []func(http.ResponseWriter){unavailable, ok}, expectHits: 2},
		{description: "429 and remark then ok", responses: []func(http.ResponseWriter){tooMany, timeout, ok}, expectHits: 3},
		{description: "400 not retried", responses: []func(http.ResponseWriter){badRequest, ok}, expectErr: true, expectHits: 1},
		{description: "retries exhausted", responses: []func(http.ResponseWriter){unavailable, unavailable, unavailable, unavailable, ok}, expectErr: true, expectHits: 4},
	}
	for _, tc := range tests {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := hits.Add(1)
			tc.responses[int(n)-1](w)
		}))
		_, err := testClient(srv.URL).Query(context.Background(), "$bbox$", tile)
		srv.Close()
		if tc.expectErr {
			assert.Error(t, err, tc.description)
		} else {
			assert.NoError(t, err, tc.description)
		}
		assert.Equal(t, tc.expectHits, hits.Load(), tc.description)
	}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "parse error")
	}))
	defer srv.Close()
	_, err := testClient(srv.URL).Query(context.Background(), "$bbox$", tile)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "parse error", se.Body)
}

type fakeQuerier struct {
	mu    sync.Mutex
	calls []orb.Bound
	fail  map[orb.Bound]bool
}

func (f *fakeQuerier) Query(_ context.Context, _ string, b orb.Bound) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, b)
	if f.fail[b] {
		return nil, errors.New("unavailable")
	}
	return []byte(`{"elements":[{"type":"node","lat":1,"lon":2,"tags":{"name":"x"}}]}`), nil
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	tiles := WorldTiles(2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, TileFileName(tiles[0])), []byte(`{"elements":[]}`), 0o644))

	q := &fakeQuerier{fail: map[orb.Bound]bool{tiles[3]: true}}
	st, err := Download(context.Background(), q, tiles, "$bbox$", dir, 3)
	assert.Error(t, err)
	assert.Equal(t, DownloadStats{Tiles: 4, Skipped: 1, Downloaded: 2, Failed: 1}, st)
	assert.Len(t, q.calls, 3)
	assert.NoFileExists(t, filepath.Join(dir, TileFileName(tiles[3])))

	q.fail = nil
	q.calls = nil
	st, err = Download(context.Background(), q, tiles, "$bbox$", dir, 1)
	require.NoError(t, err)
	assert.Equal(t, DownloadStats{Tiles: 4, Skipped: 3, Downloaded: 1}, st)
	assert.Equal(t, []orb.Bound{tiles[3]}, q.calls)
}

func TestDownload_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := &fakeQuerier{}
	_, err := Download(ctx, q, WorldTiles(18, 36), "$bbox$", t.TempDir(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransformDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"(0.0, 0.0, 10.0, 10.0).json": `{"elements":[
			{"type":"node","id":1,"lat":5.5,"lon":6.5,"tags":{"aeroway":"helipad","name":"Roof Pad","icao":"XXHP","ele":"12 m","surface":"concrete"}},
			{"type":"way","id":2,"center":{"lat":7.25,"lon":8.75},"tags":{"aeroway":"heliport","operator:type":"private"}},
			{"type":"relation","id":3,"tags":{"aeroway":"heliport"}},
			{"type":"node","id":4,"lat":1,"lon":1}
		]}`,
		"(10.0, 0.0, 20.0, 10.0).json": `null`,
		"notes.txt":                    `ignored`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	set, err := TransformDir(dir, KindHelipad)
	require.NoError(t, err)
	require.Len(t, set, 3)

	assert.Equal(t, point.Record{
		Lat: 5.5, Lon: 6.5, Source: point.SourceOSM,
		Info: `{"name":"Roof Pad","icaoCode":"XXHP","surface":"concrete","operator":"","description":"","elevation":"12 m"}`,
	}, set[0])
	assert.Equal(t, 7.25, set[1].Lat)
	assert.Equal(t, 8.75, set[1].Lon)
	info, err := point.ParseInfo(set[1].Info)
	require.NoError(t, err)
	assert.Equal(t, "private", info.Get("operator"))
	assert.Equal(t, `{"name":"","icaoCode":"","surface":"","operator":"","description":"","elevation":""}`, set[2].Info)

	sites, err := TransformDir(dir, KindHospital)
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, `{"name":"Roof Pad","site":"hospital"}`, sites[0].Info)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"elements":`), 0o644))
	_, err = TransformDir(dir, KindHelipad)
	assert.Error(t, err)
}

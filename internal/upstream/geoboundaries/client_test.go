package geoboundaries

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCollection = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"shapeName":"Tokyo","shapeID":"JPN-ADM1-1","shapeISO":"JP-13"},
	 "geometry":{"type":"Polygon","coordinates":[[[139,35],[140,35],[140,36],[139,36],[139,35]]]}}
]}`

func newServer(t *testing.T, downloads *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/gbOpen/JPN/ADM1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"boundaryID":"JPN-ADM1-1","boundaryISO":"JPN","boundaryType":"ADM1","gjDownloadURL":"%s/files/jpn1.geojson","simplifiedGeometryGeoJSON":"%s/files/jpn1_simple.geojson"}`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/gbOpen/JPN/ADM2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"boundaryID":"JPN-ADM2-1","gjDownloadURL":"%s/files/jpn2.geojson"}]`, srv.URL)
	})
	mux.HandleFunc("/gbOpen/XXX/ADM1/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(downloads, 1)
		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprint(w, sampleCollection)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBoundaryInfo(t *testing.T) {
	var downloads int32
	srv := newServer(t, &downloads)
	c := NewClient(srv.URL+"/gbOpen", nil)

	info, err := c.FetchBoundaryInfo(context.Background(), "jpn", 1)
	require.NoError(t, err)
	assert.Equal(t, "JPN-ADM1-1", info.BoundaryID)
	assert.Equal(t, srv.URL+"/files/jpn1.geojson", info.DownloadURL(false))
	assert.Equal(t, srv.URL+"/files/jpn1_simple.geojson", info.DownloadURL(true))

	info, err = c.FetchBoundaryInfo(context.Background(), "JPN", 2)
	require.NoError(t, err)
	assert.Equal(t, "JPN-ADM2-1", info.BoundaryID)
	assert.Equal(t, info.GeoJSONURL, info.DownloadURL(true), "falls back to full geometry")

	_, err = c.FetchBoundaryInfo(context.Background(), "XXX", 1)
	assert.Error(t, err)

	_, err = c.FetchBoundaryInfo(context.Background(), "JPN", 7)
	assert.Error(t, err)
}

func TestDownloadGeoJSON_CacheOrFetch(t *testing.T) {
	var downloads int32
	srv := newServer(t, &downloads)
	c := NewClient(srv.URL+"/gbOpen", NewMemoryCache())

	for i := 0; i < 3; i++ {
		features, err := c.DownloadGeoJSON(context.Background(), srv.URL+"/files/jpn1.geojson")
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, "Tokyo", features[0].StringProperty("shapeName"))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&downloads))

	_, err := c.DownloadGeoJSON(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDownload)
}

func TestDownloadGeoJSON_NoCacheAlwaysFetches(t *testing.T) {
	var downloads int32
	srv := newServer(t, &downloads)
	c := NewClient(srv.URL+"/gbOpen", nil)

	for i := 0; i < 2; i++ {
		_, err := c.DownloadGeoJSON(context.Background(), srv.URL+"/files/jpn1.geojson")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&downloads))
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Hour))
	b, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(2 * time.Hour)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

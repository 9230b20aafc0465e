package geoboundaries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream"
)

const (
	// DefaultBaseURL is the geoBoundaries open-license metadata API.
	DefaultBaseURL = "https://www.geoboundaries.org/api/current/gbOpen"

	// DefaultCacheTTL bounds how long downloaded GeoJSON is reused.
	DefaultCacheTTL = 24 * time.Hour

	service = "geoboundaries"
)

// ErrNoDownload is returned when boundary metadata carries no GeoJSON URL.
var ErrNoDownload = errors.New("geoboundaries: no geojson download url")

// BoundaryInfo is the metadata record for one country and level.
type BoundaryInfo struct {
	BoundaryID    string `json:"boundaryID"`
	BoundaryName  string `json:"boundaryName"`
	BoundaryISO   string `json:"boundaryISO"`
	BoundaryType  string `json:"boundaryType"`
	BoundaryYear  string `json:"boundaryYearRepresented"`
	Source        string `json:"boundarySource"`
	License       string `json:"boundaryLicense"`
	GeoJSONURL    string `json:"gjDownloadURL"`
	SimplifiedURL string `json:"simplifiedGeometryGeoJSON"`
	AdmUnitCount  string `json:"admUnitCount"`
	BuildDate     string `json:"buildDate"`
}

// DownloadURL picks the GeoJSON to fetch. Simplified geometry is much
// smaller and accurate enough for containment at the parent level.
func (b BoundaryInfo) DownloadURL(simplified bool) string {
	if simplified && b.SimplifiedURL != "" {
		return b.SimplifiedURL
	}
	if b.GeoJSONURL != "" {
		return b.GeoJSONURL
	}
	return b.SimplifiedURL
}

// Client fetches boundary metadata and GeoJSON, caching downloads.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
}

// NewClient creates a geoBoundaries client. A nil cache disables caching.
func NewClient(baseURL string, cache Cache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
	}
}

// FetchBoundaryInfo fetches metadata for iso3 at administrative level (0..5).
func (c *Client) FetchBoundaryInfo(ctx context.Context, iso3 string, level int) (*BoundaryInfo, error) {
	if level < 0 || level > 5 {
		return nil, fmt.Errorf("invalid level %d", level)
	}
	fullURL := fmt.Sprintf("%s/%s/ADM%d/", c.baseURL, strings.ToUpper(iso3), level)

	body, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("fetch boundary info %s ADM%d: %w", iso3, level, err)
	}

	// The API answers with an object for one country, an array for several.
	trimmed := bytes.TrimSpace(body)
	var info BoundaryInfo
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []BoundaryInfo
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode boundary info: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("boundary info %s ADM%d: empty response", iso3, level)
		}
		info = list[0]
	} else if err := json.Unmarshal(trimmed, &info); err != nil {
		return nil, fmt.Errorf("decode boundary info: %w", err)
	}

	if info.GeoJSONURL == "" && info.SimplifiedURL == "" {
		return nil, ErrNoDownload
	}
	return &info, nil
}

// DownloadGeoJSON returns the features at url, from cache when present.
func (c *Client) DownloadGeoJSON(ctx context.Context, url string) ([]geo.Feature, error) {
	if url == "" {
		return nil, ErrNoDownload
	}

	if c.cache != nil {
		body, hit, err := c.cache.Get(ctx, url)
		if err != nil {
			upstream.LogError(service, "cache get", err)
		}
		upstream.LogCache(service, url, hit)
		if hit {
			metrics.CacheHits.WithLabelValues(c.cache.Name()).Inc()
			features, err := geo.DecodeFeatureCollection(bytes.NewReader(body))
			if err == nil {
				return features, nil
			}
			upstream.LogError(service, "decode cached", err)
		} else {
			metrics.CacheMisses.WithLabelValues(c.cache.Name()).Inc()
		}
	}

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download geojson: %w", err)
	}
	features, err := geo.DecodeFeatureCollection(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, url, body, c.cacheTTL); err != nil {
			upstream.LogError(service, "cache set", err)
		}
	}
	return features, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	start := time.Now()
	upstream.LogRequest(service, "GET", fullURL, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.LogError(service, "fetch", err)
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("geoboundaries request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := &upstream.StatusError{Service: service, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		upstream.LogError(service, "fetch", err)
		metrics.ObserveUpstream(service, start, err)
		return nil, err
	}

	upstream.LogResponse(service, resp.StatusCode, time.Since(start), 1)
	metrics.ObserveUpstream(service, start, nil)
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/boundaries"
	"github.com/EmpoweredVote/EV-Geo/internal/geo"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream"
)

const (
	// DefaultEndpoint is the public Overpass API interpreter.
	DefaultEndpoint = "https://overpass-api.de/api/interpreter"

	service = "overpass"
)

// DefaultPolicy retries only when Overpass answers with something other than
// JSON, which it does when overloaded or timing out server-side.
var DefaultPolicy = upstream.Policy{
	Service:  service,
	Initial:  2 * time.Second,
	Max:      15 * time.Second,
	Attempts: 3,
	Retryable: func(err error) bool {
		return errors.Is(err, upstream.ErrUnexpectedContentType)
	},
}

// Client queries administrative boundary relations from Overpass.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *upstream.Limiter
	policy     upstream.Policy
}

// NewClient creates an Overpass client. Calls are not concurrency-limited.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 4 * time.Minute,
		},
		limiter: upstream.NewLimiter(upstream.LimitConfig{}),
		policy:  DefaultPolicy,
	}
}

// WithPolicy returns a copy of c using p for retries.
func (c *Client) WithPolicy(p upstream.Policy) *Client {
	cp := *c
	cp.policy = p
	return &cp
}

type response struct {
	Elements []element `json:"elements"`
	Remark   string    `json:"remark"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Center *latLon           `json:"center"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Tags   map[string]string `json:"tags"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BuildAdminQuery builds the Overpass QL query for administrative relations
// of adminLevel inside the country identified by its ISO 3166-1 alpha-2 code.
func BuildAdminQuery(countryCode string, adminLevel int) string {
	return fmt.Sprintf(`[out:json][timeout:180];
area["ISO3166-1"="%s"][admin_level=2]->.country;
relation["boundary"="administrative"]["admin_level"="%d"](area.country);
out tags center;`, strings.ToUpper(countryCode), adminLevel)
}

// FetchAdminAreas returns administrative relations at adminLevel within the
// country. Elements without a center are dropped.
func (c *Client) FetchAdminAreas(ctx context.Context, countryCode string, adminLevel int) ([]boundaries.TaggedElement, error) {
	query := BuildAdminQuery(countryCode, adminLevel)

	var resp response
	err := c.policy.Do(ctx, c.limiter, func(ctx context.Context) error {
		var err error
		resp, err = c.execute(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("overpass admin_level=%d %s: %w", adminLevel, countryCode, err)
	}
	if resp.Remark != "" {
		upstream.LogError(service, "query", errors.New(resp.Remark))
	}

	out := make([]boundaries.TaggedElement, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		var center geo.Coordinate
		switch {
		case el.Center != nil:
			center = geo.Coordinate{Lat: el.Center.Lat, Lon: el.Center.Lon}
		case el.Lat != nil && el.Lon != nil:
			center = geo.Coordinate{Lat: *el.Lat, Lon: *el.Lon}
		default:
			continue
		}
		out = append(out, boundaries.TaggedElement{ID: el.ID, Center: center, Tags: el.Tags})
	}
	return out, nil
}

func (c *Client) execute(ctx context.Context, query string) (response, error) {
	start := time.Now()
	upstream.LogRequest(service, "POST", c.endpoint, nil)

	form := url.Values{}
	form.Set("data", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return response{}, upstream.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.LogError(service, "fetch", err)
		metrics.ObserveUpstream(service, start, err)
		return response{}, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		err := fmt.Errorf("%w: %q (status %d)", upstream.ErrUnexpectedContentType, mediaType, resp.StatusCode)
		upstream.LogError(service, "fetch", err)
		metrics.ObserveUpstream(service, start, err)
		return response{}, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &upstream.StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
		metrics.ObserveUpstream(service, start, err)
		return response{}, err
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveUpstream(service, start, err)
		return response{}, fmt.Errorf("decode response: %w", err)
	}

	upstream.LogResponse(service, resp.StatusCode, time.Since(start), len(out.Elements))
	metrics.ObserveUpstream(service, start, nil)
	return out, nil
}

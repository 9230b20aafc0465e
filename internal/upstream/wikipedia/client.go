package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream"
)

const (
	// DefaultEndpointTemplate is the REST base; %s is the language code.
	DefaultEndpointTemplate = "https://%s.wikipedia.org/api/rest_v1"

	service   = "wikipedia"
	userAgent = "EV-Geo/1.0 (https://empowered.vote)"
)

// langCode matches Wikipedia language subdomains such as "ja", "zh-yue" or "be-tarask".
var langCode = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]+)*$`)

// DefaultLimits serializes calls with a 1200ms gap.
var DefaultLimits = upstream.LimitConfig{MaxConcurrent: 1, MinInterval: 1200 * time.Millisecond}

// Summary is the subset of a page summary used for thumbnails.
type Summary struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"-"`
	PageURL      string `json:"-"`
}

type summaryResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Client looks up Wikipedia page summaries one at a time.
type Client struct {
	endpointTemplate string
	httpClient       *http.Client
	limiter          *upstream.Limiter
}

// NewClient creates a Wikipedia client. endpointTemplate must contain one %s
// for the language code; empty uses the public API.
func NewClient(endpointTemplate string) *Client {
	if endpointTemplate == "" {
		endpointTemplate = DefaultEndpointTemplate
	}
	return &Client{
		endpointTemplate: endpointTemplate,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: upstream.NewLimiter(DefaultLimits),
	}
}

// WithLimiter returns a copy of c gated by l.
func (c *Client) WithLimiter(l *upstream.Limiter) *Client {
	cp := *c
	cp.limiter = l
	return &cp
}

// ParseTag splits an OSM wikipedia tag ("ja:東京都") into language and title.
// A tag without a language prefix defaults to English. A prefix that is not a
// Wikipedia language code is rejected.
func ParseTag(tag string) (lang, title string, ok bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", "", false
	}
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		lang, title = tag[:i], strings.TrimSpace(tag[i+1:])
	} else {
		lang, title = "en", tag
	}
	if !langCode.MatchString(lang) || title == "" {
		return "", "", false
	}
	return lang, title, true
}

// FetchSummary fetches the page summary for an OSM wikipedia tag. A missing
// page returns (nil, nil).
func (c *Client) FetchSummary(ctx context.Context, tag string) (*Summary, error) {
	lang, title, ok := ParseTag(tag)
	if !ok {
		return nil, nil
	}

	base := fmt.Sprintf(c.endpointTemplate, lang)
	fullURL := base + "/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	var out *Summary
	err := upstream.NoRetry.Do(ctx, c.limiter, func(ctx context.Context) error {
		var err error
		out, err = c.fetch(ctx, fullURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("wikipedia summary %s: %w", tag, err)
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) (*Summary, error) {
	start := time.Now()
	upstream.LogRequest(service, "GET", fullURL, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.LogError(service, "fetch", err)
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ObserveUpstream(service, start, nil)
		upstream.LogResponse(service, resp.StatusCode, time.Since(start), 0)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := &upstream.StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
		metrics.ObserveUpstream(service, start, err)
		return nil, err
	}

	var sr summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	out := &Summary{
		Title:       sr.Title,
		Description: sr.Description,
		PageURL:     sr.ContentURLs.Desktop.Page,
	}
	if sr.Thumbnail != nil {
		out.ThumbnailURL = sr.Thumbnail.Source
	}

	upstream.LogResponse(service, resp.StatusCode, time.Since(start), 1)
	metrics.ObserveUpstream(service, start, nil)
	return out, nil
}

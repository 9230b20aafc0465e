package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream"
)

const (
	// DefaultEndpoint is the Generative Language API base.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.0-flash"

	service = "gemini"
)

var (
	// ErrBlocked indicates the prompt or the answer was blocked for safety.
	ErrBlocked = errors.New("gemini: response blocked")

	// ErrEmptyResult indicates the model returned no usable items.
	ErrEmptyResult = errors.New("gemini: empty result")

	// ErrMalformed indicates the model's answer could not be decoded.
	ErrMalformed = errors.New("gemini: malformed response")
)

// DefaultLimits allows five calls in flight, each dispatched at least three
// seconds after the previous one.
var DefaultLimits = upstream.LimitConfig{MaxConcurrent: 5, MinInterval: 3000 * time.Millisecond}

// DefaultPolicy retries everything not marked permanent.
var DefaultPolicy = upstream.Policy{
	Service:  service,
	Initial:  5 * time.Second,
	Max:      30 * time.Second,
	Attempts: 5,
}

// Client names areas through the Gemini generateContent API.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	limiter    *upstream.Limiter
	policy     upstream.Policy
}

// NewClient creates a Gemini client with its own rate limiter.
func NewClient(apiKey, model, endpoint string) *Client {
	if model == "" {
		model = DefaultModel
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		limiter: upstream.NewLimiter(DefaultLimits),
		policy:  DefaultPolicy,
	}
}

// WithPolicy returns a copy of c using p for retries.
func (c *Client) WithPolicy(p upstream.Policy) *Client {
	cp := *c
	cp.policy = p
	return &cp
}

// WithLimiter returns a copy of c gated by l.
func (c *Client) WithLimiter(l *upstream.Limiter) *Client {
	cp := *c
	cp.limiter = l
	return &cp
}

// GenerateNames asks the model to name every area in req. Items for areas
// not in the request are dropped, and a repeated admId keeps its first item.
func (c *Client) GenerateNames(ctx context.Context, req BatchRequest) ([]NameResult, error) {
	if len(req.Areas) == 0 {
		return nil, nil
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig:  generationConfig{Temperature: 0.1, ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var raw []rawResult
	err = c.policy.Do(ctx, c.limiter, func(ctx context.Context) error {
		var err error
		raw, err = c.generate(ctx, body, len(req.Areas))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate names %s (%d areas): %w", req.CountryCode, len(req.Areas), err)
	}

	return filterResults(req.Areas, raw), nil
}

func (c *Client) generate(ctx context.Context, body []byte, areaCount int) ([]rawResult, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	upstream.LogRequest(service, "POST", endpoint, map[string]interface{}{"areas": areaCount})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, upstream.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.LogError(service, "generate", err)
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstream(service, start, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	results, err := parseResponse(resp.StatusCode, respBody)
	metrics.ObserveUpstream(service, start, err)
	if err != nil {
		upstream.LogError(service, "generate", err)
		return nil, err
	}
	upstream.LogResponse(service, resp.StatusCode, time.Since(start), len(results))
	return results, nil
}

// parseResponse classifies a generateContent response. Rate-limit signals are
// retryable; every other failure is permanent.
func parseResponse(status int, body []byte) ([]rawResult, error) {
	var gr generateResponse
	decodeErr := json.Unmarshal(body, &gr)

	if gr.Error != nil && isResourceExhausted(gr.Error) {
		return nil, fmt.Errorf("%w: %s", upstream.ErrRateLimited, gr.Error.Message)
	}
	if status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", upstream.ErrRateLimited, status)
	}
	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(body))
		if gr.Error != nil {
			msg = gr.Error.Message
		}
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, upstream.Permanent(&upstream.StatusError{Service: service, StatusCode: status, Body: msg})
	}
	if decodeErr != nil {
		return nil, upstream.Permanent(fmt.Errorf("%w: %v", ErrMalformed, decodeErr))
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, upstream.Permanent(fmt.Errorf("%w: prompt %s", ErrBlocked, gr.PromptFeedback.BlockReason))
	}
	if len(gr.Candidates) == 0 {
		return nil, upstream.Permanent(fmt.Errorf("%w: no candidates", ErrEmptyResult))
	}
	cand := gr.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, upstream.Permanent(fmt.Errorf("%w: finish reason SAFETY", ErrBlocked))
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	payload := stripCodeFence(text.String())
	if payload == "" {
		return nil, upstream.Permanent(fmt.Errorf("%w: empty text", ErrEmptyResult))
	}

	results, err := decodeResults(payload)
	if err != nil {
		return nil, upstream.Permanent(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(results) == 0 {
		return nil, upstream.Permanent(ErrEmptyResult)
	}
	return results, nil
}

// decodeResults accepts a bare array or an object wrapping one.
func decodeResults(payload string) ([]rawResult, error) {
	var list []rawResult
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"results", "areas", "items"} {
		if raw, ok := wrapped[key]; ok {
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return nil, errors.New("no result array in response")
}

func isResourceExhausted(e *apiError) bool {
	if e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resource has been exhausted")
}

func filterResults(areas []Area, raw []rawResult) []NameResult {
	want := make(map[string]bool, len(areas))
	for _, a := range areas {
		want[a.AdmID] = true
	}

	seen := make(map[string]bool, len(raw))
	out := make([]NameResult, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		id := strings.TrimSpace(r.AdmID)
		if !want[id] || seen[id] {
			dropped++
			continue
		}
		seen[id] = true

		res := NameResult{AdmID: id, Confidence: math.NaN(), Reasoning: r.Reasoning}
		if r.NameEn != nil {
			res.NameEn = strings.TrimSpace(*r.NameEn)
		}
		if r.NameJa != nil {
			res.NameJa = strings.TrimSpace(*r.NameJa)
		}
		if r.Confidence != nil {
			res.Confidence = *r.Confidence
		}
		out = append(out, res)
	}
	if dropped > 0 {
		upstream.LogError(service, "filter", fmt.Errorf("dropped %d unknown or duplicate items", dropped))
	}
	return out
}

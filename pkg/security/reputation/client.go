// Package reputation looks up file hashes in the VirusTotal v3 API.
package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://www.virustotal.com"
	defaultTimeout = 15 * time.Second
	defaultTTL     = time.Hour
	maxBodyBytes   = 4 << 20
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("reputation: service not configured")
	// ErrNotFound means the hash is unknown to the service.
	ErrNotFound = errors.New("reputation: hash not found")
	// ErrServiceError covers transport failures and unexpected responses.
	ErrServiceError = errors.New("reputation: service error")
)

// Client queries VirusTotal with an in-process cache keyed by sha256.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	record  *Record
	expires time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithCacheTTL sets how long records are reused. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		ttl:     defaultTTL,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether lookups can be made.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Lookup fetches the analysis stats for a sha256 digest.
func (c *Client) Lookup(ctx context.Context, sha256 string) (*Record, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	hash := strings.ToLower(strings.TrimSpace(sha256))
	if len(hash) != 64 {
		return nil, fmt.Errorf("%w: invalid sha256 %q", ErrServiceError, sha256)
	}

	if rec, ok := c.cached(hash); ok {
		return rec, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/files/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrServiceError, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: %s", ErrServiceError, resp.Status, apiErrorMessage(body))
	}

	rec, err := decodeFileReport(hash, body)
	if err != nil {
		return nil, err
	}
	c.store(hash, rec)
	return rec, nil
}

func (c *Client) cached(hash string) (*Record, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.cache[hash]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.record, true
}

func (c *Client) store(hash string, rec *Record) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.cache[hash] = cacheEntry{record: rec, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

type fileReport struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
			LastAnalysisResults map[string]struct {
				Category string `json:"category"`
				Result   string `json:"result"`
			} `json:"last_analysis_results"`
			Reputation       int    `json:"reputation"`
			MeaningfulName   string `json:"meaningful_name"`
			LastAnalysisDate int64  `json:"last_analysis_date"`
		} `json:"attributes"`
	} `json:"data"`
}

func decodeFileReport(hash string, body []byte) (*Record, error) {
	var report fileReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrServiceError, err)
	}
	attrs := report.Data.Attributes
	rec := &Record{
		SHA256:     hash,
		Malicious:  attrs.LastAnalysisStats.Malicious,
		Suspicious: attrs.LastAnalysisStats.Suspicious,
		Harmless:   attrs.LastAnalysisStats.Harmless,
		Undetected: attrs.LastAnalysisStats.Undetected,
		Reputation: attrs.Reputation,
		Name:       attrs.MeaningfulName,
	}
	if attrs.LastAnalysisDate > 0 {
		rec.AnalyzedAt = time.Unix(attrs.LastAnalysisDate, 0).UTC()
	}
	for _, r := range attrs.LastAnalysisResults {
		if r.Category == "malicious" && r.Result != "" {
			rec.ThreatNames = appendUnique(rec.ThreatNames, r.Result)
		}
	}
	return rec, nil
}

func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Code == "" {
		return "unexpected response"
	}
	return payload.Error.Code + ": " + payload.Error.Message
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ghnotifyd/internal/metrics"
	"ghnotifyd/pkg/logx"
)

const (
	DefaultAPIURL    = "https://api.github.com/notifications"
	defaultUserAgent = "ghnotifyd"

	acceptHeader     = "application/vnd.github+json"
	apiVersionHeader = "2022-11-28"

	// defaultPollInterval applies until the server sends X-Poll-Interval.
	defaultPollInterval = 60 * time.Second
)

type Config struct {
	Token     string
	APIURL    string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches the unread notifications feed with conditional requests.
//
// It owns the caching state (ETag) and the server's poll-interval hint: a
// fetch attempted before the hinted window has elapsed is refused locally with
// a *RateLimitedError instead of hitting the API.
type Client struct {
	token     string
	apiURL    string
	userAgent string

	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	mc      *metrics.Collector

	mu       sync.Mutex
	etag     string
	nextPoll time.Time
}

func New(cfg Config, mc *metrics.Collector, log logx.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		token:     cfg.Token,
		apiURL:    cfg.APIURL,
		userAgent: cfg.UserAgent,
		hc:        &http.Client{Timeout: cfg.Timeout},
		// Outbound smoothing across fetch + resolve calls. The poll cadence is
		// governed elsewhere; this only guards against request bursts.
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		log:     log,
		mc:      mc,
	}
}

// Fetch issues one conditional GET against the feed.
//
// Returns (nil, nil) on a 304 "no changes" response. On a 200 it returns every
// listed item, seen or not; deduplication is the caller's concern. Error
// values follow the taxonomy in errors.go.
func (c *Client) Fetch(ctx context.Context) ([]Notification, error) {
	c.mu.Lock()
	next := c.nextPoll
	etag := c.etag
	c.mu.Unlock()

	if now := time.Now(); now.Before(next) {
		return nil, &RateLimitedError{RetryAt: next}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	c.mc.RecordFetchLatency(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	c.mc.RecordHTTPStatus(resp.StatusCode)
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	// The poll-interval hint arrives on every response, including 304s and errors.
	c.recordPollInterval(resp)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.log.Trace("feed unchanged", logx.String("etag", etag))
		return nil, nil

	case resp.StatusCode == http.StatusOK:
		var items []Notification
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			return nil, &TransientError{Err: fmt.Errorf("decode feed: %w", err)}
		}
		if tag := resp.Header.Get("ETag"); tag != "" {
			c.mu.Lock()
			c.etag = tag
			c.mu.Unlock()
		}
		return items, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrAuth, readAPIMessage(resp.Body))

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if at, ok := rateLimitRetryAt(resp); ok {
			c.mu.Lock()
			if at.After(c.nextPoll) {
				c.nextPoll = at
			}
			c.mu.Unlock()
			return nil, &RateLimitedError{RetryAt: at}
		}
		// 403 without limit headers: token lacks scope or endpoint is blocked.
		return nil, fmt.Errorf("%w: %s", ErrAuth, readAPIMessage(resp.Body))

	default:
		return nil, &TransientError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
}

// ResolveHTMLURL exchanges an API subject URL for the browser-facing html_url
// via one authenticated detail fetch. Used on the activation path only.
func (c *Client) ResolveHTMLURL(ctx context.Context, apiURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve %s: unexpected status %s", apiURL, resp.Status)
	}

	var detail struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return "", fmt.Errorf("resolve %s: %w", apiURL, err)
	}
	if detail.HTMLURL == "" {
		return "", fmt.Errorf("resolve %s: no html_url in response", apiURL)
	}
	return detail.HTMLURL, nil
}

// NextAllowed reports the earliest time Fetch will issue a request.
func (c *Client) NextAllowed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextPoll
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	req.Header.Set("User-Agent", c.userAgent)
}

func (c *Client) recordPollInterval(resp *http.Response) {
	interval := defaultPollInterval
	if v := resp.Header.Get("X-Poll-Interval"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}
	c.mu.Lock()
	c.nextPoll = time.Now().Add(interval)
	c.mu.Unlock()
}

// rateLimitRetryAt extracts the wait deadline from a 403/429 response.
func rateLimitRetryAt(resp *http.Response) (time.Time, bool) {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Now().Add(time.Duration(secs) * time.Second), true
		}
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.Unix(unix, 0), true
			}
		}
	}
	return time.Time{}, false
}

func readAPIMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable response body"
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Message != "" {
		return body.Message
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response body"
	}
	return s
}

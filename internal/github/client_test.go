package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"ghnotifyd/pkg/logx"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Config{
		Token:  "test-token",
		APIURL: srv.URL + "/notifications",
	}, nil, logx.Nop())
}

// clearPollGate lets tests re-fetch immediately despite the poll-interval hint.
func clearPollGate(c *Client) {
	c.mu.Lock()
	c.nextPoll = time.Time{}
	c.mu.Unlock()
}

const feedBody = `[
  {"id":"1","reason":"mention","unread":true,
   "repository":{"id":7,"name":"widget","full_name":"acme/widget"},
   "subject":{"title":"Fix the flange","url":"https://api.example/issues/1",
              "latest_comment_url":"https://api.example/comments/9","type":"Issue"},
   "updated_at":"2024-05-01T10:00:00Z"}
]`

func TestFetchParsesFeed(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("ETag", `"tag-1"`)
		w.Header().Set("X-Poll-Interval", "60")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.ID != "1" || it.Reason != "mention" || it.Repository.FullName != "acme/widget" {
		t.Fatalf("unexpected item: %+v", it)
	}
	if got := it.TargetURL(); got != "https://api.example/comments/9" {
		t.Fatalf("TargetURL: expected latest comment url, got %q", got)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Fatalf("Accept = %q", gotAccept)
	}
}

func TestFetchConditionalNotModified(t *testing.T) {
	var reqs int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs++
		if reqs == 1 {
			w.Header().Set("ETag", `"tag-1"`)
			_, _ = w.Write([]byte(feedBody))
			return
		}
		if got := r.Header.Get("If-None-Match"); got != `"tag-1"` {
			t.Errorf("If-None-Match = %q, want tag-1", got)
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}

	clearPollGate(c)
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if items != nil {
		t.Fatalf("expected nil items on 304, got %v", items)
	}
	if reqs != 2 {
		t.Fatalf("expected 2 requests, got %d", reqs)
	}
}

func TestFetchHonorsPollIntervalLocally(t *testing.T) {
	var reqs int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs++
		w.Header().Set("X-Poll-Interval", "30")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	next := c.NextAllowed()
	if until := time.Until(next); until < 25*time.Second || until > 31*time.Second {
		t.Fatalf("NextAllowed %s away, want ~30s", until)
	}

	// A premature fetch is refused without touching the API.
	_, err := c.Fetch(context.Background())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if !rl.RetryAt.Equal(next) {
		t.Fatalf("RetryAt = %v, want %v", rl.RetryAt, next)
	}
	if reqs != 1 {
		t.Fatalf("expected 1 request, got %d", reqs)
	}
}

func TestFetchAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestFetchServerRateLimit(t *testing.T) {
	reset := time.Now().Add(2 * time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Fetch(context.Background())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.RetryAt.Unix() != reset {
		t.Fatalf("RetryAt = %v, want unix %d", rl.RetryAt, reset)
	}
	// The wait is also recorded as the local gate.
	if c.NextAllowed().Unix() != reset {
		t.Fatalf("NextAllowed = %v, want unix %d", c.NextAllowed(), reset)
	}
}

func TestFetchTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Fetch(context.Background())
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestResolveHTMLURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/issues/1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"html_url":"https://example.com/acme/widget/issues/1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	url, err := c.ResolveHTMLURL(context.Background(), srv.URL+"/issues/1")
	if err != nil {
		t.Fatalf("ResolveHTMLURL: %v", err)
	}
	if url != "https://example.com/acme/widget/issues/1" {
		t.Fatalf("unexpected url %q", url)
	}

	if _, err := c.ResolveHTMLURL(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for 404 detail response")
	}
}

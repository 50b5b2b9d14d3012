package bser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kyudori/er-scout/internal/platform/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		MaxRetries:  3,
		BackoffBase: time.Second,
		Breaker:     resilience.BreakerConfig{Enabled: false},
	})

	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return client, &sleeps
}

func TestClient_MissingCredentialFailsWithoutRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	client.apiKey = ""

	_, _, err := client.ResolveIdentity(context.Background(), "someone")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if calls.Load() != 0 {
		t.Fatal("unauthenticated request was sent upstream")
	}
}

func TestClient_SendsCredentialHeader(t *testing.T) {
	t.Parallel()

	var gotKey atomic.Value
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("x-api-key"))
		w.Write([]byte(`{"code":200,"user":{"userId":"abc","nickname":"someone"}}`))
	}))

	identity, ok, err := client.ResolveIdentity(context.Background(), "someone")
	if err != nil || !ok {
		t.Fatalf("ResolveIdentity = (%+v, %v, %v), want resolved", identity, ok, err)
	}
	if identity.UserID != "abc" {
		t.Fatalf("user id = %q, want abc", identity.UserID)
	}
	if gotKey.Load() != "test-key" {
		t.Fatalf("credential header = %v, want test-key", gotKey.Load())
	}
}

func TestClient_RateLimitHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"code":200,"user":{"userId":"abc"}}`))
	}))

	var retryReasons []string
	client.onRetry = func(reason string) { retryReasons = append(retryReasons, reason) }

	_, ok, err := client.ResolveIdentity(context.Background(), "someone")
	if err != nil || !ok {
		t.Fatalf("ResolveIdentity failed after retry: ok=%v err=%v", ok, err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Fatalf("sleeps = %v, want one 2s wait from Retry-After", *sleeps)
	}
	if len(retryReasons) != 1 || retryReasons[0] != "rate_limited" {
		t.Fatalf("retry reasons = %v, want [rate_limited]", retryReasons)
	}
}

func TestClient_ExhaustedRetriesSurfaceRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, _, err := client.ResolveIdentity(context.Background(), "someone")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("attempts = %d, want the full retry ceiling of 3", got)
	}
}

func TestClient_ServerErrorsRetryThenSurfaceTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))

	_, err := client.FetchRecentMatches(context.Background(), "abc", 20)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two backoff waits", *sleeps)
	}
	// Exponential schedule with jitter: second wait at least doubles the base.
	if (*sleeps)[0] < time.Second || (*sleeps)[1] < 2*time.Second {
		t.Fatalf("backoff schedule %v is not exponential from 1s", *sleeps)
	}
}

func TestClient_InnerFailureCodeIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":404,"message":"Not Found"}`))
	}))

	_, err := client.FetchRecentMatches(context.Background(), "abc", 20)
	if !errors.Is(err, ErrUpstreamLogic) {
		t.Fatalf("err = %v, want ErrUpstreamLogic", err)
	}
	var logicErr *LogicError
	if !errors.As(err, &logicErr) || logicErr.Code != 404 {
		t.Fatalf("err = %v, want LogicError with code 404", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("attempts = %d, logical failures must not retry", got)
	}
}

func TestClient_ResolveIdentity_UnknownNicknameIsNotAnError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":404,"message":"Not Found"}`))
	}))

	identity, ok, err := client.ResolveIdentity(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unknown nickname errored: %v", err)
	}
	if ok || identity.UserID != "" {
		t.Fatalf("identity = (%+v, %v), want unresolved", identity, ok)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestClient_FetchSeasonStats(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/user/stats/uid/abc/27/3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"code": 200,
			"userStats": [{
				"totalGames": 100,
				"totalWins": 20,
				"top3": 55,
				"top5": 70,
				"top7": 85,
				"averageRank": 3.8,
				"averageDamage": 15000,
				"characterStats": [{"characterCode": 14, "totalGames": 45}]
			}]
		}`))
	}))

	stats, ok, err := client.FetchSeasonStats(context.Background(), "abc", 27, 3)
	if err != nil || !ok {
		t.Fatalf("FetchSeasonStats = (ok=%v, err=%v), want stats", ok, err)
	}
	if stats.TotalGames != 100 || stats.Wins != 20 {
		t.Fatalf("stats = %+v, want 100 games and 20 wins", stats)
	}
	// Raw counts above 1 convert to rates against the season sample.
	if stats.Top3Rate != 0.55 || stats.Top5Rate != 0.70 || stats.Top7Rate != 0.85 {
		t.Fatalf("rates = %v/%v/%v, want 0.55/0.70/0.85", stats.Top3Rate, stats.Top5Rate, stats.Top7Rate)
	}
	if len(stats.CharacterUsage) != 1 || stats.CharacterUsage[0].GamesPlayed != 45 {
		t.Fatalf("usage = %+v, want one character with 45 games", stats.CharacterUsage)
	}
}

func TestClient_FetchSeasonStats_EmptyList(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":200,"userStats":[]}`))
	}))

	_, ok, err := client.FetchSeasonStats(context.Background(), "abc", 27, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("empty stats list reported ok")
	}
}

func TestClient_FetchRecentMatches_MalformedHistoryIsEmpty(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":200,"userGames":"not-a-list"}`))
	}))

	matches, err := client.FetchRecentMatches(context.Background(), "abc", 20)
	if err != nil {
		t.Fatalf("malformed history errored: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %+v, want empty", matches)
	}
}

func TestClient_FetchRecentMatches_TruncatesToLimit(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":200,"userGames":[
			{"gameId":1,"seasonId":27,"gameRank":1},
			{"gameId":2,"seasonId":27,"gameRank":2},
			{"gameId":3,"seasonId":27,"gameRank":3}
		]}`))
	}))

	matches, err := client.FetchRecentMatches(context.Background(), "abc", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 || matches[0].GameID != 1 || matches[1].GameID != 2 {
		t.Fatalf("matches = %+v, want the first two games", matches)
	}
}

func TestClient_BreakerShortCircuits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		Breaker: resilience.BreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})
	client.sleep = func(context.Context, time.Duration) error { return nil }

	for i := 0; i < 2; i++ {
		if _, err := client.FetchRecentMatches(context.Background(), "abc", 1); err == nil {
			t.Fatal("expected upstream failure")
		}
	}
	before := calls.Load()

	if _, err := client.FetchRecentMatches(context.Background(), "abc", 1); !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient from open breaker", err)
	}
	if calls.Load() != before {
		t.Fatal("open breaker still sent a request upstream")
	}
}

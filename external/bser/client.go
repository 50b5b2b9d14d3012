package bser

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/kyudori/er-scout/internal/domain/player"
	"github.com/kyudori/er-scout/internal/platform/logging"
	"github.com/kyudori/er-scout/internal/platform/resilience"
)

const (
	defaultBaseURL     = "https://open-api.bser.io"
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
	innerSuccessCode   = 200

	apiKeyHeader = "x-api-key"
)

type ClientConfig struct {
	HTTPClient  *http.Client
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	Logger      *logging.Logger
	Breaker     resilience.BreakerConfig

	// OnRetry is invoked once per scheduled retry with a coarse reason
	// label. Used for metrics; may be nil.
	OnRetry func(reason string)
}

// Client talks to the Eternal Return open API. All fetchers go through
// one retrying GET path with the credential attached; concurrent calls
// for the same URL are collapsed.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	backoffBase    time.Duration
	logger         *logging.Logger
	breaker        *resilience.Breaker
	breakerEnabled bool
	flight         resilience.SingleFlight
	onRetry        func(reason string)

	// sleep is swapped in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 6 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	breakerCfg := resilience.NormalizeBreakerConfig(cfg.Breaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxRetries:     maxRetries,
		backoffBase:    backoffBase,
		logger:         logger,
		breaker:        resilience.NewBreaker(breakerCfg),
		breakerEnabled: breakerCfg.Enabled,
		onRetry:        cfg.OnRetry,
		sleep:          sleepContext,
	}
}

// ResolveIdentity maps a nickname to its stable account id. The bool
// result is false when the response carries no usable user object.
func (c *Client) ResolveIdentity(ctx context.Context, nickname string) (player.Identity, bool, error) {
	raw, err := c.getJSON(ctx, "/v1/user/nickname", map[string]string{"query": nickname})
	if err != nil {
		// An inner 404 means the nickname does not exist, not a fault.
		var logicErr *LogicError
		if crerr.As(err, &logicErr) && logicErr.Code == http.StatusNotFound {
			return player.Identity{}, false, nil
		}
		return player.Identity{}, false, err
	}
	identity, ok := parseIdentity(nickname, Normalize(raw), raw)
	return identity, ok, nil
}

// FetchRecentMatches returns up to limit newest matches for the account.
// A malformed match list degrades to an empty slice, never an error.
func (c *Client) FetchRecentMatches(ctx context.Context, id string, limit int) ([]player.Match, error) {
	raw, err := c.getJSON(ctx, "/v1/user/games/uid/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return parseMatches(Normalize(raw), raw, limit), nil
}

// FetchSeasonStats reads the first element of the season stats list.
// The bool result is false when the list is absent or empty.
func (c *Client) FetchSeasonStats(ctx context.Context, id string, seasonID int64, mode int) (player.SeasonStats, bool, error) {
	path := fmt.Sprintf("/v2/user/stats/uid/%s/%d/%d", url.PathEscape(id), seasonID, mode)
	raw, err := c.getJSON(ctx, path, nil)
	if err != nil {
		return player.SeasonStats{}, false, err
	}
	stats, ok := parseSeasonStats(Normalize(raw), raw)
	return stats, ok, nil
}

// FetchCurrentSeason asks the upstream for the running season id. This
// is strictly a fallback source; the primary is inference from match
// history.
func (c *Client) FetchCurrentSeason(ctx context.Context) (int64, error) {
	raw, err := c.getJSON(ctx, "/v1/game/season", nil)
	if err != nil {
		return 0, err
	}
	payload := Normalize(raw)
	if season := getInt64(payload, "seasonId"); season > 0 {
		return season, nil
	}
	// Some versions return a season list instead of a scalar.
	for _, rawRow := range sliceValue(payload, "seasonList") {
		row, ok := rawRow.(map[string]any)
		if !ok {
			continue
		}
		if getInt64(row, "isCurrent") == 1 {
			return getInt64(row, "seasonID"), nil
		}
	}
	return 0, crerr.Wrap(ErrTransient, "no current season in payload")
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	if c.breakerEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "bser circuit breaker rejected request", "state", c.breaker.State())
			return nil, crerr.Wrap(ErrTransient, "stats provider is temporarily unavailable")
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.breakerEnabled {
			if reqErr != nil && !crerr.Is(reqErr, ErrUpstreamLogic) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	payload, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}
	return payload, nil
}

// executeRequest runs the retry loop. Non-2xx statuses retry with
// exponential backoff; 429 and 403 honor a numeric Retry-After header
// when present. A 200 with a failing inner code returns immediately.
func (c *Client) executeRequest(ctx context.Context, fullURL string) (map[string]any, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			reason := retryReason(lastErr)
			if c.onRetry != nil {
				c.onRetry(reason)
			}
			c.logger.DebugContext(ctx, "bser retrying request", "attempt", attempt, "reason", reason)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set(apiKeyHeader, c.apiKey)

		wait := c.backoff(attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = crerr.Wrapf(ErrTransient, "send request: %s", sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = crerr.Wrapf(ErrTransient, "read response body: %v", readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				var payload map[string]any
				if err := sonic.Unmarshal(raw, &payload); err != nil {
					lastErr = crerr.Wrapf(ErrTransient, "decode payload: %v", err)
					break
				}
				if code, present := innerCode(payload); present && code != innerSuccessCode {
					return nil, &LogicError{Code: code, Message: getString(payload, "message")}
				}
				return payload, nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
				lastErr = crerr.Wrapf(ErrRateLimited, "status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
				if after, ok := retryAfter(resp.Header); ok {
					wait = after
				}
			default:
				lastErr = crerr.Wrapf(ErrTransient, "status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries-1 {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = crerr.Wrap(ErrTransient, "request failed")
	}
	c.logger.WarnContext(ctx, "bser request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

// backoff returns backoffBase * 2^attempt with up to 10% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	base := c.backoffBase << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(base)/10 + 1))
	return base + jitter
}

func innerCode(payload map[string]any) (int, bool) {
	if payload == nil {
		return 0, false
	}
	raw, ok := payload["code"]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	default:
		return 0, false
	}
}

func retryAfter(header http.Header) (time.Duration, bool) {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func retryReason(err error) string {
	if crerr.Is(err, ErrRateLimited) {
		return "rate_limited"
	}
	return "transient"
}

func sanitizeSensitiveText(value, secret string) string {
	value = strings.TrimSpace(value)
	if value == "" || secret == "" {
		return value
	}
	return strings.ReplaceAll(value, secret, "REDACTED")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

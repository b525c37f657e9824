// Package forwarder sends translated requests upstream and relays the
// response back, owning retries and header policy. Grounded on the
// teacher's internal/errors.RetryWithConfig backoff shape and
// internal/handlers/proxy.go's provider call/error-mapping flow,
// generalized to a single flat HTTP client (spec.md §5).
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/orchestre-dev/anthropic-bridge/internal/bridgeerr"
	"github.com/orchestre-dev/anthropic-bridge/internal/config"
)

// RetryPolicy is the bridge's fixed backoff schedule (spec.md §5.2):
// base 500ms, factor 2, +/-20% jitter, capped at 8s, at most 4 attempts
// total.
var RetryPolicy = struct {
	BaseDelay   time.Duration
	Factor      float64
	JitterFrac  float64
	MaxDelay    time.Duration
	MaxAttempts int
}{
	BaseDelay:   500 * time.Millisecond,
	Factor:      2.0,
	JitterFrac:  0.2,
	MaxDelay:    8 * time.Second,
	MaxAttempts: 4,
}

// Forwarder issues upstream HTTP requests for one configured provider.
type Forwarder struct {
	client   *http.Client
	provider config.ProviderConfig
	apiKey   string
}

// New builds a Forwarder sharing one immutable *http.Client across all
// requests (spec.md §5: one client, no per-request connection setup).
func New(client *http.Client, provider config.ProviderConfig, apiKey string) *Forwarder {
	return &Forwarder{client: client, provider: provider, apiKey: apiKey}
}

// Result is a completed (non-streaming) upstream call: the raw JSON
// body plus the status code it arrived with.
type Result struct {
	StatusCode int
	Body       []byte
}

// Do POSTs body (either translated OpenAI JSON or a passthrough
// Anthropic JSON body) to the provider's chat endpoint, retrying per
// RetryPolicy on connect failures and 429/5xx responses (spec.md §5.2).
// It never retries once any response bytes have been read by the
// caller, which is why streaming uses DoStream instead.
func (f *Forwarder) Do(ctx context.Context, path string, body []byte, clientReq *http.Request) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= RetryPolicy.MaxAttempts; attempt++ {
		resp, err := f.send(ctx, path, body, clientReq)
		if err != nil {
			lastErr = bridgeerr.Wrap(err, bridgeerr.KindUpstreamConnect, "connecting to upstream")
			if !f.waitForRetry(ctx, attempt, "") {
				return nil, lastErr
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = bridgeerr.Wrap(readErr, bridgeerr.KindUpstreamConnect, "reading upstream response")
			if !f.waitForRetry(ctx, attempt, "") {
				return nil, lastErr
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			lastErr = bridgeerr.Newf(bridgeerr.KindUpstreamStatus, "upstream returned status %d", resp.StatusCode).WithStatus(resp.StatusCode)
			if !f.waitForRetry(ctx, attempt, resp.Header.Get("Retry-After")) {
				return &Result{StatusCode: resp.StatusCode, Body: respBody}, nil
			}
			continue
		}

		return &Result{StatusCode: resp.StatusCode, Body: respBody}, nil
	}

	return nil, lastErr
}

// DoStream opens the upstream connection and hands back the raw
// response for the caller to relay as SSE. Retries only apply to
// establishing the connection (spec.md §5.2: never retry after any
// streamed bytes reach the client); once headers are received the
// caller owns the body, and a mid-stream failure aborts the relay
// instead of triggering a retry.
func (f *Forwarder) DoStream(ctx context.Context, path string, body []byte, clientReq *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= RetryPolicy.MaxAttempts; attempt++ {
		resp, err := f.send(ctx, path, body, clientReq)
		if err != nil {
			lastErr = bridgeerr.Wrap(err, bridgeerr.KindUpstreamConnect, "connecting to upstream")
			if !f.waitForRetry(ctx, attempt, "") {
				return nil, lastErr
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = bridgeerr.Newf(bridgeerr.KindUpstreamStatus, "upstream returned status %d", resp.StatusCode).WithStatus(resp.StatusCode)
			if !f.waitForRetry(ctx, attempt, resp.Header.Get("Retry-After")) {
				return nil, lastErr
			}
			_ = respBody
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (f *Forwarder) send(ctx context.Context, path string, body []byte, clientReq *http.Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.provider.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyHeaderPolicy(req, f.provider, f.apiKey)
	if clientReq != nil {
		CopyClientHeaders(req, clientReq)
	}
	return f.client.Do(req)
}

// applyHeaderPolicy sets the JSON content type and injects the
// provider's own auth on the freshly built outgoing request. Copying the
// client's Accept/User-Agent/X-Request-Id is done by CopyClientHeaders
// (spec.md §5.3).
func applyHeaderPolicy(req *http.Request, provider config.ProviderConfig, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		switch provider.Format {
		case "anthropic":
			req.Header.Set("x-api-key", apiKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		default:
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
}

// CopyClientHeaders preserves the subset of inbound request headers
// spec.md §5.3 calls out (accept, user-agent, x-request-id) onto the
// outbound request, after applyHeaderPolicy has set provider auth. The
// outbound request is always freshly built (see send), so hop-by-hop
// and client auth headers are stripped simply by never being copied.
func CopyClientHeaders(out *http.Request, in *http.Request) {
	for _, h := range []string{"Accept", "User-Agent", "X-Request-Id"} {
		if v := in.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// waitForRetry sleeps the backoff delay for this attempt and reports
// whether another attempt should be made. retryAfter, if non-empty, is
// honored as a floor on the delay (spec.md §5.2).
func (f *Forwarder) waitForRetry(ctx context.Context, attempt int, retryAfter string) bool {
	if attempt >= RetryPolicy.MaxAttempts {
		return false
	}

	delay := backoffDelay(attempt)
	if d, ok := parseRetryAfter(retryAfter); ok && d > delay {
		delay = d
	}
	if delay > RetryPolicy.MaxDelay {
		delay = RetryPolicy.MaxDelay
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// parseRetryAfter accepts either form of an HTTP Retry-After header: an
// integer number of seconds, or an HTTP-date (spec.md §4.5.1). An empty
// or unparseable value reports ok=false and the caller falls back to the
// computed backoff delay.
func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// backoffDelay computes the jittered exponential delay for the given
// attempt (1-indexed), per RetryPolicy.
func backoffDelay(attempt int) time.Duration {
	base := float64(RetryPolicy.BaseDelay)
	for i := 1; i < attempt; i++ {
		base *= RetryPolicy.Factor
	}
	if base > float64(RetryPolicy.MaxDelay) {
		base = float64(RetryPolicy.MaxDelay)
	}
	jitter := 1 + (rand.Float64()*2-1)*RetryPolicy.JitterFrac
	d := time.Duration(base * jitter)
	if d > RetryPolicy.MaxDelay {
		d = RetryPolicy.MaxDelay
	}
	return d
}

// UpstreamErrorBody best-effort extracts a human-readable message from
// a non-2xx upstream JSON error body, falling back to the raw status
// text when the body isn't the expected shape.
func UpstreamErrorBody(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}

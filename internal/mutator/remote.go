// SPDX-License-Identifier: MIT

// Package mutator holds the check-in backends the engine can call: a
// remote HTTP service and a Redis lease guard that serialises doors
// sharing one backend.
package mutator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/netutil"
	"github.com/ManuGH/turnstile/internal/resilience"
	"github.com/ManuGH/turnstile/internal/verify"
)

// ErrUpstreamUnavailable wraps transport failures and 5xx answers.
var ErrUpstreamUnavailable = errors.New("check-in service unavailable")

const (
	defaultTimeout        = 8 * time.Second
	defaultRateLimit      = 5
	defaultRateLimitBurst = 10
	defaultBreakerFails   = 3
	defaultBreakerReset   = 30 * time.Second
	maxBodyBytes          = 64 << 10
)

// Options configures a Remote mutator.
type Options struct {
	Timeout        time.Duration
	Token          string
	UserAgent      string
	Door           string
	AllowInsecure  bool
	RateLimit      rate.Limit
	RateLimitBurst int
	BreakerFails   int
	BreakerReset   time.Duration
	Clock          clock.Clock
	// Transport overrides the base round tripper; tracing wraps it.
	Transport http.RoundTripper
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerFails <= 0 {
		opts.BreakerFails = defaultBreakerFails
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "turnstile"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Transport == nil {
		opts.Transport = &http.Transport{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: opts.Timeout,
			TLSHandshakeTimeout:   5 * time.Second,
		}
	}
	return opts
}

// Remote calls an HTTP check-in service:
//
//	POST <endpoint>/checkins {"ticketId": "...", "door": "..."}
//
// 2xx and 4xx answers carrying {"success", "message"} are results; other
// answers and transport errors are returned as errors.
type Remote struct {
	endpoint *url.URL
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	token    string
	agent    string
	door     string
}

// NewRemote validates endpoint and builds the client.
func NewRemote(endpoint string, opts Options) (*Remote, error) {
	u, err := netutil.ParseEndpoint(endpoint, opts.AllowInsecure)
	if err != nil {
		return nil, fmt.Errorf("mutator endpoint: %w", err)
	}
	nopts := normalizeOptions(opts)
	return &Remote{
		endpoint: u,
		client: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: otelhttp.NewTransport(nopts.Transport),
		},
		limiter: rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("mutator", nopts.BreakerFails, nopts.BreakerReset,
			resilience.WithClock(nopts.Clock)),
		token: nopts.Token,
		agent: nopts.UserAgent,
		door:  nopts.Door,
	}, nil
}

// Endpoint returns the sanitized service URL.
func (r *Remote) Endpoint() string { return netutil.SanitizeURL(r.endpoint.String()) }

// BreakerState exposes the circuit state for health reporting.
func (r *Remote) BreakerState() resilience.State { return r.breaker.State() }

type checkInRequest struct {
	TicketID string `json:"ticketId"`
	Door     string `json:"door,omitempty"`
}

type checkInResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckIn implements verify.Mutator. Requests are never retried: a
// repeated POST could turn an admit into a duplicate.
func (r *Remote) CheckIn(ctx context.Context, ticketID string) (verify.Result, error) {
	var res verify.Result
	err := r.breaker.Execute(func() error {
		var err error
		res, err = r.post(ctx, ticketID)
		return err
	})
	return res, err
}

func (r *Remote) post(ctx context.Context, ticketID string) (verify.Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return verify.Result{}, err
	}

	body, err := json.Marshal(checkInRequest{TicketID: ticketID, Door: r.door})
	if err != nil {
		return verify.Result{}, err
	}
	target := r.endpoint.JoinPath("checkins")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return verify.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.agent)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return verify.Result{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return verify.Result{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out checkInResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return verify.Result{Message: fmt.Sprintf("check-in service answered %d", resp.StatusCode)}, nil
		}
		return verify.Result{}, fmt.Errorf("decode check-in response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		out.Success = false
	}
	return verify.Result{Success: out.Success, Message: out.Message}, nil
}

// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/realtime-relay/pkg/auth"
	"github.com/go-core-stack/realtime-relay/pkg/config"
)

// TargetParam is the query parameter carrying the true upstream URL.
const TargetParam = "u"

// maxResponseBody caps how much of an upstream reply is buffered.
const maxResponseBody = 4 << 20

// Client posts requests to the intermediary forward endpoint.
type Client struct {
	// endpoint is the intermediary forwarding URL, without the target query.
	endpoint *url.URL
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// logger emits structured logs for observability.
	logger zerolog.Logger
}

// Response is a fully buffered reply relayed by the intermediary.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// New constructs a Client backed by an http.Client configured with sensible
// connection pooling defaults and the provided runtime configuration.
func New(cfg config.Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	return &Client{
		endpoint: cloneURL(cfg.ForwardURL),
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		logger: log.With().Str("component", "forward").Logger(),
	}
}

// PostJSON sends body to target through the intermediary, authenticated with
// the given forward token.
func (c *Client) PostJSON(ctx context.Context, target *url.URL, token string, body []byte) (*Response, error) {
	requestURL := HTTPURL(c.endpoint, target)
	event := c.logger.With().
		Str("target", target.String()).
		Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth.AttachBearer(req.Header, token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, &httpError{Status: http.StatusGatewayTimeout, Err: err}
		default:
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, &httpError{Status: http.StatusGatewayTimeout, Err: err}
			}
		}
		return nil, fmt.Errorf("perform forward request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().
				Err(closeErr).
				Msg("close forward response body failed")
		}
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read forward response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		event.Warn().
			Int("status", resp.StatusCode).
			Bytes("upstream_body", payload).
			Dur("duration", time.Since(start)).
			Msg("upstream returned error")
	} else {
		event.Debug().
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("forward request completed")
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   payload,
	}, nil
}

// HTTPURL builds the forwarding URL for a plain HTTP target.
func HTTPURL(endpoint, target *url.URL) *url.URL {
	u := cloneURL(endpoint)
	q := u.Query()
	q.Set(TargetParam, target.String())
	u.RawQuery = q.Encode()
	return u
}

// WebSocketURL builds the forwarding URL for a WebSocket target, switching
// the endpoint scheme to ws or wss.
func WebSocketURL(endpoint, target *url.URL) *url.URL {
	u := HTTPURL(endpoint, target)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u
}

// StatusCode picks the HTTP status to report for err.
func StatusCode(err error) int {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return http.StatusInternalServerError
}

// cloneURL makes a shallow copy of the provided URL pointer.
func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	clone := *u
	return &clone
}

// httpError wraps a status code with the underlying error from the round trip.
type httpError struct {
	Status int   // Status preserves the HTTP status to emit downstream.
	Err    error // Err retains the original cause for logging.
}

// Error implements the error interface for httpError.
func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *httpError) Unwrap() error {
	return e.Err
}

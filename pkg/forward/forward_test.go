// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package forward

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-core-stack/realtime-relay/pkg/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	forwardURL, err := url.Parse("http://localhost:3000/v1/forward")
	if err != nil {
		t.Fatalf("parse forward url: %v", err)
	}
	return config.Config{
		ForwardURL:     forwardURL,
		RequestTimeout: time.Second,
	}
}

func TestClientPostJSONForwardsWithToken(t *testing.T) {
	var (
		receivedMethod string
		receivedURL    *url.URL
		receivedBody   []byte
		receivedHeader http.Header
	)

	c := New(testConfig(t))
	c.client.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		receivedMethod = req.Method
		receivedURL = req.URL
		receivedBody = body
		receivedHeader = req.Header.Clone()

		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	})

	target, _ := url.Parse("https://api.openai.com/v1/chat/completions")
	resp, err := c.PostJSON(context.Background(), target, "tok", []byte(`{"model":"m"}`))
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if receivedMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", receivedMethod)
	}
	if receivedURL.Path != "/v1/forward" {
		t.Fatalf("unexpected path: %s", receivedURL.Path)
	}
	if got := receivedURL.Query().Get(TargetParam); got != target.String() {
		t.Fatalf("target query mismatch: %q", got)
	}
	if string(receivedBody) != `{"model":"m"}` {
		t.Fatalf("unexpected upstream body: %s", receivedBody)
	}
	if got := receivedHeader.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("authorization header mismatch: %q", got)
	}
	if got := receivedHeader.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type mismatch: %q", got)
	}
}

func TestClientPostJSONKeepsErrorBodies(t *testing.T) {
	c := New(testConfig(t))
	c.client.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("bad token")),
		}, nil
	})

	target, _ := url.Parse("https://api.openai.com/v1/chat/completions")
	resp, err := c.PostJSON(context.Background(), target, "tok", nil)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Status)
	}
	if string(resp.Body) != "bad token" {
		t.Fatalf("unexpected body: %q", resp.Body)
	}
}

func TestClientPostJSONMapsTimeouts(t *testing.T) {
	c := New(testConfig(t))
	c.client.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})

	target, _ := url.Parse("https://api.openai.com/v1/chat/completions")
	_, err := c.PostJSON(context.Background(), target, "tok", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := StatusCode(err); got != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", got)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}

func TestStatusCodeDefault(t *testing.T) {
	if got := StatusCode(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestWebSocketURL(t *testing.T) {
	target, _ := url.Parse("wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17")

	cases := map[string]string{
		"http://localhost:3000/v1/forward":   "ws://localhost:3000/v1/forward?u=wss%3A%2F%2Fapi.openai.com%2Fv1%2Frealtime%3Fmodel%3Dgpt-4o-realtime-preview-2024-12-17",
		"https://forward.example/v1/forward": "wss://forward.example/v1/forward?u=wss%3A%2F%2Fapi.openai.com%2Fv1%2Frealtime%3Fmodel%3Dgpt-4o-realtime-preview-2024-12-17",
	}
	for raw, want := range cases {
		endpoint, _ := url.Parse(raw)
		if got := WebSocketURL(endpoint, target).String(); got != want {
			t.Errorf("WebSocketURL(%s): got %s, want %s", raw, got, want)
		}
		if endpoint.RawQuery != "" {
			t.Errorf("endpoint mutated: %s", endpoint)
		}
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/go-core-stack/realtime-relay/pkg/config"
)

func TestCredentialsEncode(t *testing.T) {
	creds := NewCredentials(config.Config{
		SecretKey:        "sk",
		ConnectionSecret: "conn",
		ProductSecret:    "prod",
		ProviderKey:      "pk",
	})

	token, err := creds.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := "eyJzZWNyZXRfa2V5Ijoic2siLCJjb25uZWN0aW9uX3NlY3JldCI6ImNvbm4iLCJwcm9kdWN0X3NlY3JldCI6InByb2QiLCJwcm92aWRlcl9rZXkiOiJwayJ9"
	if token != want {
		t.Fatalf("token mismatch: got %q, want %q", token, want)
	}

	again, err := creds.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if again != token {
		t.Fatalf("encoding is not deterministic: %q vs %q", again, token)
	}
}

func TestForwardTokenRoundTrip(t *testing.T) {
	bundles := []Credentials{
		{SecretKey: "sk", ConnectionSecret: "conn", ProductSecret: "prod", ProviderKey: "pk"},
		{},
		{SecretKey: `quo"te`, ConnectionSecret: "ünïcode", ProductSecret: "a+b/c=", ProviderKey: "line\nbreak"},
	}

	for _, want := range bundles {
		token, err := want.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := DecodeForwardToken(token)
		if err != nil {
			t.Fatalf("DecodeForwardToken: %v", err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeForwardTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeForwardToken("%%%"); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := DecodeForwardToken("bm90IGpzb24="); err == nil {
		t.Fatal("expected json error")
	}
}

func TestCredentialsLogRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	creds := Credentials{SecretKey: "top-secret", ConnectionSecret: "conn", ProductSecret: "prod", ProviderKey: "sk-provider"}
	logger.Info().Object("token_payload", creds).Msg("token")

	out := buf.String()
	if strings.Contains(out, "top-secret") || strings.Contains(out, "sk-provider") {
		t.Fatalf("secrets leaked into log output: %s", out)
	}
	if !strings.Contains(out, `"connection_secret":"conn"`) {
		t.Fatalf("expected connection secret in output: %s", out)
	}
}

func TestTokenPreview(t *testing.T) {
	if got := TokenPreview("abcdefghijklmnopqrstuvwxyz"); got != "abcdefghijklmnopqrst..." {
		t.Errorf("long preview: got %q", got)
	}
	if got := TokenPreview("short"); got != "short..." {
		t.Errorf("short preview: got %q", got)
	}
}

func TestAttachHeaders(t *testing.T) {
	h := make(http.Header)
	AttachBearer(h, "tok")
	AttachRealtimeBeta(h)

	if got := h.Get(HeaderAuthorization); got != "Bearer tok" {
		t.Errorf("authorization: got %q", got)
	}
	if got := h.Get(HeaderBeta); got != "realtime=v1" {
		t.Errorf("beta: got %q", got)
	}
}

// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/go-core-stack/realtime-relay/pkg/config"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderBeta          = "OpenAI-Beta"
	RealtimeBetaValue   = "realtime=v1"

	redacted       = "***"
	previewLength  = 20
	previewEllipse = "..."
)

// Credentials is the bundle the intermediary forward proxy expects inside
// its bearer token. The proxy decodes it and attaches the provider key to
// the upstream request itself.
type Credentials struct {
	SecretKey        string `json:"secret_key"`
	ConnectionSecret string `json:"connection_secret"`
	ProductSecret    string `json:"product_secret"`
	ProviderKey      string `json:"provider_key"`
}

// NewCredentials builds the bundle from process configuration.
func NewCredentials(cfg config.Config) Credentials {
	return Credentials{
		SecretKey:        cfg.SecretKey,
		ConnectionSecret: cfg.ConnectionSecret,
		ProductSecret:    cfg.ProductSecret,
		ProviderKey:      cfg.ProviderKey,
	}
}

// Encode serializes the bundle as JSON and wraps it in standard base64.
// The result carries no signature; the intermediary is trusted to decode it.
func (c Credentials) Encode() (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal forward token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeForwardToken reverses Encode.
func DecodeForwardToken(token string) (Credentials, error) {
	payload, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode forward token: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(payload, &c); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal forward token: %w", err)
	}
	return c, nil
}

// MarshalZerologObject renders the bundle with the session secret and the
// provider key masked.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("secret_key", redacted).
		Str("connection_secret", c.ConnectionSecret).
		Str("product_secret", c.ProductSecret).
		Str("provider_key", redacted)
}

// TokenPreview shortens a token for log output.
func TokenPreview(token string) string {
	if len(token) <= previewLength {
		return token + previewEllipse
	}
	return token[:previewLength] + previewEllipse
}

// AttachBearer sets the Authorization header to a bearer credential.
func AttachBearer(h http.Header, token string) {
	h.Set(HeaderAuthorization, "Bearer "+token)
}

// AttachRealtimeBeta declares the realtime protocol beta flag.
func AttachRealtimeBeta(h http.Header) {
	h.Set(HeaderBeta, RealtimeBetaValue)
}

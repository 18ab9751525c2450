// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envPort                   = "PORT"
	envListenAddr             = "RELAY_LISTEN_ADDR"
	envSecretKey              = "LAVA"
	envConnectionSecret       = "LAVA_CONNECTION_SECRET"
	envProductSecret          = "LAVA_PRODUCT_SECRET"
	envProviderKey            = "OPENAI_API_KEY"
	envForwardURL             = "RELAY_FORWARD_URL"
	envRealtimeURL            = "RELAY_REALTIME_URL"
	envChatURL                = "RELAY_CHAT_URL"
	envChatModel              = "RELAY_CHAT_MODEL"
	envInstructions           = "RELAY_INSTRUCTIONS"
	envHandshakeTimeout       = "RELAY_HANDSHAKE_TIMEOUT"
	envSessionTimeout         = "RELAY_SESSION_TIMEOUT"
	envCloseTimeout           = "RELAY_CLOSE_TIMEOUT"
	envRequestTimeout         = "RELAY_REQUEST_TIMEOUT"
	envInsecureSkipVerify     = "RELAY_UPSTREAM_INSECURE"
	envLogLevel               = "RELAY_LOG_LEVEL"
	envServerReadTimeout      = "RELAY_SERVER_READ_TIMEOUT"
	envServerWriteTimeout     = "RELAY_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout      = "RELAY_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "RELAY_GRACEFUL_SHUTDOWN"
	defaultPort               = "4000"
	defaultForwardURL         = "http://localhost:3000/v1/forward"
	defaultRealtimeURL        = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17"
	defaultChatURL            = "https://api.openai.com/v1/chat/completions"
	defaultChatModel          = "gpt-4o-mini"
	defaultInstructions       = "You are a helpful assistant. Respond concisely."
	defaultHandshakeTimeout   = 10 * time.Second
	defaultSessionTimeout     = 5 * time.Minute
	defaultCloseTimeout       = 5 * time.Second
	defaultRequestTimeout     = 60 * time.Second
	defaultLogLevel           = "info"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 0 // event streams are bounded by the session timeout instead
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
	placeholderPrefix         = "your_"
)

// Config captures runtime settings for the relay. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	ListenAddr string

	// Credentials forwarded to the intermediary inside the forward token.
	SecretKey        string
	ConnectionSecret string
	ProductSecret    string
	ProviderKey      string

	ForwardURL   *url.URL
	RealtimeURL  *url.URL
	ChatURL      *url.URL
	ChatModel    string
	Instructions string

	HandshakeTimeout   time.Duration
	SessionTimeout     time.Duration
	CloseTimeout       time.Duration
	RequestTimeout     time.Duration
	InsecureSkipVerify bool

	LogLevel                string
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// Load reads configuration from environment variables. Missing secrets are
// not an error here; callers report them through MissingSecrets.
func Load() (Config, error) {
	forwardURL, err := getURL(envForwardURL, defaultForwardURL)
	if err != nil {
		return Config{}, err
	}
	realtimeURL, err := getURL(envRealtimeURL, defaultRealtimeURL)
	if err != nil {
		return Config{}, err
	}
	chatURL, err := getURL(envChatURL, defaultChatURL)
	if err != nil {
		return Config{}, err
	}

	listenAddr := getString(envListenAddr, "")
	if listenAddr == "" {
		listenAddr = ":" + getString(envPort, defaultPort)
	}

	cfg := Config{
		ListenAddr:              listenAddr,
		SecretKey:               strings.TrimSpace(os.Getenv(envSecretKey)),
		ConnectionSecret:        strings.TrimSpace(os.Getenv(envConnectionSecret)),
		ProductSecret:           strings.TrimSpace(os.Getenv(envProductSecret)),
		ProviderKey:             strings.TrimSpace(os.Getenv(envProviderKey)),
		ForwardURL:              forwardURL,
		RealtimeURL:             realtimeURL,
		ChatURL:                 chatURL,
		ChatModel:               getString(envChatModel, defaultChatModel),
		Instructions:            getString(envInstructions, defaultInstructions),
		HandshakeTimeout:        getDuration(envHandshakeTimeout, defaultHandshakeTimeout),
		SessionTimeout:          getDuration(envSessionTimeout, defaultSessionTimeout),
		CloseTimeout:            getDuration(envCloseTimeout, defaultCloseTimeout),
		RequestTimeout:          getDuration(envRequestTimeout, defaultRequestTimeout),
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, defaultServerWriteTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}

	return cfg, nil
}

// MissingSecrets returns the environment variable names whose values are
// empty or still hold a "your_..." placeholder.
func (c Config) MissingSecrets() []string {
	secrets := []struct {
		name  string
		value string
	}{
		{envSecretKey, c.SecretKey},
		{envConnectionSecret, c.ConnectionSecret},
		{envProductSecret, c.ProductSecret},
		{envProviderKey, c.ProviderKey},
	}

	var missing []string
	for _, s := range secrets {
		if s.value == "" || strings.HasPrefix(s.value, placeholderPrefix) {
			missing = append(missing, s.name)
		}
	}
	return missing
}

func getURL(key, fallback string) (*url.URL, error) {
	raw := getString(key, fallback)
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("%s must be absolute (scheme://host)", key)
	}
	return parsed, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

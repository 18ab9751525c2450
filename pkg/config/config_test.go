// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{envPort, envListenAddr, envForwardURL, envRealtimeURL, envChatURL, envSessionTimeout} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":4000" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if got := cfg.ForwardURL.String(); got != defaultForwardURL {
		t.Errorf("forward url: got %q", got)
	}
	if got := cfg.RealtimeURL.String(); got != defaultRealtimeURL {
		t.Errorf("realtime url: got %q", got)
	}
	if cfg.SessionTimeout != defaultSessionTimeout {
		t.Errorf("session timeout: got %s", cfg.SessionTimeout)
	}
	if cfg.Instructions != defaultInstructions {
		t.Errorf("instructions: got %q", cfg.Instructions)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(envPort, "5050")
	t.Setenv(envSessionTimeout, "90s")
	t.Setenv(envCloseTimeout, "not-a-duration")
	t.Setenv(envLogLevel, "DEBUG")
	t.Setenv(envForwardURL, "http://forward.internal:3000/v1/forward")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":5050" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.SessionTimeout != 90*time.Second {
		t.Errorf("session timeout: got %s", cfg.SessionTimeout)
	}
	if cfg.CloseTimeout != defaultCloseTimeout {
		t.Errorf("invalid duration should fall back, got %s", cfg.CloseTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q", cfg.LogLevel)
	}
	if cfg.ForwardURL.Host != "forward.internal:3000" {
		t.Errorf("forward host: got %q", cfg.ForwardURL.Host)
	}
}

func TestLoadRejectsRelativeURL(t *testing.T) {
	t.Setenv(envRealtimeURL, "/v1/realtime")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for relative realtime url")
	}
}

func TestMissingSecrets(t *testing.T) {
	cfg := Config{
		SecretKey:        "sk-live",
		ConnectionSecret: "",
		ProductSecret:    "your_product_secret",
		ProviderKey:      "provider",
	}

	got := cfg.MissingSecrets()
	want := []string{envConnectionSecret, envProductSecret}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing secrets: got %v, want %v", got, want)
	}

	complete := Config{SecretKey: "a", ConnectionSecret: "b", ProductSecret: "c", ProviderKey: "d"}
	if missing := complete.MissingSecrets(); len(missing) != 0 {
		t.Fatalf("expected no missing secrets, got %v", missing)
	}
}

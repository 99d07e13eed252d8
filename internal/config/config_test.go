package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Currency)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Errorf("expected 10s gateway timeout, got %s", cfg.GatewayTimeout)
	}
	if cfg.IntentExpiryWindow != 24*time.Hour {
		t.Errorf("expected 24h expiry window, got %s", cfg.IntentExpiryWindow)
	}
	if cfg.AllowFakePayments {
		t.Error("fake payments must default to disabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("CHECKOUT_MAX_PER_ACCOUNT", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pridehealth.org, https://staging.pridehealth.org")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.Currency != "EUR" {
		t.Errorf("expected currency normalised to EUR, got %s", cfg.Currency)
	}
	if cfg.GatewayTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %s", cfg.GatewayTimeout)
	}
	if cfg.CheckoutMaxPerAccount != 2 {
		t.Errorf("expected max 2, got %d", cfg.CheckoutMaxPerAccount)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://staging.pridehealth.org" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CHECKOUT_MAX_PER_ACCOUNT", "lots")
	t.Setenv("GATEWAY_TIMEOUT", "soon")
	t.Setenv("ALLOW_FAKE_PAYMENTS", "yep")

	cfg := Load()

	if cfg.CheckoutMaxPerAccount != 5 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.CheckoutMaxPerAccount)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Errorf("malformed duration should fall back to default, got %s", cfg.GatewayTimeout)
	}
	if cfg.AllowFakePayments {
		t.Error("malformed bool should fall back to default")
	}
}

package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("DOMAIN", "backend.local")
	t.Setenv("PORT", "10443")
	t.Setenv("API_ID", "12345")
	t.Setenv("API_HASH", "hash")
	t.Setenv("PUBLIC_KEY", "-----BEGIN RSA PUBLIC KEY-----")
	t.Setenv("ADMIN_API_URL", "http://backend.local:8080/admin/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DCPort != 10443 || cfg.APIID != 12345 {
		t.Fatalf("numeric fields wrong: %+v", cfg)
	}
	if cfg.AdminAPIURL != "http://backend.local:8080/admin" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.AdminAPIURL)
	}
	if cfg.ListenAddr != ":5449" || cfg.SessionsDir != "sessions" || cfg.Env != "production" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.Brand != "Bot API Server" {
		t.Fatalf("brand default wrong: %q", cfg.Brand)
	}
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
	for _, key := range []string{"MONGODB_URI", "DOMAIN", "PORT", "API_ID", "API_HASH", "PUBLIC_KEY", "ADMIN_API_URL"} {
		t.Setenv(key, "")
	}

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"MONGODB_URI", "DOMAIN", "ADMIN_API_URL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not name %s", err, key)
		}
	}
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad PORT")
	}
}

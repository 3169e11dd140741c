package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_DRIVER", "DATABASE_DSN", "REDIS_ADDR",
		"JWT_SECRET", "SESSION_TTL", "BCRYPT_COST", "COOKIE_SECURE", "SESSION_COOKIE_NAME",
	} {
		unsetEnv(t, key)
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

// unsetEnv removes key for the duration of the test. Empty values would be
// taken literally instead of falling back to defaults.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v, want 7 days", cfg.SessionTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.CookieName != "session" {
		t.Errorf("CookieName = %q, want %q", cfg.CookieName, "session")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure = true, want false in development")
	}
	if !cfg.DatabaseMigrate {
		t.Error("DatabaseMigrate = false, want true")
	}
}

func TestLoadProduction(t *testing.T) {
	secret := strings.Repeat("s", 48)
	setEnv(t, map[string]string{"ENV": "production", "JWT_SECRET": secret})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure = false, want true in production")
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false")
	}
}

func TestLoadRejectsUnsafeConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "default secret in production", env: map[string]string{"ENV": "production"}},
		{name: "default secret in staging", env: map[string]string{"ENV": "staging"}},
		{name: "short secret in production", env: map[string]string{"ENV": "production", "JWT_SECRET": "short"}},
		{name: "insecure cookie in production", env: map[string]string{"ENV": "production", "JWT_SECRET": strings.Repeat("s", 48), "COOKIE_SECURE": "false"}},
		{name: "memory store in production", env: map[string]string{"ENV": "production", "JWT_SECRET": strings.Repeat("s", 48), "DATABASE_DRIVER": "memory"}},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "sqlite"}},
		{name: "bad cookie flag", env: map[string]string{"COOKIE_SECURE": "maybe"}},
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "a week"}},
		{name: "negative ttl", env: map[string]string{"SESSION_TTL": "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if _, err := Load(); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestResolveCookieSecure(t *testing.T) {
	tests := []struct {
		raw  string
		env  string
		want bool
	}{
		{raw: "", env: "development", want: false},
		{raw: "", env: "local", want: false},
		{raw: "", env: "test", want: false},
		{raw: "", env: "staging", want: true},
		{raw: "", env: "production", want: true},
		{raw: "true", env: "development", want: true},
		{raw: "false", env: "staging", want: false},
	}

	for _, tt := range tests {
		got, err := resolveCookieSecure(tt.raw, tt.env)
		if err != nil {
			t.Fatalf("resolveCookieSecure(%q, %q) unexpected error: %v", tt.raw, tt.env, err)
		}
		if got != tt.want {
			t.Errorf("resolveCookieSecure(%q, %q) = %v, want %v", tt.raw, tt.env, got, tt.want)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	if got := (Config{LogLevel: "debug"}).SlogLevel(); got != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", got)
	}
	if got := (Config{LogLevel: "nonsense"}).SlogLevel(); got != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", got)
	}
}

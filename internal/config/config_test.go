package config

import (
	"log/slog"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("REDIS_CHANNEL", "")
	t.Setenv("GITHUB_CALLBACK_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.RedisChannel != "skillswap:relay" {
		t.Errorf("RedisChannel default = %q", cfg.RedisChannel)
	}
	if cfg.GitHubCallbackURL != "http://localhost:9090/auth/github/callback" {
		t.Errorf("GitHubCallbackURL = %q", cfg.GitHubCallbackURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		port   string
	}{
		{"missing secret", "", "8080"},
		{"short secret", "short", "8080"},
		{"non-numeric port", "0123456789abcdef0123", "eighty"},
		{"port out of range", "0123456789abcdef0123", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", tt.secret)
			t.Setenv("PORT", tt.port)
			if _, err := Load(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("loud"); got != slog.LevelInfo {
		t.Errorf("parseLevel(loud) = %v, want info", got)
	}
	if got := parseLevel("WARN"); got != slog.LevelWarn {
		t.Errorf("parseLevel(WARN) = %v, want warn", got)
	}
}

func TestGitHubEnabled(t *testing.T) {
	c := &Config{GitHubClientID: "id"}
	if c.GitHubEnabled() {
		t.Error("expected disabled without secret")
	}
	c.GitHubClientSecret = "secret"
	if !c.GitHubEnabled() {
		t.Error("expected enabled")
	}
}

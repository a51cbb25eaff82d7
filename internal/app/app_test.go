package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseURL != testDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, testDatabaseURL)
	}
	if cfg.CookieSecure {
		t.Error("http BASE_URL should not enable secure cookies")
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestTrustedOrigins(t *testing.T) {
	tests := []struct {
		origin string
		want   []string
	}{
		{"http://localhost:3000", []string{"localhost:3000"}},
		{"https://events.example.com", []string{"events.example.com"}},
		{"", nil},
		{"not a url", nil},
	}
	for _, tt := range tests {
		got := trustedOrigins(tt.origin)
		if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
			t.Errorf("trustedOrigins(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://eventinator:s3cret@db:5432/eventinator?sslmode=disable")
	if bytes.Contains([]byte(got), []byte("s3cret")) {
		t.Errorf("maskDatabaseURL leaked password: %q", got)
	}
	if got != "postgres://eventinator:xxxxx@db:5432/eventinator?sslmode=disable" {
		t.Errorf("maskDatabaseURL = %q", got)
	}
	if maskDatabaseURL("::") != "***" {
		t.Error("unparseable URL should be fully masked")
	}
}

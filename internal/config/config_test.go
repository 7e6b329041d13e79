package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Store.Backend != BackendREST || cfg.Store.URL != "http://localhost:3000" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Negotiation.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Negotiation.PollInterval)
	}
	if cfg.Negotiation.AppendRetries != 3 {
		t.Errorf("append retries = %d", cfg.Negotiation.AppendRetries)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://agrobazaar_user:") {
		t.Errorf("database url = %s", cfg.DatabaseURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("REDIS_DB", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Negotiation.PollInterval != 2*time.Second || cfg.Redis.DB != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"bad backend", map[string]string{"JWT_SECRET": "s", "STORE_BACKEND": "sqlite"}, "STORE_BACKEND"},
		{"bad duration", map[string]string{"JWT_SECRET": "s", "POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"bad int", map[string]string{"JWT_SECRET": "s", "APPEND_RETRIES": "many"}, "APPEND_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

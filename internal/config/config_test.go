package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.ChatModel != "gpt-4o-mini" {
		t.Fatalf("ChatModel = %q", cfg.ChatModel)
	}
	if cfg.MaxHistory != 50 {
		t.Fatalf("MaxHistory = %d", cfg.MaxHistory)
	}
	if cfg.SampleRate != 16000 || cfg.ChunkSize != 1024 {
		t.Fatalf("audio defaults = %d/%d", cfg.SampleRate, cfg.ChunkSize)
	}
	if cfg.VADEnergyCutoff != 0.02 {
		t.Fatalf("VADEnergyCutoff = %v", cfg.VADEnergyCutoff)
	}
	if cfg.ProviderTimeout != 10*time.Second {
		t.Fatalf("ProviderTimeout = %v", cfg.ProviderTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("MAX_CONVERSATION_LENGTH", "12")
	t.Setenv("SILENCE_DURATION", "2.0")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("APP_ALLOWED_ORIGINS", "http://localhost:3000, https://clinic.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" || cfg.MaxHistory != 12 || cfg.SilenceDuration != 2.0 || !cfg.Debug {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://clinic.example.com" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"MAX_CONVERSATION_LENGTH", "0"},
		{"MAX_CONVERSATION_LENGTH", "abc"},
		{"CHAT_MAX_TOKENS", "-5"},
		{"SAMPLE_RATE", "0"},
		{"SILENCE_DURATION", "-1"},
		{"PROVIDER_TIMEOUT", "100ms"},
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"STT_PROVIDER", "whisper-local"},
		{"TTS_PROVIDER", "gtts"},
		{"APP_DEBUG", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", tc.key, tc.value)
			}
		})
	}
}

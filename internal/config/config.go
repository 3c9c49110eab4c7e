package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the clinic receptionist service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowedOrigins           []string
	AllowAnyOrigin           bool
	Debug                    bool

	ClinicName   string
	ServicesPath string
	DatabaseURL  string

	OpenAIAPIKey    string
	ChatModel       string
	ChatTemperature float64
	ChatMaxTokens   int
	MaxHistory      int

	STTProvider string
	TTSProvider string
	TTSVoice    string

	ProviderTimeout time.Duration

	VADThreshold    float64
	VADEnergyCutoff float64
	SilenceDuration float64
	SampleRate      int
	ChunkSize       int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "frontdesk"),
		ClinicName:       envOrDefault("CLINIC_NAME", "Medical Clinic"),
		ServicesPath:     envOrDefault("SERVICES_PATH", "data/services.json"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		OpenAIAPIKey:     trimmedEnv("OPENAI_API_KEY"),
		ChatModel:        envOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		ChatTemperature:  0.7,
		ChatMaxTokens:    150,
		MaxHistory:       50,
		STTProvider:      envOrDefault("STT_PROVIDER", "auto"),
		TTSProvider:      envOrDefault("TTS_PROVIDER", "auto"),
		TTSVoice:         envOrDefault("TTS_VOICE", "alloy"),
		ProviderTimeout:  10 * time.Second,
		VADThreshold:     0.5,
		VADEnergyCutoff:  0.02,
		SilenceDuration:  1.5,
		SampleRate:       16000,
		ChunkSize:        1024,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	if origins := trimmedEnv("APP_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = boolFromEnv("APP_DEBUG", cfg.Debug); err != nil {
		return Config{}, err
	}
	if cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE", cfg.ChatTemperature); err != nil {
		return Config{}, err
	}
	if cfg.ChatMaxTokens, err = intFromEnv("CHAT_MAX_TOKENS", cfg.ChatMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.MaxHistory, err = intFromEnv("MAX_CONVERSATION_LENGTH", cfg.MaxHistory); err != nil {
		return Config{}, err
	}
	if cfg.VADThreshold, err = floatFromEnv("VAD_THRESHOLD", cfg.VADThreshold); err != nil {
		return Config{}, err
	}
	if cfg.VADEnergyCutoff, err = floatFromEnv("VAD_ENERGY_CUTOFF", cfg.VADEnergyCutoff); err != nil {
		return Config{}, err
	}
	if cfg.SilenceDuration, err = floatFromEnv("SILENCE_DURATION", cfg.SilenceDuration); err != nil {
		return Config{}, err
	}
	if cfg.SampleRate, err = intFromEnv("SAMPLE_RATE", cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if cfg.ChunkSize, err = intFromEnv("CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be at least 1s")
	}
	if cfg.ChatMaxTokens <= 0 {
		return Config{}, fmt.Errorf("CHAT_MAX_TOKENS must be positive")
	}
	if cfg.MaxHistory <= 0 {
		return Config{}, fmt.Errorf("MAX_CONVERSATION_LENGTH must be positive")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("SAMPLE_RATE must be positive")
	}
	if cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if cfg.SilenceDuration <= 0 {
		return Config{}, fmt.Errorf("SILENCE_DURATION must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "auto", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("invalid STT_PROVIDER: %q (expected auto|openai|mock)", cfg.STTProvider)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TTSProvider)) {
	case "auto", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("invalid TTS_PROVIDER: %q (expected auto|openai|mock)", cfg.TTSProvider)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/frontdesk-ai/frontdesk/internal/agent"
	"github.com/frontdesk-ai/frontdesk/internal/brain"
	"github.com/frontdesk-ai/frontdesk/internal/clinic"
	"github.com/frontdesk-ai/frontdesk/internal/config"
	"github.com/frontdesk-ai/frontdesk/internal/httpapi"
	"github.com/frontdesk-ai/frontdesk/internal/observability"
	"github.com/frontdesk-ai/frontdesk/internal/pipeline"
	"github.com/frontdesk-ai/frontdesk/internal/session"
	"github.com/frontdesk-ai/frontdesk/internal/speech"
	"github.com/frontdesk-ai/frontdesk/internal/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	var reservations clinic.ReservationStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err := clinic.NewPostgresReservationStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("reservation store init failed: %v", err)
		}
		reservations = store
		log.Printf("reservation store: postgres")
	} else {
		reservations = clinic.NewMemoryReservationStore()
		log.Printf("reservation store: in-memory (no DATABASE_URL)")
	}
	defer reservations.Close()

	catalog := clinic.LoadCatalog(cfg.ServicesPath)
	if catalog.Len() == 0 {
		log.Printf("service catalog empty or unreadable at %s", cfg.ServicesPath)
	} else {
		log.Printf("service catalog: %d services from %s", catalog.Len(), cfg.ServicesPath)
	}

	var completer brain.Completer
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		c, err := brain.NewOpenAICompleter(brain.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.ChatModel,
			Temperature: cfg.ChatTemperature,
			MaxTokens:   cfg.ChatMaxTokens,
		})
		if err != nil {
			log.Fatalf("completer init failed: %v", err)
		}
		completer = c
		log.Printf("brain: openai (%s)", c.Model())
	} else {
		completer = brain.NewMockCompleter()
		log.Printf("brain: mock (no OPENAI_API_KEY)")
	}

	stt, tts := buildSpeechProviders(cfg)

	sessions := session.NewStore(cfg.MaxHistory, cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	receptionist := agent.New(completer, sessions, catalog, cfg.ClinicName)

	calls := pipeline.New(receptionist, sessions, stt, tts, vad.Config{
		Threshold:       cfg.VADThreshold,
		EnergyCutoff:    cfg.VADEnergyCutoff,
		SilenceDuration: cfg.SilenceDuration,
		SampleRate:      cfg.SampleRate,
		ChunkSize:       cfg.ChunkSize,
	}, metrics, cfg.ProviderTimeout)

	api := httpapi.New(cfg, sessions, receptionist, calls, stt, catalog, reservations, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// buildSpeechProviders resolves the STT and TTS backends from the configured
// modes. "openai" requires a key and is fatal without one; "auto" takes the
// hosted backends when a key is present and the mock backends otherwise. The
// hosted backends are wrapped in a failover pair so a flaky upstream degrades
// to the mock instead of silencing the call.
func buildSpeechProviders(cfg config.Config) (speech.Transcriber, speech.Synthesizer) {
	hasKey := strings.TrimSpace(cfg.OpenAIAPIKey) != ""

	var stt speech.Transcriber
	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "openai":
		if !hasKey {
			log.Fatalf("STT_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		stt = newWhisper(cfg)
		log.Printf("stt provider: whisper api")
	case "mock":
		stt = speech.NewMockTranscriber()
		log.Printf("stt provider: mock")
	default: // auto
		if hasKey {
			stt = newWhisper(cfg)
			log.Printf("stt provider: whisper api (auto)")
		} else {
			stt = speech.UnavailableTranscriber{}
			log.Printf("stt provider: none (no OPENAI_API_KEY); callers will not be transcribed")
		}
	}

	var tts speech.Synthesizer
	switch strings.ToLower(strings.TrimSpace(cfg.TTSProvider)) {
	case "openai":
		if !hasKey {
			log.Fatalf("TTS_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		tts = newOpenAITTS(cfg)
		log.Printf("tts provider: openai speech")
	case "mock":
		tts = speech.NewMockSynthesizer()
		log.Printf("tts provider: mock")
	default: // auto
		if hasKey {
			tts = newOpenAITTS(cfg)
			log.Printf("tts provider: openai speech (auto)")
		} else {
			tts = speech.NewMockSynthesizer()
			log.Printf("tts provider: mock (no OPENAI_API_KEY)")
		}
	}

	if _, hosted := tts.(*speech.OpenAISynthesizer); hosted {
		stt, tts = speech.NewFailoverPair(stt, tts, speech.NewMockTranscriber(), speech.NewMockSynthesizer())
	}
	return stt, tts
}

func newWhisper(cfg config.Config) speech.Transcriber {
	t, err := speech.NewWhisperTranscriber(speech.WhisperConfig{
		APIKey:     cfg.OpenAIAPIKey,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		log.Fatalf("whisper transcriber init failed: %v", err)
	}
	return t
}

func newOpenAITTS(cfg config.Config) speech.Synthesizer {
	s, err := speech.NewOpenAISynthesizer(speech.SynthesizerConfig{
		APIKey: cfg.OpenAIAPIKey,
		Voice:  cfg.TTSVoice,
	})
	if err != nil {
		log.Fatalf("openai synthesizer init failed: %v", err)
	}
	return s
}

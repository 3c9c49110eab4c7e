package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/frontdesk-ai/frontdesk/internal/audio"
)

// WhisperTranscriber transcribes PCM16 audio through the hosted Whisper API.
type WhisperTranscriber struct {
	client     *openai.Client
	model      string
	sampleRate int
	language   string
}

type WhisperConfig struct {
	APIKey     string
	Model      string
	SampleRate int
	Language   string
}

func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("whisper transcriber: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &WhisperTranscriber{
		client:     openai.NewClient(cfg.APIKey),
		model:      model,
		sampleRate: sampleRate,
		language:   strings.TrimSpace(cfg.Language),
	}, nil
}

func (t *WhisperTranscriber) Available() bool  { return true }
func (t *WhisperTranscriber) Provider() string { return "whisper_api" }

// Transcribe wraps the PCM buffer in a WAV container and calls the Whisper
// endpoint. Upstream failures degrade to empty text; the call loop keeps
// listening instead of dropping the caller.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	wav := audio.EncodeWAVPCM16LE(pcm, t.sampleRate)
	req := openai.AudioRequest{
		Model:    t.model,
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav),
		FilePath: "utterance.wav", // the API infers the container from this name
	}

	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("stt: whisper transcription failed: %v", err)
		return "", nil
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAISynthesizer renders text through the hosted speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

type SynthesizerConfig struct {
	APIKey string
	Model  string
	Voice  string
}

func NewOpenAISynthesizer(cfg SynthesizerConfig) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai synthesizer: api key is required")
	}
	model := openai.SpeechModel(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(strings.TrimSpace(cfg.Voice))
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
		voice:  voice,
	}, nil
}

func (s *OpenAISynthesizer) Provider() string     { return "openai_tts" }
func (s *OpenAISynthesizer) OutputFormat() string { return "mp3" }

// Synthesize chunks long text at sentence boundaries, renders each piece and
// concatenates the audio in order. Failures return empty bytes.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := SplitLongText(text, MaxChunkChars)
	if len(chunks) == 0 {
		return nil, nil
	}

	var out bytes.Buffer
	for _, chunk := range chunks {
		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          s.model,
			Input:          chunk,
			Voice:          s.voice,
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("tts: speech synthesis failed: %v", err)
			return nil, nil
		}
		if _, err := io.Copy(&out, resp); err != nil {
			resp.Close()
			log.Printf("tts: reading speech response failed: %v", err)
			return nil, nil
		}
		resp.Close()
	}
	return out.Bytes(), nil
}

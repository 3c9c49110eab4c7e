package speech

import "context"

// Transcriber converts a finite audio buffer into text. Implementations
// degrade gracefully: on failure or when no backend is configured they
// return empty text, which the call loop reads as "no utterance".
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	Available() bool
	Provider() string
}

// Synthesizer renders text into playable audio bytes. Empty output signals
// failure; callers log and continue rather than dropping the call.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Provider() string
}

// Format names the audio container a Synthesizer emits, for transports that
// tag outgoing chunks.
type Format interface {
	OutputFormat() string
}

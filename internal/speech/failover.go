package speech

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// defaultFallbackHold is how long a primary failure keeps the pair latched
// onto the fallback before the primary is tried first again.
const defaultFallbackHold = 30 * time.Second

// NewFailoverPair builds Transcriber/Synthesizer wrappers that prefer the
// primary backend and latch onto the fallback when a primary call fails or
// yields nothing. The latch expires after a hold period, so a recovered
// primary gets picked back up; it also clears early when the fallback itself
// fails and the primary succeeds on retry.
func NewFailoverPair(
	primarySTT Transcriber,
	primaryTTS Synthesizer,
	fallbackSTT Transcriber,
	fallbackTTS Synthesizer,
) (Transcriber, Synthesizer) {
	return newFailoverPair(primarySTT, primaryTTS, fallbackSTT, fallbackTTS, defaultFallbackHold)
}

func newFailoverPair(
	primarySTT Transcriber,
	primaryTTS Synthesizer,
	fallbackSTT Transcriber,
	fallbackTTS Synthesizer,
	hold time.Duration,
) (Transcriber, Synthesizer) {
	state := &failoverState{hold: hold}
	return &failoverTranscriber{state: state, primary: primarySTT, fallback: fallbackSTT},
		&failoverSynthesizer{state: state, primary: primaryTTS, fallback: fallbackTTS}
}

type failoverState struct {
	hold          time.Duration
	fallbackUntil atomic.Int64 // unix nanos; zero means not latched
}

func (s *failoverState) latched() bool {
	return time.Now().UnixNano() < s.fallbackUntil.Load()
}

func (s *failoverState) latch() {
	s.fallbackUntil.Store(time.Now().Add(s.hold).UnixNano())
}

func (s *failoverState) clear() {
	s.fallbackUntil.Store(0)
}

type failoverTranscriber struct {
	state    *failoverState
	primary  Transcriber
	fallback Transcriber
}

func (t *failoverTranscriber) Available() bool {
	return t.primary.Available() || t.fallback.Available()
}

func (t *failoverTranscriber) Provider() string {
	if t.state.latched() {
		return t.fallback.Provider()
	}
	return t.primary.Provider()
}

func (t *failoverTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	first, second := t.primary, t.fallback
	if t.state.latched() {
		first, second = t.fallback, t.primary
	}

	text, err := first.Transcribe(ctx, pcm)
	if err == nil && strings.TrimSpace(text) != "" {
		if first == t.primary {
			t.state.clear()
		}
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	text, err2 := second.Transcribe(ctx, pcm)
	if err2 == nil && strings.TrimSpace(text) != "" {
		if second == t.fallback {
			t.state.latch()
		} else {
			t.state.clear()
		}
		return text, nil
	}
	// Both empty or failed; report the preferred backend's outcome.
	return "", err
}

type failoverSynthesizer struct {
	state    *failoverState
	primary  Synthesizer
	fallback Synthesizer
}

func (s *failoverSynthesizer) Provider() string {
	if s.state.latched() {
		return s.fallback.Provider()
	}
	return s.primary.Provider()
}

// OutputFormat reports the preferred backend's container format.
func (s *failoverSynthesizer) OutputFormat() string {
	active := Synthesizer(s.primary)
	if s.state.latched() {
		active = s.fallback
	}
	if f, ok := active.(Format); ok {
		return f.OutputFormat()
	}
	return "audio"
}

func (s *failoverSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	first, second := s.primary, s.fallback
	if s.state.latched() {
		first, second = s.fallback, s.primary
	}

	audio, err := first.Synthesize(ctx, text)
	if err == nil && len(audio) > 0 {
		if first == s.primary {
			s.state.clear()
		}
		return audio, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	audio, err2 := second.Synthesize(ctx, text)
	if err2 == nil && len(audio) > 0 {
		if second == s.fallback {
			s.state.latch()
		} else {
			s.state.clear()
		}
		return audio, nil
	}
	return nil, err
}

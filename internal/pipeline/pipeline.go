package pipeline

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk-ai/frontdesk/internal/agent"
	"github.com/frontdesk-ai/frontdesk/internal/observability"
	"github.com/frontdesk-ai/frontdesk/internal/protocol"
	"github.com/frontdesk-ai/frontdesk/internal/session"
	"github.com/frontdesk-ai/frontdesk/internal/speech"
	"github.com/frontdesk-ai/frontdesk/internal/vad"
)

// State names the position of a call in its turn-taking loop.
type State string

const (
	StateAwaitingAudio State = "awaiting_audio"
	StateGating        State = "gating"
	StateTranscribing  State = "transcribing"
	StateRouting       State = "routing"
	StateSynthesizing  State = "synthesizing"
	StateSending       State = "sending"
	StateClosed        State = "closed"
)

// maxUtteranceBytes bounds the speech buffer of a single utterance; a caller
// who never pauses gets committed at this size instead of growing without
// limit. 1 MiB is ~32s of 16 kHz PCM16.
const maxUtteranceBytes = 1 << 20

// Pipeline owns the per-call loop that wires VAD, transcription, the agent
// and synthesis into one turn-taking state machine.
type Pipeline struct {
	agent           *agent.Agent
	sessions        *session.Store
	stt             speech.Transcriber
	tts             speech.Synthesizer
	vadConfig       vad.Config
	metrics         *observability.Metrics
	providerTimeout time.Duration
	audioFormat     string
}

func New(
	a *agent.Agent,
	sessions *session.Store,
	stt speech.Transcriber,
	tts speech.Synthesizer,
	vadConfig vad.Config,
	metrics *observability.Metrics,
	providerTimeout time.Duration,
) *Pipeline {
	if providerTimeout <= 0 {
		providerTimeout = 10 * time.Second
	}
	format := "audio"
	if f, ok := tts.(speech.Format); ok {
		format = f.OutputFormat()
	}
	return &Pipeline{
		agent:           a,
		sessions:        sessions,
		stt:             stt,
		tts:             tts,
		vadConfig:       vadConfig,
		metrics:         metrics,
		providerTimeout: providerTimeout,
		audioFormat:     format,
	}
}

// RunCall drives one call from greeting to close. It returns when the
// caller hangs up (inbound closes or ctx cancels), after a farewell, or on
// an unrecoverable session error. Per-turn provider failures are logged and
// surfaced as error events; the loop keeps listening.
func (p *Pipeline) RunCall(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	p.speak(ctx, outbound, sess.ID, p.agent.Greeting(), protocol.EventGreeting)

	detector := vad.New(p.vadConfig)
	var utterance []byte

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}

			switch m := msg.(type) {
			case protocol.ClientControl:
				if m.Action == protocol.ActionEndCall {
					p.speak(ctx, outbound, sess.ID, p.agent.Farewell(), protocol.EventFarewell)
					p.send(ctx, outbound, protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: protocol.EventClosed})
					p.release(sess.ID)
					return nil
				}

			case protocol.ClientAudioChunk:
				frame, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
				if err != nil {
					p.send(ctx, outbound, protocol.ErrorEvent{
						Type: protocol.TypeErrorEvent, SessionID: sess.ID,
						Code: "invalid_audio", Source: "pipeline", Detail: err.Error(),
					})
					continue
				}
				_ = p.sessions.Touch(sess.ID)

				if detector.Detect(frame) {
					utterance = append(utterance, frame...)
					if len(utterance) < maxUtteranceBytes {
						continue
					}
					// Force a commit on runaway utterances.
				} else if len(utterance) == 0 || !detector.HasSilence() {
					continue
				}

				closed := p.runTurn(ctx, sess.ID, utterance, outbound)
				utterance = nil
				detector.Reset()
				if closed {
					p.release(sess.ID)
					return nil
				}
			}
		}
	}
}

// runTurn handles one committed utterance and reports whether the call
// should close.
func (p *Pipeline) runTurn(ctx context.Context, sessionID string, pcm []byte, outbound chan<- any) bool {
	started := time.Now()

	text, err := p.transcribe(ctx, pcm)
	if err != nil {
		// Cancellation only; the transcriber degrades everything else.
		return ctx.Err() != nil
	}
	if strings.TrimSpace(text) == "" {
		// Noise, not an utterance; keep listening.
		return false
	}

	p.send(ctx, outbound, protocol.Transcript{
		Type: protocol.TypeTranscript, SessionID: sessionID,
		Text: text, TSMs: time.Now().UnixMilli(),
	})

	if p.agent.ShouldEndCall(text) {
		p.speak(ctx, outbound, sessionID, p.agent.Farewell(), protocol.EventFarewell)
		p.send(ctx, outbound, protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: protocol.EventClosed})
		return true
	}

	turnCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	reply, err := p.agent.Process(turnCtx, sessionID, text)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// Session vanished mid-call (janitor or explicit end).
		log.Printf("pipeline: turn failed for session %s: %v", sessionID, err)
		p.send(ctx, outbound, protocol.ErrorEvent{
			Type: protocol.TypeErrorEvent, SessionID: sessionID,
			Code: "session_lost", Source: "agent", Detail: err.Error(),
		})
		return true
	}

	p.speak(ctx, outbound, sessionID, reply, "")
	if p.metrics != nil {
		p.metrics.ObserveTurnLatency(time.Since(started))
	}
	return false
}

func (p *Pipeline) transcribe(ctx context.Context, pcm []byte) (string, error) {
	sttCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()
	text, err := p.stt.Transcribe(sttCtx, pcm)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("pipeline: transcription failed: %v", err)
		if p.metrics != nil {
			p.metrics.ProviderErrors.WithLabelValues(p.stt.Provider(), "transcribe").Inc()
		}
		return "", nil
	}
	return text, nil
}

// speak synthesizes text and streams the audio to the transport. Empty
// synthesis output is logged and skipped; a mute turn must not end the call.
func (p *Pipeline) speak(ctx context.Context, outbound chan<- any, sessionID, text, eventCode string) {
	if eventCode != "" {
		p.send(ctx, outbound, protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: eventCode, Detail: text})
	}

	ttsCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	audio, err := p.tts.Synthesize(ttsCtx, text)
	cancel()
	if err != nil || len(audio) == 0 {
		if ctx.Err() != nil {
			return
		}
		log.Printf("pipeline: synthesis produced no audio for session %s: %v", sessionID, err)
		if p.metrics != nil {
			p.metrics.ProviderErrors.WithLabelValues(p.tts.Provider(), "synthesize").Inc()
		}
		return
	}

	p.send(ctx, outbound, protocol.AssistantAudioChunk{
		Type:        protocol.TypeAssistantAudioChunk,
		SessionID:   sessionID,
		TurnID:      uuid.NewString(),
		Seq:         0,
		Format:      p.audioFormat,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})
}

// release drops the session once its call has ended. The transport deletes
// on disconnect; this covers farewell and explicit end-call closes.
func (p *Pipeline) release(sessionID string) {
	if err := p.sessions.Delete(sessionID); err != nil {
		return
	}
	if p.metrics != nil {
		p.metrics.SessionEvents.WithLabelValues("call_ended").Inc()
		p.metrics.ActiveSessions.Set(float64(p.sessions.ActiveCount()))
	}
}

// send never blocks past disconnect: a cancelled ctx drops the message.
func (p *Pipeline) send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

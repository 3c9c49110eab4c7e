package vad

import (
	"math"

	"github.com/frontdesk-ai/frontdesk/internal/audio"
)

// DefaultEnergyCutoff is the RMS energy above which a frame counts as speech,
// on samples normalized to [-1, 1]. Typical speech energy sits well above
// background noise at this level.
const DefaultEnergyCutoff = 0.02

// Config controls a Detector. Threshold is the configured speech-confidence
// threshold; it is carried for the public contract but the energy decision
// uses EnergyCutoff, matching the shipped behavior.
type Config struct {
	Threshold       float64
	SilenceDuration float64 // seconds of silence that count as end of utterance
	SampleRate      int
	ChunkSize       int
	EnergyCutoff    float64
}

// Detector classifies PCM16 frames as speech or silence by short-term energy
// and tracks the length of the current silence run. It is not safe for
// concurrent use; each call loop owns its own Detector.
type Detector struct {
	cfg           Config
	energyCutoff  float64
	silenceRun    int
	silenceFrames int
}

func New(cfg Config) *Detector {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 1.5
	}
	cutoff := cfg.EnergyCutoff
	if cutoff <= 0 {
		cutoff = DefaultEnergyCutoff
	}
	return &Detector{
		cfg:           cfg,
		energyCutoff:  cutoff,
		silenceFrames: int(cfg.SilenceDuration * float64(cfg.SampleRate) / float64(cfg.ChunkSize)),
	}
}

// Detect reports whether the PCM16LE frame contains speech. Silence frames
// grow the silence run; a speech frame resets it. Malformed or empty input
// is treated as silence, never an error.
func (d *Detector) Detect(frame []byte) bool {
	samples := audio.DecodePCM16LE(frame)
	if Energy(samples) > d.energyCutoff {
		d.silenceRun = 0
		return true
	}
	d.silenceRun++
	return false
}

// HasSilence reports whether the silence run has reached the configured
// duration, i.e. the caller has stopped talking.
func (d *Detector) HasSilence() bool {
	return d.silenceRun >= d.silenceFrames
}

// Reset clears the silence run. The call loop calls this at every utterance
// boundary.
func (d *Detector) Reset() {
	d.silenceRun = 0
}

// SilenceFrameThreshold returns the number of consecutive silence frames
// that trigger HasSilence.
func (d *Detector) SilenceFrameThreshold() int {
	return d.silenceFrames
}

// Energy returns the RMS energy of unit-normalized samples.
func Energy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate returns the mean sign-change rate of the samples.
// Voiced speech has a characteristically low rate compared to fricatives
// and broadband noise.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

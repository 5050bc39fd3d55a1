// Package tts turns spoken answers into audio. ElevenLabs is the hosted
// backend; Cached sits in front of it so the fixed hazard phrases are only
// synthesized once per process.
package tts

import (
	"context"
	"strings"
	"time"
)

// Provider synthesizes complete utterances. Answers are a sentence long,
// so there is no streaming path.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	Health(ctx context.Context) error
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated from the byte count
	CharCount int
	Latency   time.Duration
}

// AudioFormat describes encoded audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding is an ElevenLabs output_format value.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingULaw  Encoding = "ulaw_8000"
)

// encodingInfo describes an Encoding. A zero bytesPerSecond means 16-bit
// PCM at rate.
type encodingInfo struct {
	container      string
	mime           string
	rate           int
	bytesPerSecond int
}

var encodings = map[Encoding]encodingInfo{
	EncodingPCM16: {"pcm", "audio/pcm", 16000, 0},
	EncodingPCM22: {"pcm", "audio/pcm", 22050, 0},
	EncodingPCM24: {"pcm", "audio/pcm", 24000, 0},
	EncodingPCM44: {"pcm", "audio/pcm", 44100, 0},
	EncodingMP3:   {"mp3", "audio/mpeg", 44100, 128000 / 8},
	EncodingULaw:  {"ulaw", "audio/basic", 8000, 8000},
}

// info falls back to 128 kbps MP3 at 44.1 kHz for encodings outside the
// table, keeping the container from the name.
func (e Encoding) info() encodingInfo {
	if i, ok := encodings[e]; ok {
		return i
	}
	i := encodings[EncodingMP3]
	i.container, _, _ = strings.Cut(string(e), "_")
	return i
}

// Container is the short name players understand: "mp3", "pcm" or "ulaw".
func (e Encoding) Container() string { return e.info().container }

// MIME is the Accept type requested from the API.
func (e Encoding) MIME() string { return e.info().mime }

// SampleRate in Hz.
func (e Encoding) SampleRate() int { return e.info().rate }

// Format describes mono 16-bit output in e.
func (e Encoding) Format() AudioFormat {
	return AudioFormat{Encoding: e, SampleRate: e.SampleRate(), Channels: 1, BitDepth: 16}
}

// VoiceSettings are the ElevenLabs voice_settings knobs, each 0..1.
// SpeakerBoost trades latency for clarity, which helps outdoors.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings favor a steady, clear voice over expressiveness.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, SpeakerBoost: true}
}

// EstimateDuration estimates playback time of n bytes in enc.
func EstimateDuration(enc Encoding, n int) time.Duration {
	i := enc.info()
	bps := i.bytesPerSecond
	if bps == 0 {
		bps = i.rate * 2
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

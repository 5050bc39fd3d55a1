package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatseye/hatseye/pkg/audio"
	"github.com/hatseye/hatseye/pkg/camera"
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/inference"
	"github.com/hatseye/hatseye/pkg/publish"
	"github.com/hatseye/hatseye/pkg/telemetry"
	"github.com/hatseye/hatseye/pkg/tts"
)

// CameraOpener opens a capture source for cfg.
type CameraOpener func(ctx context.Context, cfg camera.Config, logger *slog.Logger) (camera.Source, error)

// Option overrides a component that would otherwise be built from config.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	registry    *prometheus.Registry
	openCamera  CameraOpener
	listCameras func(max int) []int
	detector    detection.Detector
	vision      inference.Provider
	speech      tts.Provider
	player      audio.Player
	clipPlayer  audio.FilePlayer
	publisher   publish.Publisher
	opener      telemetry.Opener
	lister      telemetry.Lister
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithCamera replaces the webcam opener.
func WithCamera(open CameraOpener, list func(max int) []int) Option {
	return func(o *options) {
		o.openCamera = open
		o.listCameras = list
	}
}

// WithSource uses src for every camera open.
func WithSource(src camera.Source) Option {
	return WithCamera(func(context.Context, camera.Config, *slog.Logger) (camera.Source, error) {
		return src, nil
	}, func(int) []int { return []int{0} })
}

// WithDetector replaces the Roboflow detector.
func WithDetector(d detection.Detector) Option {
	return func(o *options) { o.detector = d }
}

// WithVision replaces the Gemini chain.
func WithVision(p inference.Provider) Option {
	return func(o *options) { o.vision = p }
}

// WithSpeech replaces the ElevenLabs provider.
func WithSpeech(p tts.Provider) Option {
	return func(o *options) { o.speech = p }
}

// WithPlayer replaces the command player speaking answers.
func WithPlayer(p audio.Player) Option {
	return func(o *options) { o.player = p }
}

// WithClipPlayer replaces the player used for cues and alert sounds. It
// defaults to a command player separate from the one speaking answers.
func WithClipPlayer(p audio.FilePlayer) Option {
	return func(o *options) { o.clipPlayer = p }
}

// WithPublisher replaces the MQTT publisher.
func WithPublisher(p publish.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSerial replaces serial port access for the telemetry reader.
func WithSerial(opener telemetry.Opener, lister telemetry.Lister) Option {
	return func(o *options) {
		o.opener = opener
		o.lister = lister
	}
}

func openWebcam(_ context.Context, cfg camera.Config, logger *slog.Logger) (camera.Source, error) {
	w, err := camera.OpenWebcam(cfg, logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Package app wires the HatsEye components together and runs them: the
// camera frame loop, telemetry, the interaction machine, publishing and
// the web server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hatseye/hatseye/internal/config"
	"github.com/hatseye/hatseye/pkg/audio"
	"github.com/hatseye/hatseye/pkg/camera"
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/frame"
	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/inference"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/metrics"
	"github.com/hatseye/hatseye/pkg/publish"
	"github.com/hatseye/hatseye/pkg/tts"
	"github.com/hatseye/hatseye/pkg/wakeword"
	"github.com/hatseye/hatseye/pkg/web"
)

// App owns every component. Build it with New and start it with Run.
type App struct {
	cfg    *config.Config
	opts   options
	logger *slog.Logger

	metrics   *metrics.Metrics
	cameras   *camera.Manager
	raw       *frame.Latch
	overlay   *frame.Latch
	cache     *detection.Cache
	debouncer *hazard.Debouncer
	proximity *hazard.Debouncer
	link      *telemetryLink
	vision    inference.Provider
	speech    tts.Provider
	player    audio.Player
	clips     *audio.ClipSink
	machine   *interaction.Machine
	publisher publish.Publisher
	server    *web.Server

	// loopMu is held by the frame loop for each frame's cache and
	// debouncer updates.
	loopMu sync.Mutex

	srcMu      sync.Mutex
	source     camera.Source
	cameraLive atomic.Bool
	device     atomic.Int64
}

// New builds the application from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{openCamera: openWebcam, listCameras: camera.List}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a := &App{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger.With("component", "app"),
		raw:     frame.NewLatch(),
		overlay: frame.NewLatch(),
	}

	m, err := metrics.New(o.registry)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	a.metrics = m

	a.cameras = camera.NewManager(cameraConfig(cfg.Camera))
	a.cameras.OnConfigChange = func(c camera.Config) error {
		return a.openCamera(context.Background(), c)
	}

	if err := a.buildDetection(); err != nil {
		return nil, err
	}
	if err := a.buildSpeech(); err != nil {
		return nil, err
	}
	if err := a.buildPublisher(); err != nil {
		return nil, err
	}
	a.buildHazards()
	a.link = newTelemetryLink(a.telemetryConfig(), o.logger)
	a.buildMachine()
	a.buildServer()
	return a, nil
}

func cameraConfig(c config.CameraConfig) camera.Config {
	cfg := camera.DefaultConfig()
	cfg.Device = c.Device
	cfg.MaxProbe = c.MaxProbe
	cfg.Width = c.Width
	cfg.Height = c.Height
	cfg.FPS = c.FPS
	cfg.JPEGQuality = c.JPEGQuality
	return cfg
}

func (a *App) buildDetection() error {
	det := a.opts.detector
	if det == nil {
		d, err := a.newDetector()
		if err != nil {
			return err
		}
		if d == nil {
			return nil
		}
		det = d
	}

	cc := detection.DefaultCacheConfig()
	cc.Stride = a.cfg.Detection.Stride
	cc.Wait = a.cfg.Detection.Wait
	cc.Timeout = a.cfg.Detection.Timeout
	cc.JPEGQuality = a.cfg.Camera.JPEGQuality
	cc.Active = a.cfg.Detection.Active
	cc.OnResult = a.metrics.DetectionCall
	cc.Logger = a.opts.logger
	a.cache = detection.NewCache(det, cc)
	return nil
}

// newDetector picks the hosted model when an API key is set and the local
// ONNX model otherwise. It returns nil when neither is usable.
func (a *App) newDetector() (detection.Detector, error) {
	dc := a.cfg.Detection
	if dc.APIKey != "" {
		rf, err := detection.NewRoboflow(
			detection.WithAPIURL(dc.APIURL),
			detection.WithAPIKey(dc.APIKey),
			detection.WithModelID(dc.ModelID),
			detection.WithThresholds(dc.Confidence, dc.Overlap),
			detection.WithRateLimit(dc.RateLimit),
			detection.WithLogger(a.opts.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("app: detection: %w", err)
		}
		return rf, nil
	}

	if dc.ModelPath == "" {
		a.logger.Warn("detection disabled: ROBOFLOW_API_KEY not set")
		return nil, nil
	}
	oc := detection.DefaultONNXConfig()
	oc.ModelPath = dc.ModelPath
	if len(dc.Labels) > 0 {
		oc.Labels = dc.Labels
	}
	oc.ConfidenceThresh = float32(dc.Confidence) / 100
	oc.NMSThresh = float32(dc.Overlap) / 100
	oc.Logger = a.opts.logger
	onnx, err := detection.NewONNX(oc)
	if err != nil {
		a.logger.Warn("detection disabled: local model unavailable", "model", dc.ModelPath, "error", err)
		return nil, nil
	}
	return onnx, nil
}

func (a *App) buildSpeech() error {
	vision := a.opts.vision
	if vision == nil {
		vc := a.cfg.Vision
		chain, err := inference.NewGeminiChain(vc.Models,
			inference.WithAPIKey(vc.APIKey),
			inference.WithBaseURL(vc.BaseURL),
			inference.WithTimeout(vc.Timeout),
			inference.WithImage(vc.MaxDim, vc.JPEGQuality),
			inference.WithLogger(a.opts.logger),
		)
		if err != nil {
			return fmt.Errorf("app: vision: %w", err)
		}
		vision = chain
	}
	a.vision = vision

	speech := a.opts.speech
	if speech == nil {
		tc := a.cfg.TTS
		el, err := tts.NewElevenLabs(
			tts.WithAPIKey(tc.APIKey),
			tts.WithVoice(tts.ResolveElevenLabsVoice(tc.Voice)),
			tts.WithModel(tc.Model),
			tts.WithTimeout(tc.Timeout),
			tts.WithLogger(a.opts.logger),
		)
		if err != nil {
			return fmt.Errorf("app: tts: %w", err)
		}
		speech = el
	}
	if a.cfg.TTS.CacheTTL > 0 {
		speech = tts.NewCached(speech, a.cfg.TTS.CacheTTL, a.opts.logger)
	}
	a.speech = speech

	pc := audio.DefaultConfig()
	pc.Binary = a.cfg.Audio.Player
	pc.Logger = a.opts.logger

	player := a.opts.player
	if player == nil {
		cp := audio.NewCommandPlayer(pc)
		if !cp.Available() {
			a.logger.Warn("audio player not found, answers will not be heard", "binary", pc.Binary)
		}
		player = cp
	}
	a.player = player

	// Alert sounds must not queue behind a spoken answer.
	clipPlayer := a.opts.clipPlayer
	if clipPlayer == nil {
		pc.Logger = a.opts.logger.With("channel", "clips")
		clipPlayer = audio.NewCommandPlayer(pc)
	}

	ac := a.cfg.Audio
	a.clips = audio.NewClipSink(audio.ClipConfig{
		Dir:          ac.ClipsDir,
		WakeClip:     ac.WakeClip,
		QuestionClip: ac.QuestionClip,
		AlertClip:    ac.AlertClip,
		Logger:       a.opts.logger,
	}, clipPlayer)
	return nil
}

func (a *App) buildPublisher() error {
	if a.opts.publisher != nil {
		a.publisher = a.opts.publisher
		return nil
	}
	mc := a.cfg.MQTT
	if !mc.Enabled {
		a.publisher = publish.Noop{}
		return nil
	}
	if mc.QoS < 0 || mc.QoS > 2 {
		return &config.ConfigError{Field: "mqtt.qos", Message: "must be 0, 1 or 2"}
	}
	pc := publish.DefaultConfig()
	pc.Broker = mc.Broker
	pc.ClientID = mc.ClientID
	pc.Username = mc.Username
	pc.Password = mc.Password
	pc.Topic = mc.Topic
	pc.QoS = byte(mc.QoS)
	pc.OnPublish = a.metrics.Published
	pc.Logger = a.opts.logger
	a.publisher = publish.NewMQTT(pc)
	return nil
}

func (a *App) buildHazards() {
	sinks := hazard.Sinks{
		a.clips,
		hazard.SinkFunc(a.onAlert),
	}
	if s, ok := a.publisher.(hazard.AlertSink); ok {
		sinks = append(sinks, s)
	}

	hc := a.cfg.Hazard
	a.debouncer = hazard.New(hazard.Config{
		Classes:       hc.Classes,
		Dwell:         hc.Dwell,
		MissTolerance: hc.MissTolerance,
		Logger:        a.opts.logger,
	}, sinks)

	if hc.ProximityCM > 0 && hc.ProximityClass != "" {
		a.proximity = hazard.New(hazard.Config{
			Classes:       []string{hc.ProximityClass},
			Dwell:         hc.Dwell,
			MissTolerance: hc.MissTolerance,
			Logger:        a.opts.logger.With("source", "proximity"),
		}, sinks)
	}
}

func (a *App) onAlert(al hazard.Alert) {
	a.metrics.HazardAlert(al.Class)
	a.server.PublishEvent("hazard", al)
}

func (a *App) buildMachine() {
	ic := a.cfg.Interaction
	mc := interaction.DefaultConfig()
	mc.ListenTimeout = ic.ListenTimeout
	mc.CaptureTimeout = ic.CaptureTimeout
	mc.AnalysisTimeout = ic.AnalysisTimeout
	mc.SynthesisTimeout = ic.SynthesisTimeout
	mc.PlaybackTimeout = ic.PlaybackTimeout
	mc.Matcher = wakeword.New(ic.WakePhrases...)
	mc.Logger = a.opts.logger
	mc.OnChange = func(s interaction.Session) {
		a.metrics.SessionState(s.State.String())
		a.server.PublishEvent("session", s)
	}
	mc.OnOutcome = a.onOutcome

	a.machine = interaction.NewMachine(mc, interaction.Deps{
		Frames:      a.raw,
		Analyzer:    a.analyzer(),
		Synthesizer: tts.Speaker{Provider: a.speech},
		Player:      a.player,
		Cues:        a.clips,
	})
}

func (a *App) analyzer() interaction.Analyzer {
	return &meteredAnalyzer{
		next:    inference.NewAnalyzer(a.vision, "", a.opts.logger),
		metrics: a.metrics,
	}
}

// onOutcome runs on the machine goroutine and must not block it.
func (a *App) onOutcome(o interaction.Outcome) {
	a.metrics.SessionEnded(string(o.Reason))
	a.server.PublishEvent("outcome", o)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.publisher.PublishOutcome(ctx, o); err != nil {
			a.logger.Debug("outcome publish failed", "error", err)
		}
	}()
}

func (a *App) buildServer() {
	wc := a.cfg.Web
	sc := web.DefaultConfig()
	sc.Addr = wc.Addr
	sc.AllowOrigins = wc.AllowOrigins
	sc.StaticDir = wc.StaticDir
	sc.ClipsDir = a.cfg.Audio.ClipsDir
	sc.JPEGQuality = a.cfg.Camera.JPEGQuality
	sc.CameraProbe = a.cfg.Camera.MaxProbe
	sc.Logger = a.opts.logger

	a.server = web.New(sc, web.Deps{
		Pipeline:    a,
		Telemetry:   a.link,
		Interaction: a.machine,
		Frames:      a.raw,
		Analyzer:    a.analyzer(),
		Synthesizer: tts.Speaker{Provider: a.speech},
		Overlay:     a.overlay,
		Cameras:     a.cameras,
		ListCameras: a.opts.listCameras,
		Metrics:     a.metrics,
	})
}

// Machine returns the interaction machine.
func (a *App) Machine() *interaction.Machine { return a.machine }

// Server returns the web server.
func (a *App) Server() *web.Server { return a.server }

// Overlay returns the latch of annotated frames.
func (a *App) Overlay() *frame.Latch { return a.overlay }

// Run starts every component and blocks until ctx is done or one of them
// fails. Components are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.openCamera(ctx, a.cameras.Config()); err != nil {
		a.logger.Warn("no camera, serving blank frames", "error", err)
		a.useBlank()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return ignoreCancel(a.machine.Run(ctx)) })
	g.Go(func() error { return a.frameLoop(ctx) })
	g.Go(func() error {
		if a.cfg.Telemetry.Enabled {
			a.link.Run(ctx)
		}
		return nil
	})
	g.Go(func() error {
		a.broadcastTelemetry(ctx)
		return nil
	})
	if p, ok := a.publisher.(*publish.MQTT); ok {
		g.Go(func() error {
			if err := p.Connect(ctx); err != nil {
				a.logger.Warn("mqtt unavailable, continuing without publishing", "error", err)
			}
			return nil
		})
	}

	a.logger.Info("hatseye running", "addr", a.cfg.Web.Addr)
	err := g.Wait()
	a.close()
	return ignoreCancel(err)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) close() {
	a.srcMu.Lock()
	if a.source != nil {
		a.source.Close()
	}
	a.srcMu.Unlock()

	if a.cache != nil {
		a.cache.Close()
	}
	a.link.Close()
	a.clips.Close()
	a.publisher.Close()
	a.speech.Close()
	a.vision.Close()
	a.logger.Info("hatseye stopped")
}

// StartDetection implements web.Pipeline.
func (a *App) StartDetection() error {
	if a.cache == nil {
		return web.ErrDetectionUnavailable
	}
	a.cache.Start()
	return nil
}

// StopDetection implements web.Pipeline. The cached result and the hazard
// window are cleared under the frame-loop lock, so the next frame is drawn
// without stale boxes.
func (a *App) StopDetection() {
	a.loopMu.Lock()
	defer a.loopMu.Unlock()
	if a.cache != nil {
		a.cache.Stop()
	}
	a.debouncer.Reset()
	a.metrics.SetHazardActive(false)
}

// DetectionStatus implements web.Pipeline.
func (a *App) DetectionStatus() web.DetectionStatus {
	st := web.DetectionStatus{Hazard: a.debouncer.Window()}
	if a.cache != nil {
		st.Available = true
		st.Active = a.cache.Active()
		st.Frames = a.cache.FrameCount()
		st.Last = a.cache.Last()
	}
	return st
}

// CameraStatus implements web.Pipeline.
func (a *App) CameraStatus() web.CameraStatus {
	return web.CameraStatus{
		Available: a.cameraLive.Load(),
		Device:    int(a.device.Load()),
	}
}

var _ web.Pipeline = (*App)(nil)

// meteredAnalyzer counts vision requests.
type meteredAnalyzer struct {
	next    interaction.Analyzer
	metrics *metrics.Metrics
}

func (m *meteredAnalyzer) Analyze(ctx context.Context, f frame.Frame, q string) (string, error) {
	answer, err := m.next.Analyze(ctx, f, q)
	m.metrics.VisionRequest(err)
	return answer, err
}

// Package web serves the HatsEye HTTP API: status and control endpoints,
// the annotated MJPEG feed, websocket hubs and prometheus metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hatseye/hatseye/pkg/camera"
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/frame"
	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/hub"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/metrics"
	"github.com/hatseye/hatseye/pkg/telemetry"
	"github.com/hatseye/hatseye/pkg/wakeword"
)

// ErrDetectionUnavailable is returned by Pipeline.StartDetection when no
// detector is configured.
var ErrDetectionUnavailable = errors.New("web: detection not available")

// Pipeline is the orchestrator side of the server.
type Pipeline interface {
	StartDetection() error
	StopDetection()
	DetectionStatus() DetectionStatus
	CameraStatus() CameraStatus
}

// Telemetry is the serial link. *telemetry.Reader satisfies it.
type Telemetry interface {
	Poll() (telemetry.Snapshot, error)
	Status() telemetry.Status
	Send(command string) error
	Path() string
}

// Interaction drives voice sessions. *interaction.Machine satisfies it.
type Interaction interface {
	Wake(ctx context.Context, ev wakeword.Event) error
	Hear(ctx context.Context, text string, final bool) error
	Ask(ctx context.Context, question string) error
	Cancel(ctx context.Context) error
	Session() interaction.Session
}

// DetectionStatus reports the detection cache and hazard window.
type DetectionStatus struct {
	Available bool             `json:"available"`
	Active    bool             `json:"active"`
	Frames    uint64           `json:"frames"`
	Last      detection.Result `json:"last"`
	Hazard    hazard.Window    `json:"hazard"`
}

// CameraStatus reports the capture device.
type CameraStatus struct {
	Available bool `json:"camera_available"`
	Device    int  `json:"current_camera_index"`
}

// TelemetryStatus reports the serial link.
type TelemetryStatus struct {
	Available bool   `json:"available"`
	Status    string `json:"status"`
	Port      string `json:"port,omitempty"`
}

// Status is the response of GET /api/status.
type Status struct {
	Uptime    string              `json:"uptime"`
	Camera    CameraStatus        `json:"camera"`
	Detection DetectionStatus     `json:"detection"`
	Telemetry TelemetryStatus     `json:"telemetry"`
	Session   interaction.Session `json:"session"`
	Speech    bool                `json:"speech_available"`
	Clients   map[string]int      `json:"clients"`
}

// Config holds server configuration.
type Config struct {
	Addr         string
	AllowOrigins string
	StaticDir    string
	ClipsDir     string

	// JPEGQuality is used for the MJPEG feed and the camera websocket.
	JPEGQuality int

	// CameraProbe is how many indexes GET /api/cameras probes.
	CameraProbe int

	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowOrigins:    "*",
		StaticDir:       "public",
		ClipsDir:        "public",
		JPEGQuality:     80,
		CameraProbe:     5,
		ShutdownTimeout: 5 * time.Second,
		Logger:          slog.Default(),
	}
}

// Deps are the components the server exposes. Nil fields disable the
// endpoints that need them.
type Deps struct {
	Pipeline    Pipeline
	Telemetry   Telemetry
	Interaction Interaction

	// Frames is the raw camera latch used by /api/analyze.
	Frames      interaction.FrameSource
	Analyzer    interaction.Analyzer
	Synthesizer interaction.Synthesizer

	// Overlay carries annotated frames for /video_feed.
	Overlay *frame.Latch

	Cameras     *camera.Manager
	ListCameras func(max int) []int

	Metrics *metrics.Metrics
}

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	cfg    Config
	deps   Deps
	logger *slog.Logger
	start  time.Time

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub

	// ctx ends streaming responses on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server and registers every route.
func New(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.CameraProbe <= 0 {
		cfg.CameraProbe = def.CameraProbe
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = def.AllowOrigins
	}

	logger := cfg.Logger.With("component", "web")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		start:     time.Now(),
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.statusHub.OnClients = deps.Metrics.SetClients
	s.cameraHub.OnClients = deps.Metrics.SetClients

	app := fiber.New(fiber.Config{
		AppName:               "HatsEye",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	api.Post("/detection/start", s.handleDetectionStart)
	api.Post("/detection/stop", s.handleDetectionStop)
	api.Get("/detection/status", s.handleDetectionStatus)

	api.Get("/telemetry", s.handleTelemetry)
	api.Post("/telemetry/send", s.handleTelemetrySend)

	api.Post("/voice", s.handleVoice)
	api.Post("/voice/transcript", s.handleTranscript)
	api.Post("/ask", s.handleAsk)
	api.Get("/session", s.handleSession)
	api.Delete("/session", s.handleCancel)

	api.Post("/analyze", s.handleAnalyze)
	api.Post("/tts", s.handleTTS)

	api.Get("/cameras", s.handleListCameras)
	api.Post("/cameras", s.handleSetCamera)

	app.Get("/video_feed", s.handleVideoFeed)
	app.Get("/sounds/:name", s.handleSound)

	if reg := deps.Metrics.Registry(); reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	hubCtx, stopHubs := context.WithCancel(ctx)
	defer stopHubs()
	go s.statusHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
	}

	s.cancel()
	stopHubs()
	if err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); err != nil {
		s.logger.Warn("web shutdown", "error", err)
	}
	<-errCh
	return nil
}

// PublishFrame sends an annotated frame to camera websocket clients and
// the MJPEG feed.
func (s *Server) PublishFrame(f frame.Frame) {
	if s.deps.Overlay != nil {
		s.deps.Overlay.Publish(f)
	}
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	data, err := f.JPEG(s.cfg.JPEGQuality)
	if err != nil {
		s.logger.Debug("frame encode failed", "seq", f.Seq, "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
}

// PublishEvent sends a typed JSON event to status websocket clients.
func (s *Server) PublishEvent(typ string, v any) {
	if err := s.statusHub.BroadcastEvent(typ, v); err != nil {
		s.logger.Warn("event encode failed", "type", typ, "error", err)
	}
}

// Status assembles the current system status.
func (s *Server) Status() Status {
	st := Status{
		Uptime: time.Since(s.start).Round(time.Second).String(),
		Speech: s.deps.Synthesizer != nil,
		Clients: map[string]int{
			s.statusHub.Name(): s.statusHub.ClientCount(),
			s.cameraHub.Name(): s.cameraHub.ClientCount(),
		},
		Telemetry: s.telemetryStatus(),
	}
	if p := s.deps.Pipeline; p != nil {
		st.Camera = p.CameraStatus()
		st.Detection = p.DetectionStatus()
	}
	if it := s.deps.Interaction; it != nil {
		st.Session = it.Session()
	}
	return st
}

func (s *Server) telemetryStatus() TelemetryStatus {
	t := s.deps.Telemetry
	if t == nil {
		return TelemetryStatus{Status: telemetry.StatusUnavailable.String()}
	}
	st := t.Status()
	return TelemetryStatus{
		Available: st != telemetry.StatusUnavailable,
		Status:    st.String(),
		Port:      t.Path(),
	}
}

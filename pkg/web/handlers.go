package web

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hatseye/hatseye/pkg/camera"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/telemetry"
	"github.com/hatseye/hatseye/pkg/wakeword"
)

// DefaultQuestion is asked by /api/analyze when the body has none.
const DefaultQuestion = "What is in this image?"

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handleStatus returns the system status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

func (s *Server) handleDetectionStart(c *fiber.Ctx) error {
	p := s.deps.Pipeline
	if p == nil {
		return fail(c, fiber.StatusServiceUnavailable, "detection not available")
	}
	if p.DetectionStatus().Active {
		return c.JSON(fiber.Map{"success": true, "message": "already running"})
	}
	if err := p.StartDetection(); err != nil {
		if errors.Is(err, ErrDetectionUnavailable) {
			return fail(c, fiber.StatusServiceUnavailable, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	s.logger.Info("detection started")
	return c.JSON(fiber.Map{"success": true, "message": "detection started"})
}

func (s *Server) handleDetectionStop(c *fiber.Ctx) error {
	p := s.deps.Pipeline
	if p == nil {
		return fail(c, fiber.StatusServiceUnavailable, "detection not available")
	}
	p.StopDetection()
	s.logger.Info("detection stopped")
	return c.JSON(fiber.Map{"success": true, "message": "detection stopped"})
}

func (s *Server) handleDetectionStatus(c *fiber.Ctx) error {
	if s.deps.Pipeline == nil {
		return c.JSON(DetectionStatus{})
	}
	return c.JSON(s.deps.Pipeline.DetectionStatus())
}

// handleTelemetry returns the latest valid snapshot. Every failure is a
// 503 so the dashboard hides the sensor display.
func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	t := s.deps.Telemetry
	if t == nil {
		return fail(c, fiber.StatusServiceUnavailable, "telemetry not available")
	}
	snap, err := t.Poll()
	if err != nil {
		var pe *telemetry.ParseError
		switch {
		case errors.As(err, &pe):
			return fail(c, fiber.StatusServiceUnavailable, "no data available")
		case errors.Is(err, telemetry.ErrLinkLost), errors.Is(err, telemetry.ErrDeviceUnavailable):
			return fail(c, fiber.StatusServiceUnavailable, "telemetry not connected")
		default:
			return fail(c, fiber.StatusServiceUnavailable, err.Error())
		}
	}
	return c.JSON(snap)
}

type sendRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleTelemetrySend(c *fiber.Ctx) error {
	t := s.deps.Telemetry
	if t == nil {
		return fail(c, fiber.StatusServiceUnavailable, "telemetry not available")
	}
	var req sendRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		return fail(c, fiber.StatusBadRequest, "no command provided")
	}
	if err := t.Send(req.Command); err != nil {
		if errors.Is(err, telemetry.ErrLinkLost) {
			return fail(c, fiber.StatusServiceUnavailable, "telemetry not connected")
		}
		return fail(c, fiber.StatusInternalServerError, "failed to send command")
	}
	return c.JSON(fiber.Map{"status": "sent", "command": req.Command})
}

type voiceRequest struct {
	Matched    bool    `json:"matched"`
	Utterance  string  `json:"utterance_text"`
	Confidence float64 `json:"confidence"`
	Keyword    string  `json:"keyword"`
}

// handleVoice accepts a wake-word result from an external recognizer.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	it := s.deps.Interaction
	if it == nil {
		return fail(c, fiber.StatusServiceUnavailable, "voice not available")
	}
	var req voiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	ev := wakeword.Event{
		Matched:    req.Matched,
		Keyword:    req.Keyword,
		Confidence: req.Confidence,
		Text:       req.Utterance,
		Remainder:  req.Utterance,
		Timestamp:  time.Now(),
	}
	if err := it.Wake(c.UserContext(), ev); err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(it.Session())
}

type transcriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// handleTranscript accepts raw recognizer text.
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	it := s.deps.Interaction
	if it == nil {
		return fail(c, fiber.StatusServiceUnavailable, "voice not available")
	}
	var req transcriptRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if err := it.Hear(c.UserContext(), req.Text, req.Final); err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

type askRequest struct {
	Question string `json:"question"`
}

// handleAsk starts a session from a typed question.
func (s *Server) handleAsk(c *fiber.Ctx) error {
	it := s.deps.Interaction
	if it == nil {
		return fail(c, fiber.StatusServiceUnavailable, "voice not available")
	}
	var req askRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		return fail(c, fiber.StatusBadRequest, "no question provided")
	}
	if it.Session().Active() {
		return fail(c, fiber.StatusConflict, "a question is already in progress")
	}
	if err := it.Ask(c.UserContext(), req.Question); err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	if s.deps.Interaction == nil {
		return c.JSON(interaction.Session{})
	}
	return c.JSON(s.deps.Interaction.Session())
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	it := s.deps.Interaction
	if it == nil {
		return fail(c, fiber.StatusServiceUnavailable, "voice not available")
	}
	if err := it.Cancel(c.UserContext()); err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleAnalyze answers a question about the next camera frame without
// going through a voice session.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	if s.deps.Frames == nil || s.deps.Analyzer == nil {
		return fail(c, fiber.StatusServiceUnavailable, "vision not available")
	}
	var req askRequest
	_ = c.BodyParser(&req)
	q := strings.TrimSpace(req.Question)
	if q == "" {
		q = DefaultQuestion
	}

	f, err := s.deps.Frames.Next(c.UserContext())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not capture camera frame")
	}
	result, err := s.deps.Analyzer.Analyze(c.UserContext(), f, q)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"result":   result,
		"is_error": interaction.LooksLikeError(result),
	})
}

type ttsRequest struct {
	Text string `json:"text"`
}

// handleTTS returns synthesized speech. Error-looking text is refused so
// diagnostics are never spoken.
func (s *Server) handleTTS(c *fiber.Ctx) error {
	if s.deps.Synthesizer == nil {
		return fail(c, fiber.StatusServiceUnavailable, "speech not available")
	}
	var req ttsRequest
	if err := c.BodyParser(&req); err != nil || interaction.LooksLikeError(req.Text) {
		return fail(c, fiber.StatusBadRequest, "invalid text for speech")
	}
	audio, format, err := s.deps.Synthesizer.Synthesize(c.UserContext(), req.Text)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if len(audio) == 0 {
		return fail(c, fiber.StatusInternalServerError, "generated audio is empty")
	}
	c.Set(fiber.HeaderContentType, audioMIME(format))
	return c.Send(audio)
}

func (s *Server) handleListCameras(c *fiber.Ctx) error {
	var found []int
	if s.deps.ListCameras != nil {
		found = s.deps.ListCameras(s.cfg.CameraProbe)
	}
	if found == nil {
		found = []int{}
	}
	resp := fiber.Map{"cameras": found}
	if m := s.deps.Cameras; m != nil {
		cfg := m.Config()
		resp["current_camera_index"] = cfg.Device
		resp["config"] = cfg
	}
	return c.JSON(resp)
}

// handleSetCamera updates the camera configuration. A null camera_index
// selects auto-detection.
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	m := s.deps.Cameras
	if m == nil {
		return fail(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	u, err := camera.ParseUpdate(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := m.Apply(u); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	cfg := m.Config()
	s.logger.Info("camera config updated", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return c.JSON(fiber.Map{
		"success":      true,
		"camera_index": cfg.Device,
		"config":       cfg,
	})
}

// handleSound serves a clip from the clips directory. Only the base name
// is used so requests cannot escape it.
func (s *Server) handleSound(c *fiber.Ctx) error {
	name := filepath.Base(c.Params("name"))
	if name == "." || name == "/" || s.cfg.ClipsDir == "" {
		return fail(c, fiber.StatusNotFound, "sound file not found")
	}
	if err := c.SendFile(filepath.Join(s.cfg.ClipsDir, name)); err != nil || c.Response().StatusCode() == fiber.StatusNotFound {
		return fail(c, fiber.StatusNotFound, "sound file not found")
	}
	c.Set(fiber.HeaderContentType, audioMIME(strings.TrimPrefix(filepath.Ext(name), ".")))
	return nil
}

func audioMIME(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	case "ulaw":
		return "audio/basic"
	default:
		return "audio/mpeg"
	}
}

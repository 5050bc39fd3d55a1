package web

import (
	"bufio"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"

	"github.com/hatseye/hatseye/pkg/hub"
)

const mjpegBoundary = "frame"

// handleVideoFeed streams annotated frames as multipart MJPEG until the
// client disconnects or the server shuts down.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	latch := s.deps.Overlay
	if latch == nil {
		return fail(c, fiber.StatusServiceUnavailable, "video not available")
	}
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	ctx := s.ctx
	quality := s.cfg.JPEGQuality
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for {
			f, err := latch.Next(ctx)
			if err != nil {
				return
			}
			data, err := f.JPEG(quality)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data))
			w.Write(data)
			w.WriteString("\r\n")
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

// handleStatusWS sends the current status, then every broadcast event.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting []hub.Message
	if msg, err := hub.Event("status", s.Status()); err == nil {
		greeting = append(greeting, msg)
	}
	hub.NewClient(s.statusHub, c, greeting...).Run()
}

// handleCameraWS streams annotated frames as binary JPEG messages.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}

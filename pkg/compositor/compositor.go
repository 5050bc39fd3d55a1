// Package compositor draws detection boxes, sensor telemetry and hazard
// alerts over camera frames. It holds no state: the output depends only on
// the base image and the Input.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

// Input is everything drawn over one frame.
type Input struct {
	Result detection.Result

	// Telemetry is nil when no snapshot has been received.
	Telemetry       *telemetry.Snapshot
	TelemetryStatus telemetry.Status

	// HideTelemetry omits the sensor strip entirely, e.g. when no serial
	// link is configured.
	HideTelemetry bool

	Alert      bool
	AlertClass string
}

// Style holds drawing colours and sizes.
type Style struct {
	BoxColor    color.RGBA
	LabelText   color.RGBA
	Text        color.RGBA
	StripColor  color.RGBA
	AlertColor  color.RGBA
	Thickness   int
	AlertBorder int
}

// DefaultStyle draws green boxes on a dark telemetry strip.
func DefaultStyle() Style {
	return Style{
		BoxColor:    color.RGBA{0, 255, 0, 255},
		LabelText:   color.RGBA{0, 0, 0, 255},
		Text:        color.RGBA{255, 255, 255, 255},
		StripColor:  color.RGBA{0, 0, 0, 160},
		AlertColor:  color.RGBA{255, 0, 0, 255},
		Thickness:   2,
		AlertBorder: 6,
	}
}

var face = basicfont.Face7x13

const (
	lineHeight = 13
	padding    = 4
)

// Compose draws in over a copy of base with DefaultStyle.
func Compose(base image.Image, in Input) *image.RGBA {
	return DefaultStyle().Compose(base, in)
}

// Compose draws in over a copy of base. base is not modified.
func (s Style) Compose(base image.Image, in Input) *image.RGBA {
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	for _, d := range in.Result.Detections() {
		s.drawDetection(dst, d, w, h)
	}

	s.drawText(dst, fmt.Sprintf("Objects: %d", in.Result.Len()), image.Pt(10, 10), s.BoxColor, nil)

	if !in.HideTelemetry {
		s.drawTelemetry(dst, TelemetryLine(in.Telemetry, in.TelemetryStatus))
	}

	if in.Alert {
		s.drawAlert(dst, in.AlertClass)
	}
	return dst
}

// TelemetryLine is the text of the sensor strip.
func TelemetryLine(snap *telemetry.Snapshot, status telemetry.Status) string {
	switch {
	case status == telemetry.StatusLinkLost:
		return "Sensors: no data"
	case snap == nil || status == telemetry.StatusUnavailable:
		return "Sensors: unavailable"
	default:
		return telemetry.FormatSnapshot(*snap)
	}
}

func (s Style) drawDetection(dst *image.RGBA, d detection.Detection, w, h int) {
	px := d.Box.Pixels(w, h)
	r := image.Rect(int(px.XMin), int(px.YMin), int(px.XMax), int(px.YMax)).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	s.strokeRect(dst, r, s.Thickness, s.BoxColor)

	label := fmt.Sprintf("%s: %.2f", d.Class, d.Confidence)
	// Above the box when there is room, otherwise just inside it.
	top := r.Min.Y - lineHeight - 2*padding
	if top < 0 {
		top = r.Min.Y
	}
	bg := s.BoxColor
	s.drawText(dst, label, image.Pt(r.Min.X, top), s.LabelText, &bg)
}

func (s Style) drawTelemetry(dst *image.RGBA, line string) {
	b := dst.Bounds()
	strip := image.Rect(0, b.Max.Y-lineHeight-2*padding, b.Max.X, b.Max.Y)
	draw.Draw(dst, strip, &image.Uniform{C: s.StripColor}, image.Point{}, draw.Over)
	s.drawText(dst, line, image.Pt(padding, strip.Min.Y), s.Text, nil)
}

func (s Style) drawAlert(dst *image.RGBA, class string) {
	s.strokeRect(dst, dst.Bounds(), s.AlertBorder, s.AlertColor)

	text := "HAZARD"
	if class != "" {
		text += ": " + strings.ToUpper(class)
	}
	width := font.MeasureString(face, text).Ceil() + 2*padding
	x := (dst.Bounds().Dx() - width) / 2
	if x < 0 {
		x = 0
	}
	bg := s.AlertColor
	s.drawText(dst, text, image.Pt(x, s.AlertBorder+2), s.Text, &bg)
}

// strokeRect draws a rectangle outline of thickness t inside r.
func (s Style) strokeRect(dst *image.RGBA, r image.Rectangle, t int, c color.RGBA) {
	if t < 1 {
		t = 1
	}
	u := &image.Uniform{C: c}
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
}

// drawText draws text with its padded box's top-left corner at pt,
// optionally over a filled background.
func (s Style) drawText(dst *image.RGBA, text string, pt image.Point, c color.RGBA, bg *color.RGBA) {
	width := font.MeasureString(face, text).Ceil()
	box := image.Rect(pt.X, pt.Y, pt.X+width+2*padding, pt.Y+lineHeight+2*padding)
	if bg != nil {
		draw.Draw(dst, box.Intersect(dst.Bounds()), &image.Uniform{C: *bg}, image.Point{}, draw.Src)
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(pt.X+padding, pt.Y+padding+face.Ascent),
	}
	d.DrawString(text)
}

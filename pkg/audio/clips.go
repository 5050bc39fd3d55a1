package audio

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/interaction"
)

// FilePlayer plays audio files.
type FilePlayer interface {
	PlayFile(ctx context.Context, path string) error
}

// ClipConfig names the clip for each cue and for hazard alerts.
type ClipConfig struct {
	Dir          string
	WakeClip     string
	QuestionClip string
	AlertClip    string

	// Timeout bounds a single clip.
	Timeout time.Duration

	// OnPlayed is called after each clip, with the error if it failed.
	OnPlayed func(name string, err error)

	Logger *slog.Logger
}

// ClipSink plays short clips fire-and-forget. A clip that is still playing
// is not restarted, so a burst of alerts produces one sound.
type ClipSink struct {
	cfg    ClipConfig
	player FilePlayer
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
	closed   bool
}

// NewClipSink creates a sink playing through player.
func NewClipSink(cfg ClipConfig, player FilePlayer) *ClipSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ClipSink{
		cfg:      cfg,
		player:   player,
		logger:   cfg.Logger.With("component", "audio.clips"),
		inflight: make(map[string]bool),
	}
}

// PlayClip starts playing the named clip and returns immediately. It
// reports whether playback was started.
func (s *ClipSink) PlayClip(name string) bool {
	if name == "" || s.player == nil {
		return false
	}
	path := s.Path(name)

	s.mu.Lock()
	if s.closed || s.inflight[name] {
		s.mu.Unlock()
		return false
	}
	if _, err := os.Stat(path); err != nil {
		s.mu.Unlock()
		s.logger.Warn("clip missing", "clip", name, "error", err)
		return false
	}
	s.inflight[name] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		err := s.player.PlayFile(ctx, path)
		if err != nil {
			s.logger.Warn("clip playback failed", "clip", name, "error", err)
		}

		s.mu.Lock()
		delete(s.inflight, name)
		s.mu.Unlock()

		if s.cfg.OnPlayed != nil {
			s.cfg.OnPlayed(name, err)
		}
	}()
	return true
}

// Path returns the filesystem path of a clip.
func (s *ClipSink) Path(name string) string {
	return filepath.Join(s.cfg.Dir, filepath.Base(name))
}

// PlayCue implements interaction.CuePlayer.
func (s *ClipSink) PlayCue(cue interaction.Cue) {
	switch cue {
	case interaction.CueWake:
		s.PlayClip(s.cfg.WakeClip)
	case interaction.CueQuestion:
		s.PlayClip(s.cfg.QuestionClip)
	}
}

// Alert implements hazard.AlertSink.
func (s *ClipSink) Alert(a hazard.Alert) {
	if s.PlayClip(s.cfg.AlertClip) {
		s.logger.Info("alert sound", "class", a.Class)
	}
}

// Close waits for clips in flight and rejects new ones.
func (s *ClipSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

var (
	_ interaction.CuePlayer = (*ClipSink)(nil)
	_ hazard.AlertSink      = (*ClipSink)(nil)
)

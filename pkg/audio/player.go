// Package audio plays synthesized answers and short feedback clips through
// an external command-line player.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrEmptyAudio is returned when there is nothing to play.
var ErrEmptyAudio = errors.New("audio: empty audio")

// Player plays encoded audio to completion.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
}

// Config configures a CommandPlayer.
type Config struct {
	// Binary is the player executable, e.g. "ffplay" or "mpg123".
	Binary string

	// PCMRate is the sample rate assumed for raw "pcm" audio.
	PCMRate int

	// OnPlaybackStart and OnPlaybackEnd bracket every Play call.
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	Logger *slog.Logger
}

// DefaultConfig returns a config using ffplay.
func DefaultConfig() Config {
	return Config{
		Binary:  "ffplay",
		PCMRate: 24000,
		Logger:  slog.Default(),
	}
}

// CommandPlayer pipes audio into a player process's stdin. Playback is
// serialized: a second Play waits for the first to finish or for its own
// ctx to end.
type CommandPlayer struct {
	cfg    Config
	logger *slog.Logger

	slot chan struct{}

	mu      sync.Mutex
	cmd     *exec.Cmd
	playing bool
}

// NewCommandPlayer creates a player.
func NewCommandPlayer(cfg Config) *CommandPlayer {
	if cfg.Binary == "" {
		cfg.Binary = "ffplay"
	}
	if cfg.PCMRate <= 0 {
		cfg.PCMRate = 24000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CommandPlayer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "audio.player", "binary", cfg.Binary),
		slot:   make(chan struct{}, 1),
	}
}

// Available reports whether the player binary is on PATH.
func (p *CommandPlayer) Available() bool {
	_, err := exec.LookPath(p.cfg.Binary)
	return err == nil
}

// Play writes audio to the player and waits until playback ends or ctx is
// done, in which case the process is killed.
func (p *CommandPlayer) Play(ctx context.Context, audio []byte, format string) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}
	return p.run(ctx, bytes.NewReader(audio), format)
}

// PlayFile plays an audio file.
func (p *CommandPlayer) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()
	return p.run(ctx, f, formatFromPath(path))
}

func (p *CommandPlayer) run(ctx context.Context, src io.Reader, format string) error {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slot }()

	cmd := exec.CommandContext(ctx, p.cfg.Binary, p.args(format)...)
	cmd.Stdin = src

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Binary, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.playing = true
	p.mu.Unlock()
	if p.cfg.OnPlaybackStart != nil {
		p.cfg.OnPlaybackStart()
	}

	err := cmd.Wait()

	p.mu.Lock()
	p.cmd = nil
	p.playing = false
	p.mu.Unlock()
	if p.cfg.OnPlaybackEnd != nil {
		p.cfg.OnPlaybackEnd()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.logger.Debug("player exited with error", "error", err, "stderr", stderr.String())
		return fmt.Errorf("%s: %w", p.cfg.Binary, err)
	}
	return nil
}

// Cancel stops the current playback immediately.
func (p *CommandPlayer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// IsPlaying returns whether audio is currently playing.
func (p *CommandPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *CommandPlayer) args(format string) []string {
	switch filepath.Base(p.cfg.Binary) {
	case "ffplay":
		args := []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
		if format == "pcm" {
			args = append(args, "-f", "s16le", "-ar", fmt.Sprint(p.cfg.PCMRate), "-ac", "1")
		}
		return append(args, "-i", "pipe:0")
	case "mpg123":
		return []string{"-q", "-"}
	case "aplay":
		if format == "pcm" {
			return []string{"-q", "-f", "S16_LE", "-r", fmt.Sprint(p.cfg.PCMRate), "-c", "1", "-"}
		}
		return []string{"-q", "-"}
	default:
		return nil
	}
}

func formatFromPath(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".pcm", ".raw":
		return "pcm"
	default:
		return ""
	}
}

// Verify CommandPlayer implements Player at compile time.
var _ Player = (*CommandPlayer)(nil)

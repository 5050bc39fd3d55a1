package inference

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/hatseye/hatseye/pkg/frame"
)

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	mock := NewMock("A red door.")

	resp, err := mock.Vision(ctx, &VisionRequest{Prompt: "What do you see?"})
	if err != nil {
		t.Fatalf("Vision failed: %v", err)
	}
	if resp.Content != "A red door." {
		t.Errorf("Content = %q", resp.Content)
	}

	if err := mock.Health(ctx); err != nil {
		t.Errorf("Health failed: %v", err)
	}

	if mock.CallCount("Vision") != 1 {
		t.Errorf("Expected 1 Vision call, got %d", mock.CallCount("Vision"))
	}
	if got := mock.LastCall(); got == nil || got.Method != "Health" {
		t.Errorf("LastCall = %+v", got)
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Expected 0 calls after reset")
	}
}

func TestMockWithError(t *testing.T) {
	ctx := context.Background()
	testErr := errors.New("test error")
	mock := WithError(testErr)

	if _, err := mock.Vision(ctx, &VisionRequest{}); !errors.Is(err, testErr) {
		t.Errorf("Expected test error, got: %v", err)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Expected test error, got: %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(
		WithBaseURL("http://localhost:8080/v1beta"),
		WithAPIKey("test-key"),
		WithModel("gemini-1.5-flash"),
		WithMaxTokens(64),
		WithTemperature(0.1),
		WithImage(256, 50),
		WithTimeout(5*time.Second),
	)

	if cfg.BaseURL != "http://localhost:8080/v1beta" {
		t.Errorf("BaseURL not set: %s", cfg.BaseURL)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("APIKey not set")
	}
	if cfg.Model != "gemini-1.5-flash" {
		t.Errorf("Model not set: %s", cfg.Model)
	}
	if cfg.MaxTokens != 64 || cfg.Temperature != 0.1 {
		t.Errorf("generation defaults not set: %d %v", cfg.MaxTokens, cfg.Temperature)
	}
	if cfg.MaxImageDim != 256 || cfg.JPEGQuality != 50 {
		t.Errorf("image options not set: %d %d", cfg.MaxImageDim, cfg.JPEGQuality)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout not set: %v", cfg.Timeout)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Validate() = %v, want ErrNoAPIKey", err)
	}
	cfg.APIKey = "k"
	cfg.Model = ""
	if err := cfg.Validate(); !errors.Is(err, ErrNoModel) {
		t.Errorf("Validate() = %v, want ErrNoModel", err)
	}
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 1280, 720, 512, 512, 288},
		{"portrait", 480, 960, 512, 256, 512},
		{"already small", 320, 240, 512, 320, 240},
		{"disabled", 1280, 720, 0, 1280, 720},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := Downscale(img, tt.max).Bounds()
			if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
				t.Errorf("Downscale = %dx%d, want %dx%d", got.Dx(), got.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestAnalyzer(t *testing.T) {
	mock := NewMock("  A white coffee mug on a wooden table. ")
	a := NewAnalyzer(mock, "", nil)

	f := frame.New(image.NewRGBA(image.Rect(0, 0, 8, 8)), 1, time.Now())
	answer, err := a.Analyze(context.Background(), f, " what is in front of me ")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if answer != "A white coffee mug on a wooden table." {
		t.Errorf("answer = %q", answer)
	}

	prompt := mock.LastCall().Prompt
	if !strings.HasPrefix(prompt, "You are helping a visually impaired person") {
		t.Errorf("prompt = %q", prompt)
	}
	if !strings.HasSuffix(prompt, "Question: what is in front of me") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestAnalyzerNoFrame(t *testing.T) {
	mock := NewMock("x")
	a := NewAnalyzer(mock, "", nil)
	if _, err := a.Analyze(context.Background(), frame.Frame{}, "what"); !errors.Is(err, ErrNoImage) {
		t.Errorf("err = %v, want ErrNoImage", err)
	}
	if mock.CallCount("Vision") != 0 {
		t.Error("provider should not be called without a frame")
	}
}

package tts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hatseye/hatseye/internal/log"
	"github.com/hatseye/hatseye/pkg/tts"
)

func TestCachedReusesPhrases(t *testing.T) {
	mock := tts.NewMock()
	c := tts.NewCached(mock, time.Minute, log.Discard())
	ctx := context.Background()

	first, err := c.Synthesize(ctx, "Okay, cancelled.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Synthesize(ctx, "  okay,   CANCELLED. ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the cached result")
	}
	if mock.CallCount("Synthesize") != 1 {
		t.Errorf("expected 1 provider call, got %d", mock.CallCount("Synthesize"))
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached phrase, got %d", c.Len())
	}
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	mock := tts.WithError(errors.New("503"))
	c := tts.NewCached(mock, time.Minute, log.Discard())

	for i := 0; i < 2; i++ {
		if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
			t.Fatal("expected error")
		}
	}
	if mock.CallCount("Synthesize") != 2 {
		t.Errorf("errors must not be cached, got %d calls", mock.CallCount("Synthesize"))
	}
}

func TestCachedCollapsesConcurrentCalls(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 30*time.Millisecond)
	c := tts.NewCached(mock, time.Minute, log.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Synthesize(context.Background(), "A white coffee mug."); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := mock.CallCount("Synthesize"); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}
}

func TestCachedSharedCallSurvivesCancel(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 60*time.Millisecond)
	c := tts.NewCached(mock, time.Minute, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(ctx, "Pothole ahead.")
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(context.Background(), "Pothole ahead.")
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("joined caller failed: %v", err)
	}
	if n := mock.CallCount("Synthesize"); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected the phrase cached, got %d", c.Len())
	}
}

func TestCachedClose(t *testing.T) {
	mock := tts.NewMock()
	c := tts.NewCached(mock, time.Minute, log.Discard())
	_, _ = c.Synthesize(context.Background(), "hi")

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Len() != 0 {
		t.Error("expected cache flushed")
	}
	if mock.CallCount("Close") != 1 {
		t.Error("expected provider closed")
	}
}

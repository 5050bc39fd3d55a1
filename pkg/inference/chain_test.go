package inference

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := WithError(&APIError{StatusCode: 429, Message: "quota exceeded", Provider: "gemini"})
	working := NewMock("From working provider")

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	resp, err := chain.Vision(ctx, &VisionRequest{Prompt: "test"})
	if err != nil {
		t.Fatalf("Chain vision failed: %v", err)
	}
	if resp.Content != "From working provider" {
		t.Errorf("Unexpected response: %s", resp.Content)
	}
}

func TestChainAllFail(t *testing.T) {
	ctx := context.Background()

	p1 := WithError(errors.New("provider 1 failed"))
	p2 := WithError(errors.New("provider 2 failed"))

	chain, _ := NewChain(p1, p2)
	defer chain.Close()

	_, err := chain.Vision(ctx, &VisionRequest{Prompt: "test"})
	if err == nil {
		t.Fatal("Expected error when all providers fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
}

func TestChainStopsOnRejectedKey(t *testing.T) {
	ctx := context.Background()

	p1 := WithError(&APIError{StatusCode: 403, Message: "API key not valid", Provider: "gemini"})
	p2 := NewMock("never reached")

	chain, _ := NewChain(p1, p2)
	if _, err := chain.Vision(ctx, &VisionRequest{}); err == nil {
		t.Fatal("Expected error")
	}
	if p2.CallCount("Vision") != 0 {
		t.Error("second provider should not be tried after a rejected key")
	}
}

func TestChainContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p1 := WithError(context.Canceled)
	p2 := NewMock("never reached")

	chain, _ := NewChain(p1, p2)
	_, err := chain.Vision(ctx, &VisionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if p2.CallCount("Vision") != 0 {
		t.Error("second provider should not be tried after cancellation")
	}
}

func TestChainHealth(t *testing.T) {
	ctx := context.Background()

	chain, _ := NewChain(WithError(errors.New("down")), NewMock("ok"))
	if err := chain.Health(ctx); err != nil {
		t.Errorf("Health should pass with one healthy provider: %v", err)
	}

	chain, _ = NewChain(WithError(errors.New("down")))
	if err := chain.Health(ctx); err == nil {
		t.Error("Health should fail when every provider is down")
	}
}

func TestChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v", err)
	}
	if _, err := NewGeminiChain(nil, WithAPIKey("k")); !errors.Is(err, ErrNoModel) {
		t.Errorf("err = %v", err)
	}
}

func TestChainClose(t *testing.T) {
	p1, p2 := NewMock("a"), NewMock("b")
	chain, _ := NewChain(p1, p2)
	if err := chain.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p1.CallCount("Close") != 1 || p2.CallCount("Close") != 1 {
		t.Error("every provider should be closed")
	}
}

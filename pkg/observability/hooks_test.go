package observability

import (
	"context"
	"testing"
	"time"
)

type recordingGenHooks struct {
	NoopGenerationHooks
	items int
}

func (h *recordingGenHooks) OnItemSolved(ctx context.Context, index int, d time.Duration) {
	h.items++
}

type recordingCacheHooks struct {
	NoopCacheHooks
	hits int
}

func (h *recordingCacheHooks) OnCacheHit(ctx context.Context, keyType string) {
	h.hits++
}

func TestDefaultHooksAreNoop(t *testing.T) {
	Reset()
	ctx := context.Background()

	// Must not panic.
	Generation().OnSessionStart(ctx, "s", 10)
	Generation().OnItemSolved(ctx, 0, time.Millisecond)
	Cache().OnCacheMiss(ctx, "trait")
	Pool().OnWorkerRestart(ctx, 1, 2, nil)
}

func TestSetAndGetHooks(t *testing.T) {
	t.Cleanup(Reset)
	ctx := context.Background()

	gen := &recordingGenHooks{}
	SetGenerationHooks(gen)
	Generation().OnItemSolved(ctx, 0, time.Millisecond)
	Generation().OnItemSolved(ctx, 1, time.Millisecond)
	if gen.items != 2 {
		t.Errorf("items = %d, want 2", gen.items)
	}

	ch := &recordingCacheHooks{}
	SetCacheHooks(ch)
	Cache().OnCacheHit(ctx, "trait")
	if ch.hits != 1 {
		t.Errorf("hits = %d, want 1", ch.hits)
	}
}

func TestSetNilKeepsCurrent(t *testing.T) {
	t.Cleanup(Reset)

	gen := &recordingGenHooks{}
	SetGenerationHooks(gen)
	SetGenerationHooks(nil)
	if Generation() != GenerationHooks(gen) {
		t.Error("nil registration should keep the current hooks")
	}
}

func TestReset(t *testing.T) {
	SetGenerationHooks(&recordingGenHooks{})
	Reset()
	if _, ok := Generation().(NoopGenerationHooks); !ok {
		t.Error("Reset should restore noop hooks")
	}
}

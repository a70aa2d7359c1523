package generate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

// tinyPNG returns a 2x2 PNG for trait image payloads.
func tinyPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// pairProject is the two-layer fixture: BASE with 2 traits, HEAD with 3,
// and one active uniqueness combination over both.
func pairProject(t *testing.T) *model.ConstraintModel {
	t.Helper()
	img := tinyPNG(t, color.NRGBA{R: 255, A: 255})
	p := model.Project{
		Name: "Pairs",
		Layers: []model.Layer{
			{ID: "base", Name: "Base", Order: 0, Traits: []model.Trait{
				{ID: "b1", Name: "Base One", Weight: 1, Image: img},
				{ID: "b2", Name: "Base Two", Weight: 1, Image: img},
			}},
			{ID: "head", Name: "Head", Order: 1, Traits: []model.Trait{
				{ID: "h1", Name: "Head One", Weight: 1, Image: img},
				{ID: "h2", Name: "Head Two", Weight: 1, Image: img},
				{ID: "h3", Name: "Head Three", Weight: 1, Image: img},
			}},
		},
		Combinations: []model.LayerCombination{
			{ID: "pair", Layers: []model.LayerID{"base", "head"}, Active: true},
		},
	}
	m, err := model.NewConstraintModel(p)
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}
	return m
}

func TestSessionGeneratesFullCollection(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{Size: 6, SkipCompose: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}

	// all 6 distinct (base, head) pairs, each exactly once
	seen := map[string]bool{}
	for _, it := range items {
		key := string(it.Assignment["base"]) + "/" + string(it.Assignment["head"])
		if seen[key] {
			t.Errorf("pair %s generated twice", key)
		}
		seen[key] = true
	}
	if len(seen) != 6 {
		t.Errorf("got %d distinct pairs, want 6", len(seen))
	}
}

func TestSessionCapacityPreCheck(t *testing.T) {
	m := pairProject(t)
	_, err := NewSession(m, Options{Size: 7, SkipCompose: true})
	if err == nil {
		t.Fatal("expected capacity error for size 7 over a 6-pair combination")
	}
	if errors.GetCode(err) != errors.ErrCodeCapacityExceeded {
		t.Errorf("code = %s, want CAPACITY_EXCEEDED", errors.GetCode(err))
	}
	// the diagnostic names the limiting combination and its layers
	msg := err.Error()
	if !strings.Contains(msg, "pair") || !strings.Contains(msg, "base+head") {
		t.Errorf("diagnostic missing combination detail: %s", msg)
	}
}

func TestSessionIndexOrdering(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{
		Size:         6,
		OutputWidth:  4,
		OutputHeight: 4,
		Capabilities: HostCapabilities{Cores: 4},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}
	for i, it := range items {
		if it.Index != i+1 {
			t.Errorf("position %d has index %d, want %d", i, it.Index, i+1)
		}
		if len(it.Image) == 0 {
			t.Errorf("item %d has no image", it.Index)
		}
	}
}

func TestSessionExhaustionMidRun(t *testing.T) {
	// the forbid rule shrinks the real pair space to 4 while the capacity
	// product stays at 6, so the pre-check passes and the solver exhausts
	// mid-run
	img := tinyPNG(t, color.NRGBA{A: 255})
	p := model.Project{
		Name: "Tight",
		Layers: []model.Layer{
			{ID: "base", Order: 0, Traits: []model.Trait{
				{ID: "b1", Weight: 1, Image: img},
				{ID: "b2", Weight: 1, Image: img},
			}},
			{ID: "head", Order: 1, Traits: []model.Trait{
				{ID: "h1", Weight: 1, Image: img},
				{ID: "h2", Weight: 1, Image: img},
				{ID: "h3", Weight: 1, Image: img},
			}},
		},
		Rules: []model.RulerRule{
			{Ruler: "b2", Target: "head", Forbidden: []model.TraitID{"h2", "h3"}},
		},
		Combinations: []model.LayerCombination{
			{ID: "pair", Layers: []model.LayerID{"base", "head"}, Active: true},
		},
	}
	m, err := model.NewConstraintModel(p)
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}

	sess, err := NewSession(m, Options{Size: 5, SkipCompose: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err == nil {
		t.Fatal("expected exhaustion for size 5 over 4 reachable pairs")
	}
	if errors.GetCode(err) != errors.ErrCodeSolverExhausted {
		t.Errorf("code = %s, want SOLVER_EXHAUSTED", errors.GetCode(err))
	}
	// partial output up to the failure point is still delivered
	if len(items) != 4 {
		t.Errorf("got %d partial items, want 4", len(items))
	}
}

func TestSessionCancellation(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{Size: 6, SkipCompose: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sess.Run(ctx)
	if errors.GetCode(err) != errors.ErrCodeCancelled {
		t.Errorf("code = %s, want CANCELLED", errors.GetCode(err))
	}

	var last Event
	for ev := range sess.Events() {
		last = ev
	}
	if last.Type != EventCancelled {
		t.Errorf("terminal event = %s, want cancelled", last.Type)
	}
}

// blockingCompositor stalls until its context dies.
type blockingCompositor struct{}

func (blockingCompositor) Compose(ctx context.Context, layers [][]byte, w, h int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingCompositor) Preview(ctx context.Context, base, overlay []byte, w, h int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionStallWatchdog(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{
		Size:         2,
		StallTimeout: 50 * time.Millisecond,
		Compositor:   blockingCompositor{},
		Capabilities: HostCapabilities{Cores: 1},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = sess.Run(ctx)
	if errors.GetCode(err) != errors.ErrCodeSessionStalled {
		t.Errorf("code = %s, want SESSION_STALLED, err = %v", errors.GetCode(err), err)
	}
}

func TestSessionChunkLargerThanPoolQueue(t *testing.T) {
	// one worker, one chunk covering the whole collection: the chunk is
	// larger than the pool's queued-plus-in-flight capacity, so the run
	// only completes if submission and result draining interleave
	m := pairProject(t)
	sess, err := NewSession(m, Options{
		Size:         6,
		ChunkSize:    6,
		OutputWidth:  4,
		OutputHeight: 4,
		StallTimeout: 2 * time.Second,
		Capabilities: HostCapabilities{Cores: 2},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}
	for _, it := range items {
		if len(it.Image) == 0 {
			t.Errorf("item %d has no image", it.Index)
		}
	}

	var sawComposing bool
	for ev := range sess.Events() {
		if ev.Type == EventProgress && ev.Status == StatusComposing {
			sawComposing = true
		}
	}
	if !sawComposing {
		t.Error("no progress event reported the compositing phase")
	}
}

// slowCompositor sleeps per job but keeps producing results.
type slowCompositor struct{ delay time.Duration }

func (c slowCompositor) Compose(ctx context.Context, layers [][]byte, w, h int) ([]byte, error) {
	select {
	case <-time.After(c.delay):
		return []byte{1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c slowCompositor) Preview(ctx context.Context, base, overlay []byte, w, h int) ([]byte, error) {
	return c.Compose(ctx, nil, w, h)
}

func TestSessionSlowComposeIsNotAStall(t *testing.T) {
	// the whole chunk takes longer than the stall window, but every worker
	// completion counts as forward progress, so the watchdog must not fire
	m := pairProject(t)
	sess, err := NewSession(m, Options{
		Size:         4,
		ChunkSize:    4,
		StallTimeout: 200 * time.Millisecond,
		Compositor:   slowCompositor{delay: 60 * time.Millisecond},
		Capabilities: HostCapabilities{Cores: 2},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(items) != 4 {
		t.Errorf("got %d items, want 4", len(items))
	}
}

func TestSessionEvents(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{Size: 6, SkipCompose: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var progress, solving int
	var terminal Event
	for ev := range sess.Events() {
		switch ev.Type {
		case EventProgress:
			progress++
			if ev.Total != 6 {
				t.Errorf("progress total = %d, want 6", ev.Total)
			}
			if ev.Status == StatusSolving {
				solving++
			}
		default:
			terminal = ev
		}
	}
	if progress == 0 {
		t.Error("no progress events emitted")
	}
	if solving == 0 {
		t.Error("no progress event reported the solving phase")
	}
	if terminal.Type != EventComplete {
		t.Errorf("terminal event = %s, want complete", terminal.Type)
	}
	if terminal.Generated != 6 {
		t.Errorf("terminal generated = %d, want 6", terminal.Generated)
	}
}

func TestSessionMetadata(t *testing.T) {
	m := pairProject(t)
	sess, err := NewSession(m, Options{Size: 2, SkipCompose: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	items, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	md := items[0].Metadata
	if md.Name != "Pairs #1" {
		t.Errorf("name = %q, want %q", md.Name, "Pairs #1")
	}
	if len(md.Attributes) != 2 {
		t.Fatalf("got %d attributes, want 2", len(md.Attributes))
	}
	// attributes follow layer compositing order and use display names
	if md.Attributes[0].Layer != "Base" || md.Attributes[1].Layer != "Head" {
		t.Errorf("attribute layers = %v", md.Attributes)
	}
}

func TestSessionDeterministicAcrossRuns(t *testing.T) {
	assignments := func() []model.Assignment {
		m := pairProject(t)
		sess, err := NewSession(m, Options{Size: 6, SkipCompose: true, Seed: 7})
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		items, err := sess.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		out := make([]model.Assignment, len(items))
		for i, it := range items {
			out[i] = it.Assignment
		}
		return out
	}

	first := assignments()
	second := assignments()
	for i := range first {
		for layer, trait := range first[i] {
			if second[i][layer] != trait {
				t.Fatalf("item %d differs between identical runs: %v vs %v", i+1, first[i], second[i])
			}
		}
	}
}

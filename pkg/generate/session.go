// Package generate drives the constraint solver across a full collection.
//
// This package implements the solve → compose → report loop shared by the
// CLI and API entry points. A [Session] owns one run: it pre-checks the
// uniqueness capacity against the requested size, solves assignments one
// at a time in adaptively sized chunks, hands each chunk to the worker
// pool for compositing, and re-sequences completions by item index before
// folding them into the output set.
//
// # Architecture
//
// Solving is sequential within a session because the uniqueness tracker
// is the single acceptance authority; only the downstream compositing
// work is parallel. The scheduler loop is:
//
//  1. Solve: pick the next chunk of assignments, one solver call each
//  2. Compose: submit the chunk to the worker pool, await every result
//  3. Report: emit a progress event, adapt the chunk size, repeat
//
// # Usage
//
// Create a Session and execute it:
//
//	sess, err := generate.NewSession(m, generate.Options{Size: 100})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	items, err := sess.Run(ctx)
//
// Progress events are available on sess.Events() while Run is in flight.
package generate

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
	"github.com/layerforge/layerforge/pkg/observability"
	"github.com/layerforge/layerforge/pkg/pool"
	"github.com/layerforge/layerforge/pkg/solver"
)

// Item is one generated collection member.
type Item struct {
	// Index is the 1-based position in the collection.
	Index int `json:"index"`

	// Assignment is the accepted layer to trait mapping.
	Assignment model.Assignment `json:"assignment"`

	// Image is the composited PNG, nil when composing was skipped.
	Image []byte `json:"-"`

	// Metadata is the formatted per-item record.
	Metadata model.Metadata `json:"metadata"`
}

// Session is one generation run. Create with [NewSession]; a Session is
// single-use and must not be shared across concurrent Run calls.
type Session struct {
	// ID uniquely identifies the session in logs and events.
	ID string

	opts    Options
	model   *model.ConstraintModel
	tracker *solver.Tracker
	solver  *solver.Solver

	events chan Event

	lastProgress atomic.Int64 // unix nanos of the last accepted assignment
	stalled      atomic.Bool
}

// NewSession validates the options, runs the capacity pre-check, and
// prepares solver state. Configuration errors surface here, before any
// item is generated.
func NewSession(m *model.ConstraintModel, opts Options) (*Session, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if err := CheckCapacity(m, opts.Size); err != nil {
		return nil, err
	}
	tracker := solver.NewTracker(m.Combinations())
	return &Session{
		ID:      uuid.NewString(),
		opts:    opts,
		model:   m,
		tracker: tracker,
		solver:  solver.New(m, tracker, opts.Seed),
		events:  make(chan Event, 64),
	}, nil
}

// Events returns the session's event stream. Events are dropped rather
// than blocking the run when the consumer falls behind; the channel is
// closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run executes the session until the collection is complete, the solver
// exhausts, the caller cancels, or the stall watchdog fires.
//
// On error the items generated so far are still returned; the session has
// not mutated any external state, so the partial output is a usable
// recoverable artifact. Cancellation is reported as an error with code
// CANCELLED so callers can distinguish it from a failure.
func (s *Session) Run(ctx context.Context) (items []Item, err error) {
	logger := s.opts.Logger.With("session", s.ID, "size", s.opts.Size, "seed", s.opts.Seed)
	start := time.Now()

	observability.Generation().OnSessionStart(ctx, s.ID, s.opts.Size)
	defer func() {
		observability.Generation().OnSessionEnd(ctx, s.ID, len(items), time.Since(start), err)
		s.finish(len(items), err)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.touch()
	go s.watchdog(ctx, cancel)

	workers := s.opts.Capabilities.Workers()
	p := pool.New(pool.Options{Workers: workers})
	p.Start(ctx)
	defer p.Close()

	logger.Debug("session started", "workers", workers, "chunk", s.opts.initialChunkSize())

	total := s.opts.Size
	chunk := s.opts.initialChunkSize()
	items = make([]Item, 0, total)

	for len(items) < total {
		if cerr := s.interrupted(ctx); cerr != nil {
			return items, cerr
		}

		n := min(chunk, total-len(items))
		s.emit(Event{Type: EventProgress, SessionID: s.ID, Generated: len(items), Total: total, Status: StatusSolving})
		assignments, serr := s.solveChunk(ctx, len(items), n)
		if serr != nil {
			// assignments solved before the failure are still composed so
			// the partial output is complete up to the failure point
			if len(assignments) > 0 {
				if done, cerr := s.composeChunk(ctx, p, assignments, len(items)); cerr == nil {
					items = append(items, done...)
				}
			}
			return items, serr
		}

		if !s.opts.SkipCompose {
			s.emit(Event{Type: EventProgress, SessionID: s.ID, Generated: len(items), Total: total, Status: StatusComposing})
		}
		done, cerr := s.composeChunk(ctx, p, assignments, len(items))
		if cerr != nil {
			return items, cerr
		}
		items = append(items, done...)

		observability.Generation().OnChunkComplete(ctx, n, len(items), total)
		status := StatusSolving
		if len(items) == total {
			status = ""
		}
		s.emit(Event{Type: EventProgress, SessionID: s.ID, Generated: len(items), Total: total, Status: status})
		logger.Debug("chunk complete", "generated", len(items), "chunk", n)

		chunk = s.nextChunkSize(chunk)
	}

	logger.Info("collection complete", "items", len(items), "elapsed", time.Since(start))
	return items, nil
}

// solveChunk runs the solver sequentially for up to n items starting
// after item offset. Assignments solved before an error are returned
// alongside it.
func (s *Session) solveChunk(ctx context.Context, offset, n int) ([]model.Assignment, error) {
	assignments := make([]model.Assignment, 0, n)
	for i := range n {
		if cerr := s.interrupted(ctx); cerr != nil {
			return assignments, cerr
		}
		index := offset + i + 1
		solveStart := time.Now()
		a, err := s.solver.Solve(index)
		if err != nil {
			return assignments, errors.Wrap(errors.GetCode(err), err, "item %d of %d", index, s.opts.Size)
		}
		observability.Generation().OnItemSolved(ctx, index, time.Since(solveStart))
		s.touch()
		assignments = append(assignments, a)
	}
	return assignments, nil
}

// composeChunk turns assignments into finished Items. Compositing runs on
// the worker pool; results are re-sequenced by item index before return,
// so output order never depends on worker completion order.
func (s *Session) composeChunk(ctx context.Context, p *pool.Pool, assignments []model.Assignment, offset int) ([]Item, error) {
	items := make([]Item, len(assignments))
	for i, a := range assignments {
		items[i] = Item{
			Index:      offset + i + 1,
			Assignment: a,
			Metadata:   s.metadataFor(offset+i+1, a),
		}
	}
	if s.opts.SkipCompose {
		return items, nil
	}

	byIndex := make(map[int]int, len(items)) // item index -> slice position
	jobs := make([]pool.Job, len(items))
	for i, it := range items {
		byIndex[it.Index] = i
		layers := s.layerImages(it.Assignment)
		jobs[i] = pool.Job{Index: it.Index, Run: func(jctx context.Context) ([]byte, error) {
			return s.opts.Compositor.Compose(jctx, layers, s.opts.OutputWidth, s.opts.OutputHeight)
		}}
	}

	// A chunk can exceed the pool's queue capacity, so submission must not
	// block the receive loop. Submit only fails on cancellation, which the
	// receive loop observes through ctx.
	go func() {
		for _, job := range jobs {
			if p.Submit(job) != nil {
				return
			}
		}
	}()

	for received := 0; received < len(items); received++ {
		select {
		case res, ok := <-p.Results():
			if !ok {
				return nil, errors.New(errors.ErrCodeInternal, "worker pool closed mid-chunk")
			}
			if res.Err != nil {
				return nil, res.Err
			}
			// each completion is forward progress for the watchdog
			s.touch()
			items[byIndex[res.Index]].Image = res.Data
		case <-ctx.Done():
			// in-flight jobs are abandoned; partial chunk results are
			// discarded rather than awaited
			return nil, s.interrupted(ctx)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	return items, nil
}

// layerImages collects the chosen trait payloads in compositing order,
// bottom layer first. Omitted optional layers contribute nothing.
func (s *Session) layerImages(a model.Assignment) [][]byte {
	var out [][]byte
	for _, layer := range s.model.Layers() {
		traitID, ok := a[layer.ID]
		if !ok {
			continue
		}
		if t := s.model.Trait(traitID); t != nil {
			out = append(out, t.Image)
		}
	}
	return out
}

// metadataFor builds the per-item metadata record. Attributes follow the
// layer compositing order using display names.
func (s *Session) metadataFor(index int, a model.Assignment) model.Metadata {
	project := s.model.Project()
	md := model.Metadata{
		Name:        nameFor(project.Name, index),
		Description: project.Description,
	}
	for _, layer := range s.model.Layers() {
		traitID, ok := a[layer.ID]
		if !ok {
			continue
		}
		trait := s.model.Trait(traitID)
		if trait == nil {
			continue
		}
		md.Attributes = append(md.Attributes, model.Attribute{
			Layer: displayName(layer.Name, string(layer.ID)),
			Trait: displayName(trait.Name, string(trait.ID)),
		})
	}
	return md
}

// nextChunkSize adapts the chunk size between chunks. Under heap pressure
// the chunk halves and the cache sheds weight; with headroom it grows by
// half. Pinned chunk sizes never change.
func (s *Session) nextChunkSize(current int) int {
	if !s.opts.adaptive() {
		return current
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	budget := s.opts.Capabilities.MemoryBudget()

	if int64(ms.HeapAlloc) > budget*3/4 {
		if shrinker, ok := s.opts.Cache.(interface{ Shrink(int64) }); ok {
			shrinker.Shrink(budget / 4)
		}
		if next := current / 2; next >= MinChunkSize {
			return next
		}
		return MinChunkSize
	}

	if next := current * 3 / 2; next <= MaxChunkSize {
		return next
	}
	return MaxChunkSize
}

// interrupted translates a cancelled context into the session's terminal
// error, distinguishing caller cancellation from a watchdog abort.
func (s *Session) interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if s.stalled.Load() {
		return errors.New(errors.ErrCodeSessionStalled,
			"no forward progress within %s", s.opts.StallTimeout)
	}
	return errors.Wrap(errors.ErrCodeCancelled, ctx.Err(), "session cancelled")
}

// watchdog aborts the session when no assignment has been accepted within
// the stall window.
func (s *Session) watchdog(ctx context.Context, cancel context.CancelFunc) {
	interval := s.opts.StallTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastProgress.Load())
			if time.Since(last) > s.opts.StallTimeout {
				s.stalled.Store(true)
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// touch records forward progress for the watchdog.
func (s *Session) touch() {
	s.lastProgress.Store(time.Now().UnixNano())
}

// finish emits the terminal event and closes the event stream.
func (s *Session) finish(generated int, err error) {
	ev := Event{SessionID: s.ID, Generated: generated, Total: s.opts.Size}
	switch {
	case err == nil:
		ev.Type = EventComplete
	case errors.GetCode(err) == errors.ErrCodeCancelled:
		ev.Type = EventCancelled
	default:
		ev.Type = EventError
		ev.Error = err.Error()
	}
	s.emit(ev)
	close(s.events)
}

// emit delivers an event without ever blocking the run.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// nameFor formats an item's display name.
func nameFor(project string, index int) string {
	if project == "" {
		project = "Item"
	}
	return fmt.Sprintf("%s #%d", project, index)
}

// displayName prefers the human name, falling back to the identifier.
func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

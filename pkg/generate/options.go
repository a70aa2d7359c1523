package generate

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/layerforge/layerforge/pkg/cache"
	"github.com/layerforge/layerforge/pkg/compose"
	"github.com/layerforge/layerforge/pkg/errors"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Tests
// =============================================================================

const (
	// DefaultOutputWidth is the default output image width in pixels.
	DefaultOutputWidth = 600

	// DefaultOutputHeight is the default output image height in pixels.
	DefaultOutputHeight = 600

	// DefaultSeed is the default random seed for reproducibility.
	DefaultSeed = uint64(42)

	// MaxCollectionSize caps a single session. Larger collections should be
	// split across sessions by the caller.
	MaxCollectionSize = 10000

	// MinChunkSize is the smallest chunk the scheduler will shrink to.
	MinChunkSize = 10

	// MaxChunkSize is the largest chunk the scheduler will grow to.
	MaxChunkSize = 200

	// DefaultStallTimeout is the forward-progress window. A session that
	// accepts no assignment within this window is aborted.
	DefaultStallTimeout = 2 * time.Minute
)

// =============================================================================
// Options - Session Configuration
// =============================================================================

// Options contains all configuration for a generation session.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Size is the requested collection size. Required, 1..MaxCollectionSize.
	Size int `json:"size"`

	// Output dimensions in pixels.
	OutputWidth  int `json:"output_width,omitempty"`
	OutputHeight int `json:"output_height,omitempty"`

	// Seed drives the deterministic weighted candidate ordering. Two runs
	// with the same project, size, and seed produce the same assignments.
	Seed uint64 `json:"seed,omitempty"`

	// ChunkSize pins the chunk size, disabling adaptation. Zero derives
	// the initial size from Capabilities and adapts during the run.
	ChunkSize int `json:"chunk_size,omitempty"`

	// StallTimeout overrides the forward-progress window.
	StallTimeout time.Duration `json:"stall_timeout,omitempty"`

	// SkipCompose solves assignments without producing image bytes.
	// Items then carry a nil Image. Useful for dry runs and previews of
	// metadata only.
	SkipCompose bool `json:"skip_compose,omitempty"`

	// Capabilities describe the host. The zero value is filled by Detect.
	Capabilities HostCapabilities `json:"-"`

	// Runtime options (not serialized)
	Logger     *log.Logger        `json:"-"`
	Compositor compose.Compositor `json:"-"`
	Cache      cache.Cache        `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect
// as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Size < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "collection size must be at least 1, got %d", o.Size)
	}
	if o.Size > MaxCollectionSize {
		return errors.New(errors.ErrCodeInvalidConfig, "collection size %d exceeds the per-session maximum %d", o.Size, MaxCollectionSize)
	}
	if o.OutputWidth < 0 || o.OutputHeight < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "output dimensions must be positive, got %dx%d", o.OutputWidth, o.OutputHeight)
	}
	if o.ChunkSize < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "chunk size must not be negative, got %d", o.ChunkSize)
	}

	if o.OutputWidth == 0 {
		o.OutputWidth = DefaultOutputWidth
	}
	if o.OutputHeight == 0 {
		o.OutputHeight = DefaultOutputHeight
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.Capabilities == (HostCapabilities{}) {
		o.Capabilities = Detect()
	}
	if o.Cache == nil {
		// bounded in-process cache sized so the scheduler's Shrink target
		// under memory pressure stays within the host budget
		o.Cache = cache.NewMemoryCache(o.Capabilities.MemoryBudget() / 4)
	}
	if o.Compositor == nil {
		o.Compositor = compose.NewEngine(o.Cache, nil)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// initialChunkSize returns the first chunk size for this session.
func (o *Options) initialChunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return o.Capabilities.InitialChunkSize()
}

// adaptive reports whether the scheduler may resize chunks mid-run.
func (o *Options) adaptive() bool {
	return o.ChunkSize == 0
}

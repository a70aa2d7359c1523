// Package cache provides the byte-buffer caches used during generation.
//
// The primary consumer is the compositing path: decoded trait images and
// composited item buffers are expensive to recompute, and a collection of
// thousands of items reuses the same few hundred trait images over and
// over. Caching is a pure performance optimization; every backend may drop
// entries at any time without affecting generation correctness.
//
// Backends:
//   - MemoryCache: bounded in-process cache with TTL and recency eviction,
//     the default for generation sessions
//   - FileCache: persistent cache for CLI usage across runs
//   - RedisCache: shared cache for server deployments
//   - NullCache: caching disabled
//
// Keys are produced by a Keyer so trait buffers and composited artifacts
// stay in distinct namespaces and option changes invalidate naturally.
package cache

import (
	"context"
	"time"
)

// TTLs per key class. Trait buffers are tied to source images that change
// rarely; composited items depend on the full option set and expire faster.
const (
	TTLTrait    = 24 * time.Hour
	TTLArtifact = 6 * time.Hour
)

// Cache stores opaque byte buffers under string keys with per-entry TTLs.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// TraitKeyOpts parameterize a decoded trait buffer.
type TraitKeyOpts struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ArtifactKeyOpts parameterize a composited item buffer.
type ArtifactKeyOpts struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Keyer generates cache keys for the generation pipeline.
type Keyer interface {
	// TraitKey keys a decoded, size-normalized trait image buffer by the
	// content hash of its source bytes.
	TraitKey(contentHash string, opts TraitKeyOpts) string

	// ArtifactKey keys a composited item by the hash of its assignment.
	ArtifactKey(assignmentHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer is the standard Keyer implementation.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// TraitKey generates a key for a decoded trait buffer.
func (k *DefaultKeyer) TraitKey(contentHash string, opts TraitKeyOpts) string {
	return hashKey("trait", contentHash, opts)
}

// ArtifactKey generates a key for a composited item.
func (k *DefaultKeyer) ArtifactKey(assignmentHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", assignmentHash, opts)
}

// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register hooks
// at startup to receive events about generation sessions, cache operations,
// and worker-pool health.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetGenerationHooks(&myGenerationHooks{})
//	    observability.SetPoolHooks(&myPoolHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Generation().OnItemSolved(ctx, index, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Generation Hooks
// =============================================================================

// GenerationHooks receives events from generation sessions.
type GenerationHooks interface {
	// OnSessionStart fires after the capacity pre-check passes.
	OnSessionStart(ctx context.Context, sessionID string, total int)

	// OnItemSolved fires once per accepted assignment.
	OnItemSolved(ctx context.Context, index int, duration time.Duration)

	// OnChunkComplete fires after a chunk's compositing results arrive.
	OnChunkComplete(ctx context.Context, chunkSize, generated, total int)

	// OnSessionEnd fires once with the terminal outcome.
	OnSessionEnd(ctx context.Context, sessionID string, generated int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Worker Pool Hooks
// =============================================================================

// PoolHooks receives events from the compositing worker pool.
type PoolHooks interface {
	// OnWorkerStart records a worker (re)starting.
	OnWorkerStart(ctx context.Context, workerID int)

	// OnWorkerRestart records a worker being restarted after a fault.
	OnWorkerRestart(ctx context.Context, workerID int, restarts int, cause error)

	// OnJobRetry records a job being retried after a fault.
	OnJobRetry(ctx context.Context, itemIndex, attempt int, cause error)

	// OnWorkerUnhealthy records a busy worker whose heartbeat has gone
	// silent for longer than the configured timeout.
	OnWorkerUnhealthy(ctx context.Context, workerID int, silence time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopGenerationHooks is a no-op implementation of GenerationHooks.
type NoopGenerationHooks struct{}

func (NoopGenerationHooks) OnSessionStart(context.Context, string, int)                      {}
func (NoopGenerationHooks) OnItemSolved(context.Context, int, time.Duration)                 {}
func (NoopGenerationHooks) OnChunkComplete(context.Context, int, int, int)                   {}
func (NoopGenerationHooks) OnSessionEnd(context.Context, string, int, time.Duration, error)  {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopPoolHooks is a no-op implementation of PoolHooks.
type NoopPoolHooks struct{}

func (NoopPoolHooks) OnWorkerStart(context.Context, int)                      {}
func (NoopPoolHooks) OnWorkerRestart(context.Context, int, int, error)        {}
func (NoopPoolHooks) OnJobRetry(context.Context, int, int, error)             {}
func (NoopPoolHooks) OnWorkerUnhealthy(context.Context, int, time.Duration)   {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	generationHooks GenerationHooks = NoopGenerationHooks{}
	cacheHooks      CacheHooks      = NoopCacheHooks{}
	poolHooks       PoolHooks       = NoopPoolHooks{}
	hooksMu         sync.RWMutex
)

// SetGenerationHooks registers custom generation hooks.
// This should be called once at application startup before any sessions run.
func SetGenerationHooks(h GenerationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		generationHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetPoolHooks registers custom worker-pool hooks.
// This should be called once at application startup before any pool starts.
func SetPoolHooks(h PoolHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		poolHooks = h
	}
}

// Generation returns the registered generation hooks.
func Generation() GenerationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return generationHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Pool returns the registered worker-pool hooks.
func Pool() PoolHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return poolHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	generationHooks = NoopGenerationHooks{}
	cacheHooks = NoopCacheHooks{}
	poolHooks = NoopPoolHooks{}
}

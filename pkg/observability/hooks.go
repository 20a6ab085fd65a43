// Package observability provides hooks for metrics and tracing.
//
// The engines and the pipeline emit events through hook interfaces; backends
// are registered once at startup. The core packages therefore carry no
// dependency on any metrics framework. [prom] is the Prometheus backend.
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := prom.New(prometheus.NewRegistry())
//	    m.Install()
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Engine().OnIndexStart(ctx, n)
//	// ... build index ...
//	observability.Engine().OnIndexComplete(ctx, n, edges, duration, err)
//
// [prom]: github.com/matzehuels/nlink/pkg/observability/prom
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Engine Hooks
// =============================================================================

// EngineHooks receives events from the analysis engines.
type EngineHooks interface {
	// Rule index events
	OnIndexStart(ctx context.Context, n int)
	OnIndexComplete(ctx context.Context, n int, edges int, duration time.Duration, err error)

	// OnTrace records one forward walk.
	OnTrace(ctx context.Context, n int, steps int, kind string)

	// OnBasin records one basin mapping.
	OnBasin(ctx context.Context, n int, size int, depth int, truncated bool, duration time.Duration, err error)

	// OnBranches records one branch decomposition.
	OnBranches(ctx context.Context, n int, branches int, duration time.Duration, err error)

	// OnMultiplexPass records one rule pass of a multiplex run.
	OnMultiplexPass(ctx context.Context, n int, terminals int, tunnels int, duration time.Duration)
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
// Job Hooks
// =============================================================================

// JobHooks receives events from the job manager.
type JobHooks interface {
	// OnJobStart records that a job left the queue.
	OnJobStart(ctx context.Context, kind string)

	// OnJobComplete records a finished job with its final state.
	OnJobComplete(ctx context.Context, kind string, state string, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopEngineHooks is a no-op implementation of EngineHooks.
type NoopEngineHooks struct{}

func (NoopEngineHooks) OnIndexStart(context.Context, int)                                 {}
func (NoopEngineHooks) OnIndexComplete(context.Context, int, int, time.Duration, error)   {}
func (NoopEngineHooks) OnTrace(context.Context, int, int, string)                         {}
func (NoopEngineHooks) OnBasin(context.Context, int, int, int, bool, time.Duration, error) {}
func (NoopEngineHooks) OnBranches(context.Context, int, int, time.Duration, error)        {}
func (NoopEngineHooks) OnMultiplexPass(context.Context, int, int, int, time.Duration)     {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopJobHooks is a no-op implementation of JobHooks.
type NoopJobHooks struct{}

func (NoopJobHooks) OnJobStart(context.Context, string)                           {}
func (NoopJobHooks) OnJobComplete(context.Context, string, string, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	engineHooks EngineHooks = NoopEngineHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	jobHooks    JobHooks    = NoopJobHooks{}
	hooksMu     sync.RWMutex
)

// SetEngineHooks registers custom engine hooks.
// This should be called once at application startup before any analysis runs.
func SetEngineHooks(h EngineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		engineHooks = h
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

// SetJobHooks registers custom job hooks.
func SetJobHooks(h JobHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		jobHooks = h
	}
}

// Engine returns the registered engine hooks.
func Engine() EngineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return engineHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Jobs returns the registered job hooks.
func Jobs() JobHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return jobHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	engineHooks = NoopEngineHooks{}
	cacheHooks = NoopCacheHooks{}
	jobHooks = NoopJobHooks{}
}

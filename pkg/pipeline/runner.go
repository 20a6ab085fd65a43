package pipeline

import (
	"cmp"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/branch"
	"github.com/matzehuels/nlink/pkg/cache"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/multiplex"
	"github.com/matzehuels/nlink/pkg/observability"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
	"github.com/matzehuels/nlink/pkg/trace"
)

// Cache key types reported to the cache hooks.
const (
	keyIndex     = "index"
	keyTerminals = "terminals"
	keyBasin     = "basin"
)

// Runner executes engine operations over one store with caching.
//
// A Runner is safe for concurrent use. Concurrent requests for the same N
// share one index build.
type Runner struct {
	Store  *pagestore.Store
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Refresh skips cache reads. Results are still written back.
	Refresh bool

	// MaxIndices bounds the index memo. 0 means DefaultMaxIndices, a
	// negative value disables eviction.
	MaxIndices int

	// BasinTTL is the expiry of cached basins. 0 means cache.TTLBasin.
	BasinTTL time.Duration

	mu      sync.Mutex
	indices map[int]*rules.Index
	order   []int
	group   singleflight.Group
}

// NewRunner creates a runner over s.
// If keyer is nil, a DefaultKeyer is used.
// If c is nil, a NullCache is used (caching disabled).
func NewRunner(s *pagestore.Store, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Store:   s,
		Cache:   c,
		Keyer:   keyer,
		Logger:  logger,
		indices: make(map[int]*rules.Index),
	}
}

// =============================================================================
// Rule indices
// =============================================================================

// Index returns the rule index for n. It implements multiplex.IndexSource.
func (r *Runner) Index(ctx context.Context, n int) (*rules.Index, error) {
	ix, _, err := r.IndexWithCacheInfo(ctx, n)
	return ix, err
}

type indexLoad struct {
	ix  *rules.Index
	hit bool
}

// IndexWithCacheInfo returns the rule index for n and whether it came from
// the memo or the cache.
func (r *Runner) IndexWithCacheInfo(ctx context.Context, n int) (*rules.Index, bool, error) {
	if err := errors.ValidateRule(n); err != nil {
		return nil, false, err
	}
	if ix := r.memo(n); ix != nil {
		return ix, true, nil
	}

	v, err, _ := r.group.Do(strconv.Itoa(n), func() (any, error) {
		if ix := r.memo(n); ix != nil {
			return indexLoad{ix, true}, nil
		}
		ix, hit, err := r.loadIndex(ctx, n)
		if err != nil {
			return nil, err
		}
		r.remember(n, ix)
		return indexLoad{ix, hit}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(indexLoad)
	return l.ix, l.hit, nil
}

func (r *Runner) loadIndex(ctx context.Context, n int) (*rules.Index, bool, error) {
	fp := r.Store.Fingerprint()
	key := r.Keyer.IndexKey(fp, n)

	if data, ok := r.cacheGet(ctx, keyIndex, key); ok {
		ix, err := rules.Unmarshal(data, r.Store, n)
		if err == nil {
			r.Logger.Debug("index cache hit", "n", n)
			return ix, true, nil
		}
		r.Logger.Warn("discarding cached index", "n", n, "err", err)
	}

	hooks := observability.Engine()
	hooks.OnIndexStart(ctx, n)
	start := time.Now()
	ix, err := rules.Build(ctx, r.Store, n)
	elapsed := time.Since(start)
	if err != nil {
		hooks.OnIndexComplete(ctx, n, 0, elapsed, err)
		return nil, false, err
	}
	hooks.OnIndexComplete(ctx, n, ix.EdgeCount(), elapsed, nil)
	r.Logger.Info("built rule index",
		"n", n,
		"pages", ix.Len(),
		"edges", ix.EdgeCount(),
		"halts", ix.HaltCount(),
		"duration", elapsed.Round(time.Millisecond))

	if data, err := ix.MarshalBinary(); err == nil {
		r.cacheSet(ctx, keyIndex, key, data, cache.TTLIndex)
	}
	return ix, false, nil
}

func (r *Runner) memo(n int) *rules.Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indices[n]
}

func (r *Runner) remember(n int, ix *rules.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indices == nil {
		r.indices = make(map[int]*rules.Index)
	}
	if _, ok := r.indices[n]; ok {
		return
	}
	r.indices[n] = ix
	r.order = append(r.order, n)

	limit := r.MaxIndices
	if limit == 0 {
		limit = DefaultMaxIndices
	}
	for limit > 0 && len(r.order) > limit {
		delete(r.indices, r.order[0])
		r.order = r.order[1:]
	}
}

// Forget drops the memoized index for n. Cached copies are kept.
func (r *Runner) Forget(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indices, n)
	for i, m := range r.order {
		if m == n {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// =============================================================================
// Engine operations
// =============================================================================

// Trace walks forward from start under rule n.
func (r *Runner) Trace(ctx context.Context, n int, start pagestore.PageID) (*trace.Result, error) {
	ix, err := r.Index(ctx, n)
	if err != nil {
		return nil, err
	}
	res, err := trace.Trace(ix, start)
	if err != nil {
		return nil, err
	}
	observability.Engine().OnTrace(ctx, n, res.Steps, res.Kind().String())
	r.Logger.Debug("traced", "n", n, "start", start, "terminal", res.Terminal, "steps", res.Steps)
	return res, nil
}

// Terminals lists every terminal of rule n in canonical order.
func (r *Runner) Terminals(ctx context.Context, n int) ([]terminal.Terminal, error) {
	ix, err := r.Index(ctx, n)
	if err != nil {
		return nil, err
	}
	key := r.Keyer.TerminalsKey(r.Store.Fingerprint(), n)
	if data, ok := r.cacheGet(ctx, keyTerminals, key); ok {
		var ts []terminal.Terminal
		if err := json.Unmarshal(data, &ts); err == nil {
			return ts, nil
		}
	}

	ts, err := trace.Terminals(ctx, ix)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ts); err == nil {
		r.cacheSet(ctx, keyTerminals, key, data, cache.TTLTerminals)
	}
	return ts, nil
}

// Basin maps the basin of t under rule n.
//
// Complete basins and basins truncated by depth or node budget are cached.
// A basin cut short by MaxDuration depends on machine load and is not.
func (r *Runner) Basin(ctx context.Context, n int, t terminal.Terminal, opts basin.Options) (*BasinResult, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	start := time.Now()
	ix, indexHit, err := r.IndexWithCacheInfo(ctx, n)
	if err != nil {
		return nil, err
	}

	key := r.Keyer.BasinKey(r.Store.Fingerprint(), n, t.Key(), cache.BasinKeyOpts{
		MaxDepth: opts.MaxDepth,
		MaxNodes: opts.MaxNodes,
	})
	if data, ok := r.cacheGet(ctx, keyBasin, key); ok {
		b, err := basin.Unmarshal(data, ix, t)
		if err == nil {
			return &BasinResult{Basin: b, Stats: Stats{IndexHit: indexHit, ResultHit: true, Elapsed: time.Since(start)}}, nil
		}
		r.Logger.Warn("discarding cached basin", "n", n, "terminal", t, "err", err)
	}

	b, err := basin.Map(ctx, ix, t, opts)
	hooks := observability.Engine()
	if err != nil {
		hooks.OnBasin(ctx, n, 0, 0, false, time.Since(start), err)
		return nil, err
	}
	hooks.OnBasin(ctx, n, b.Size(), b.MaxDepth(), b.Truncated, b.Elapsed, nil)
	r.Logger.Info("mapped basin",
		"n", n,
		"terminal", t,
		"nodes", b.Size(),
		"depth", b.MaxDepth(),
		"truncated", b.Reason,
		"duration", b.Elapsed.Round(time.Millisecond))

	if b.Reason != basin.ReasonTime {
		if data, err := b.MarshalBinary(); err == nil {
			r.cacheSet(ctx, keyBasin, key, data, cmp.Or(r.BasinTTL, cache.TTLBasin))
		}
	}
	return &BasinResult{Basin: b, Stats: Stats{IndexHit: indexHit, Elapsed: time.Since(start)}}, nil
}

// Branches maps the basin of t under rule n and decomposes it.
func (r *Runner) Branches(ctx context.Context, n int, t terminal.Terminal, bopts basin.Options, opts branch.Options) (*BasinResult, *branch.Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	br, err := r.Basin(ctx, n, t, bopts)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	res, err := branch.Analyze(ctx, br.Basin, opts)
	observability.Engine().OnBranches(ctx, n, branchCount(res), time.Since(start), err)
	if err != nil {
		return nil, nil, err
	}
	r.Logger.Info("decomposed basin",
		"n", n,
		"terminal", t,
		"branches", res.Summary.BranchCount,
		"gini", res.Summary.Gini,
		"single_trunk", res.Summary.SingleTrunk)
	return br, res, nil
}

func branchCount(res *branch.Result) int {
	if res == nil {
		return 0
	}
	return len(res.Branches)
}

// Multiplex runs the multiplex engine over ns, sourcing indices from r.
func (r *Runner) Multiplex(ctx context.Context, ns []int, opts multiplex.Options) (*multiplex.Result, error) {
	if opts.Source == nil {
		opts.Source = r
	}
	res, err := multiplex.Run(ctx, r.Store, ns, opts)
	if err != nil {
		return nil, err
	}
	hooks := observability.Engine()
	for _, p := range res.Passes {
		hooks.OnMultiplexPass(ctx, p.N, p.Terminals, p.Tunnels, p.Elapsed)
	}
	r.Logger.Info("multiplex complete",
		"ns", res.Ns,
		"tunnels", len(res.Tunnels),
		"transitions", len(res.Transitions),
		"truncated", res.Truncated)
	return res, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// =============================================================================
// Cache helpers
// =============================================================================

// cacheGet reads key unless Refresh is set. Backend errors count as misses.
func (r *Runner) cacheGet(ctx context.Context, keyType, key string) ([]byte, bool) {
	if r.Refresh {
		return nil, false
	}
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Debug("cache read failed", "type", keyType, "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

// cacheSet writes key. Cache failures never fail an operation.
func (r *Runner) cacheSet(ctx context.Context, keyType, key string, data []byte, ttl time.Duration) {
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "type", keyType, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

var _ multiplex.IndexSource = (*Runner)(nil)

package multiplex

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/progress"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/trace"
)

// =============================================================================
// Index sources
// =============================================================================

// IndexSource supplies the rule index for N. The pipeline passes its cached
// source so indices built for other commands are reused.
type IndexSource interface {
	Index(ctx context.Context, n int) (*rules.Index, error)
}

// IndexSourceFunc adapts a function to IndexSource.
type IndexSourceFunc func(ctx context.Context, n int) (*rules.Index, error)

// Index calls f.
func (f IndexSourceFunc) Index(ctx context.Context, n int) (*rules.Index, error) { return f(ctx, n) }

// BuildSource builds every index from scratch.
func BuildSource(s *pagestore.Store) IndexSource {
	return IndexSourceFunc(func(ctx context.Context, n int) (*rules.Index, error) {
		return rules.Build(ctx, s, n)
	})
}

// =============================================================================
// Options and results
// =============================================================================

// Options configures a multiplex run.
type Options struct {
	// Basin bounds every basin mapped during the run. Its Progress field is
	// ignored; per-pass progress goes to Progress.
	Basin basin.Options

	// Source supplies rule indices. Default: BuildSource over the store.
	Source IndexSource

	// Classifiers label tunnel transitions in order. Default:
	// DefaultClassifiers.
	Classifiers []Classifier

	// Progress receives one update per finished pass.
	Progress progress.Reporter

	// OnBasin, if set, is called with every mapped basin before it is
	// released.
	OnBasin func(*basin.Basin)

	validated bool
}

// ValidateAndSetDefaults fills in defaults.
func (o *Options) ValidateAndSetDefaults(s *pagestore.Store) error {
	if o.validated {
		return nil
	}
	o.Basin.Progress = nil
	if err := o.Basin.ValidateAndSetDefaults(); err != nil {
		return err
	}
	if o.Source == nil {
		o.Source = BuildSource(s)
	}
	if o.Classifiers == nil {
		o.Classifiers = DefaultClassifiers
	}
	o.Progress = progress.OrNop(o.Progress)
	o.validated = true
	return nil
}

// Pass summarizes one rule of the run.
type Pass struct {
	N          int           `json:"n"`
	Terminals  int           `json:"terminals"`
	Cycles     int           `json:"cycles"`
	Halts      int           `json:"halts"`
	Truncated  int           `json:"truncated_basins"`
	Unassigned int           `json:"unassigned_pages"`
	Tunnels    int           `json:"tunnels"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Transition is one terminal change of one page between adjacent rules.
type Transition struct {
	Page      pagestore.PageID `json:"page_id"`
	FromN     int              `json:"from_n"`
	ToN       int              `json:"to_n"`
	From      TerminalID       `json:"from"`
	To        TerminalID       `json:"to"`
	Mechanism Mechanism        `json:"mechanism"`
}

// Tunnel aggregates the transitions of one page over the run.
type Tunnel struct {
	Page pagestore.PageID `json:"page_id"`
	// Mechanism is the label of the page's first transition.
	Mechanism   Mechanism `json:"mechanism"`
	Transitions int       `json:"transitions"`
	// FromN and ToN span the first and last transition.
	FromN int `json:"from_n"`
	ToN   int `json:"to_n"`
}

// Result is the outcome of a multiplex run.
type Result struct {
	Ns          []int        `json:"ns"`
	Registry    *Registry    `json:"-"`
	Assignments *Assignments `json:"-"`
	Passes      []Pass       `json:"passes"`
	// Transitions are ordered by rule pair, then page id.
	Transitions []Transition `json:"transitions"`
	// Tunnels are ordered by page id.
	Tunnels []Tunnel `json:"tunnels"`
	// Truncated is set when any basin of any pass was truncated.
	Truncated bool `json:"truncated"`
}

// Assignments is the (page, N) -> terminal table.
type Assignments struct {
	store *pagestore.Store
	ns    []int
	cols  [][]TerminalID
}

// Row is one (page, N, terminal) triple.
type Row struct {
	Page     pagestore.PageID
	N        int
	Terminal TerminalID
}

// At returns the terminal of the page at idx under rule n. It returns false
// when n was not part of the run or the page was left unassigned.
func (a *Assignments) At(idx int32, n int) (TerminalID, bool) {
	i, ok := slices.BinarySearch(a.ns, n)
	if !ok {
		return Unassigned, false
	}
	id := a.cols[i][idx]
	return id, id != Unassigned
}

// Rows yields every assigned triple, rule by rule and page by page within a
// rule.
func (a *Assignments) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for i, n := range a.ns {
			for idx, id := range a.cols[i] {
				if id == Unassigned {
					continue
				}
				if !yield(Row{Page: a.store.ID(int32(idx)), N: n, Terminal: id}) {
					return
				}
			}
		}
	}
}

// Len returns the number of assigned triples.
func (a *Assignments) Len() int {
	total := 0
	for _, col := range a.cols {
		for _, id := range col {
			if id != Unassigned {
				total++
			}
		}
	}
	return total
}

// =============================================================================
// Run
// =============================================================================

// normalizeRules sorts and deduplicates ns.
func normalizeRules(ns []int) ([]int, error) {
	if err := errors.ValidateRules(ns); err != nil {
		return nil, err
	}
	out := slices.Clone(ns)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Run maps every basin of every rule in ns over s and reports tunnels between
// adjacent rules.
//
// The context is checked between passes and, through the basin engine, once
// per basin layer. Budgets in opts.Basin never fail the run; truncated basins
// leave pages unassigned and set Result.Truncated.
func Run(ctx context.Context, s *pagestore.Store, ns []int, opts Options) (*Result, error) {
	ns, err := normalizeRules(ns)
	if err != nil {
		return nil, err
	}
	if err := opts.ValidateAndSetDefaults(s); err != nil {
		return nil, err
	}

	res := &Result{
		Ns:          ns,
		Registry:    NewRegistry(),
		Assignments: &Assignments{store: s, ns: ns, cols: make([][]TerminalID, len(ns))},
	}
	tunnels := make(map[pagestore.PageID]*Tunnel)

	var prevIx *rules.Index
	for i, n := range ns {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled(err, "multiplex")
		}
		start := time.Now()

		ix, err := opts.Source.Index(ctx, n)
		if err != nil {
			return nil, err
		}
		if ix.Store() != s {
			return nil, errors.New(errors.ErrCodeInternal, "index for N=%d was built over another store", n)
		}

		col, pass, err := assign(ctx, ix, res.Registry, opts)
		if err != nil {
			return nil, err
		}
		res.Assignments.cols[i] = col
		if pass.Truncated > 0 {
			res.Truncated = true
		}

		if prevIx != nil {
			trs := compare(prevIx, ix, res.Assignments.cols[i-1], col, opts.Classifiers)
			for _, tr := range trs {
				if tun, ok := tunnels[tr.Page]; ok {
					tun.Transitions++
					tun.ToN = tr.ToN
				} else {
					tunnels[tr.Page] = &Tunnel{
						Page:        tr.Page,
						Mechanism:   tr.Mechanism,
						Transitions: 1,
						FromN:       tr.FromN,
						ToN:         tr.ToN,
					}
				}
			}
			pass.Tunnels = len(trs)
			res.Transitions = append(res.Transitions, trs...)
		}
		pass.Elapsed = time.Since(start)
		res.Passes = append(res.Passes, pass)
		prevIx = ix

		opts.Progress.Report(progress.Update{
			Stage:  progress.StageMultiplex,
			Done:   int64(i + 1),
			Total:  int64(len(ns)),
			Detail: fmt.Sprintf("N=%d: %d terminals", n, pass.Terminals),
		})
	}

	res.Tunnels = make([]Tunnel, 0, len(tunnels))
	for _, t := range tunnels {
		res.Tunnels = append(res.Tunnels, *t)
	}
	slices.SortFunc(res.Tunnels, func(a, b Tunnel) int { return cmp.Compare(a.Page, b.Page) })
	return res, nil
}

// assign fills one page-indexed terminal column for ix.
func assign(ctx context.Context, ix *rules.Index, reg *Registry, opts Options) ([]TerminalID, Pass, error) {
	pass := Pass{N: ix.N()}
	terms, err := trace.Terminals(ctx, ix)
	if err != nil {
		return nil, pass, err
	}
	pass.Terminals = len(terms)

	col := make([]TerminalID, ix.Len())
	for i := range col {
		col[i] = Unassigned
	}
	bopts := opts.Basin
	bopts.Scratch = basin.NewScratch(ix)
	for _, t := range terms {
		if t.IsHalt() {
			pass.Halts++
		} else {
			pass.Cycles++
		}
		b, err := basin.Map(ctx, ix, t, bopts)
		if err != nil {
			return nil, pass, err
		}
		if b.Truncated {
			pass.Truncated++
		}
		id := reg.Intern(t)
		for _, idx := range b.Nodes() {
			if col[idx] != Unassigned {
				return nil, pass, errors.New(errors.ErrCodeIntegrity,
					"page %d lies in two basins under N=%d", ix.Store().ID(idx), ix.N())
			}
			col[idx] = id
		}
		if opts.OnBasin != nil {
			opts.OnBasin(b)
		}
		b.Release()
	}
	for _, id := range col {
		if id == Unassigned {
			pass.Unassigned++
		}
	}
	return col, pass, nil
}

// compare joins two adjacent columns by page index.
func compare(fromIx, toIx *rules.Index, from, to []TerminalID, cs []Classifier) []Transition {
	s := toIx.Store()
	var out []Transition
	for i := range from {
		a, b := from[i], to[i]
		if a == Unassigned || b == Unassigned || a == b {
			continue
		}
		idx := int32(i)
		ev := Evidence{
			Page:             idx,
			Degree:           s.Degree(idx),
			FromN:            fromIx.N(),
			ToN:              toIx.N(),
			From:             a,
			To:               b,
			FromSucc:         fromIx.Successor(idx),
			ToSucc:           toIx.Successor(idx),
			FromSuccTerminal: Unassigned,
			ToSuccTerminal:   Unassigned,
		}
		if ev.FromSucc != rules.Halt {
			ev.FromSuccTerminal = from[ev.FromSucc]
		}
		if ev.ToSucc != rules.Halt {
			ev.ToSuccTerminal = to[ev.ToSucc]
		}
		out = append(out, Transition{
			Page:      s.ID(idx),
			FromN:     ev.FromN,
			ToN:       ev.ToN,
			From:      a,
			To:        b,
			Mechanism: classify(cs, ev),
		})
	}
	return out
}

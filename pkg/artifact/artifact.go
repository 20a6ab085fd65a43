// Package artifact defines the records nlink produces and publishes them.
//
// Every artifact is a [Provenance] header followed by a stream of typed rows.
// Publication is all-or-nothing: a [Publisher] makes an artifact visible
// only after every row has been written, so a cancelled or failed job never
// leaves a partial artifact behind.
//
// Artifact locations are derived from their parameters with [Key], so two
// jobs with different parameters never write to the same place and a
// duplicate job overwrites an identical artifact.
package artifact

import (
	"context"
	"iter"
	"time"

	"github.com/matzehuels/nlink/pkg/basin"
	"github.com/matzehuels/nlink/pkg/branch"
	"github.com/matzehuels/nlink/pkg/buildinfo"
	"github.com/matzehuels/nlink/pkg/multiplex"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/trace"
)

// Kind names what an artifact holds.
type Kind string

const (
	KindTrace       Kind = "trace"
	KindBasin       Kind = "basin"
	KindBranches    Kind = "branches"
	KindAssignments Kind = "assignments"
	KindTunnels     Kind = "tunnels"
)

// Provenance records how an artifact was produced. It is written before
// the rows so a reader can tell a fully mapped result from a budget-limited
// one without inspecting the rows.
type Provenance struct {
	Kind     Kind             `json:"kind" bson:"kind"`
	N        int              `json:"n,omitempty" bson:"n,omitempty"`
	Ns       []int            `json:"ns,omitempty" bson:"ns,omitempty"`
	Terminal string           `json:"terminal,omitempty" bson:"terminal,omitempty"`
	Start    pagestore.PageID `json:"start,omitempty" bson:"start,omitempty"`
	RunTag   string           `json:"run_tag,omitempty" bson:"run_tag,omitempty"`
	JobID    string           `json:"job_id,omitempty" bson:"job_id,omitempty"`

	MaxDepth    int           `json:"max_depth,omitempty" bson:"max_depth,omitempty"`
	MaxNodes    int           `json:"max_nodes,omitempty" bson:"max_nodes,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty" bson:"max_duration,omitempty"`

	Truncated      bool   `json:"truncated" bson:"truncated"`
	TruncateReason string `json:"truncate_reason,omitempty" bson:"truncate_reason,omitempty"`

	Rows             int           `json:"rows" bson:"rows"`
	StartedAt        time.Time     `json:"started_at" bson:"started_at"`
	Elapsed          time.Duration `json:"elapsed" bson:"elapsed"`
	Version          string        `json:"version" bson:"version"`
	StoreFingerprint string        `json:"store_fingerprint" bson:"store_fingerprint"`
}

// Artifact is a provenance header plus its rows.
type Artifact struct {
	Provenance Provenance
	// Rows yields every row once, in artifact order. It may be called more
	// than once.
	Rows iter.Seq[any]
}

// Publisher makes artifacts visible atomically.
//
// Publication is two-phase. Stage writes every row somewhere invisible and
// Staged.Commit makes the result visible in one step, so [PublishAll] can
// stage all artifacts of a job before committing any of them.
type Publisher interface {
	// Stage writes a without making it visible. On error, including ctx
	// cancellation, nothing is left behind.
	Stage(ctx context.Context, a *Artifact) (Staged, error)
}

// Staged is an artifact written by a Publisher but not yet visible.
// Exactly one of Commit or Discard must be called.
type Staged interface {
	// Location is where the artifact becomes visible on Commit.
	Location() string
	// Commit makes the artifact visible, replacing any previous artifact at
	// Location.
	Commit(ctx context.Context) error
	// Discard removes the staged rows. It is a no-op after Commit.
	Discard()
}

// =============================================================================
// Row types
// =============================================================================

// TraceRecord is the single row of a trace artifact.
type TraceRecord struct {
	Start    pagestore.PageID   `json:"start" bson:"start"`
	N        int                `json:"n" bson:"n"`
	Kind     string             `json:"kind" bson:"kind"`
	Terminal string             `json:"terminal" bson:"terminal"`
	Steps    int                `json:"steps" bson:"steps"`
	Path     []pagestore.PageID `json:"path" bson:"path"`
}

// BasinRow is one page of a basin artifact.
type BasinRow struct {
	Page  pagestore.PageID `json:"page_id" bson:"page_id"`
	Depth int              `json:"depth" bson:"depth"`
}

// BranchRow is one branch of a branch artifact.
type BranchRow struct {
	Entry pagestore.PageID `json:"entry" bson:"entry"`
	Size  int              `json:"size" bson:"size"`
	Rank  int              `json:"rank" bson:"rank"`
	Depth int              `json:"max_depth" bson:"max_depth"`
}

// BranchSummary is the final row of a branch artifact.
type BranchSummary struct {
	Summary           bool      `json:"summary" bson:"summary"`
	BranchCount       int       `json:"branch_count" bson:"branch_count"`
	Total             int       `json:"total" bson:"total"`
	Gini              float64   `json:"gini" bson:"gini"`
	HHI               float64   `json:"hhi" bson:"hhi"`
	EffectiveBranches float64   `json:"effective_branches" bson:"effective_branches"`
	Entropy           float64   `json:"entropy" bson:"entropy"`
	TopShares         []float64 `json:"top_shares" bson:"top_shares"`
	SingleTrunk       bool      `json:"single_trunk" bson:"single_trunk"`
	CollapseDepth     int       `json:"collapse_depth" bson:"collapse_depth"`
}

// AssignmentRow is one (page, N, terminal) triple of the multiplex.
type AssignmentRow struct {
	Page     pagestore.PageID `json:"page_id" bson:"page_id"`
	N        int              `json:"n" bson:"n"`
	Terminal string           `json:"terminal" bson:"terminal"`
}

// TunnelRow is one tunnel node.
type TunnelRow struct {
	Page        pagestore.PageID `json:"page_id" bson:"page_id"`
	Mechanism   string           `json:"mechanism" bson:"mechanism"`
	Transitions int              `json:"transitions" bson:"transitions"`
	FromN       int              `json:"from_n" bson:"from_n"`
	ToN         int              `json:"to_n" bson:"to_n"`
}

// =============================================================================
// Constructors
// =============================================================================

func newProvenance(kind Kind, fingerprint string, started time.Time) Provenance {
	return Provenance{
		Kind:             kind,
		StartedAt:        started.UTC(),
		Elapsed:          time.Since(started),
		Version:          buildinfo.Version,
		StoreFingerprint: fingerprint,
	}
}

// FromTrace builds a trace artifact.
func FromTrace(res *trace.Result, fingerprint string, started time.Time) *Artifact {
	p := newProvenance(KindTrace, fingerprint, started)
	p.N = res.N
	p.Start = res.Start
	p.Terminal = res.Terminal.Key()
	p.Rows = 1
	rec := TraceRecord{
		Start:    res.Start,
		N:        res.N,
		Kind:     res.Kind().String(),
		Terminal: res.Terminal.Key(),
		Steps:    res.Steps,
		Path:     res.Path,
	}
	return &Artifact{Provenance: p, Rows: func(yield func(any) bool) { yield(rec) }}
}

// FromBasin builds a basin artifact listing every mapped page by depth.
func FromBasin(b *basin.Basin, opts basin.Options, started time.Time) *Artifact {
	s := b.Index().Store()
	p := newProvenance(KindBasin, s.Fingerprint(), started)
	p.N = b.N()
	p.Terminal = b.Terminal().Key()
	p.MaxDepth, p.MaxNodes, p.MaxDuration = opts.MaxDepth, opts.MaxNodes, opts.MaxDuration
	p.Truncated = b.Truncated
	p.TruncateReason = string(b.Reason)
	p.Rows = b.Size()
	return &Artifact{Provenance: p, Rows: func(yield func(any) bool) {
		for d := 0; d <= b.MaxDepth(); d++ {
			for _, idx := range b.Layer(d) {
				if !yield(BasinRow{Page: s.ID(idx), Depth: d}) {
					return
				}
			}
		}
	}}
}

// FromBranches builds a branch artifact: one row per branch in rank order,
// then the summary row.
func FromBranches(b *basin.Basin, res *branch.Result, opts basin.Options, started time.Time) *Artifact {
	a := FromBasin(b, opts, started)
	a.Provenance.Kind = KindBranches
	a.Provenance.Rows = len(res.Branches) + 1
	sum := res.Summary
	a.Rows = func(yield func(any) bool) {
		for _, br := range res.Branches {
			if !yield(BranchRow{Entry: br.Entry, Size: br.Size, Rank: br.Rank, Depth: br.Depth}) {
				return
			}
		}
		yield(BranchSummary{
			Summary:           true,
			BranchCount:       sum.BranchCount,
			Total:             sum.Total,
			Gini:              sum.Gini,
			HHI:               sum.HHI,
			EffectiveBranches: sum.EffectiveBranches,
			Entropy:           sum.Entropy,
			TopShares:         sum.TopShares,
			SingleTrunk:       sum.SingleTrunk,
			CollapseDepth:     sum.CollapseDepth,
		})
	}
	return a
}

func multiplexProvenance(kind Kind, res *multiplex.Result, opts basin.Options, fingerprint string, started time.Time) Provenance {
	p := newProvenance(kind, fingerprint, started)
	p.Ns = res.Ns
	p.MaxDepth, p.MaxNodes, p.MaxDuration = opts.MaxDepth, opts.MaxNodes, opts.MaxDuration
	p.Truncated = res.Truncated
	if res.Truncated {
		p.TruncateReason = "basin_budget"
	}
	return p
}

// FromAssignments builds the multiplex assignment artifact. Unassigned
// pages of truncated basins are left out.
func FromAssignments(res *multiplex.Result, opts basin.Options, fingerprint string, started time.Time) *Artifact {
	p := multiplexProvenance(KindAssignments, res, opts, fingerprint, started)
	p.Rows = res.Assignments.Len()
	return &Artifact{Provenance: p, Rows: func(yield func(any) bool) {
		for row := range res.Assignments.Rows() {
			if !yield(AssignmentRow{Page: row.Page, N: row.N, Terminal: res.Registry.Terminal(row.Terminal).Key()}) {
				return
			}
		}
	}}
}

// FromTunnels builds the tunnel artifact.
func FromTunnels(res *multiplex.Result, opts basin.Options, fingerprint string, started time.Time) *Artifact {
	p := multiplexProvenance(KindTunnels, res, opts, fingerprint, started)
	p.Rows = len(res.Tunnels)
	return &Artifact{Provenance: p, Rows: func(yield func(any) bool) {
		for _, tn := range res.Tunnels {
			row := TunnelRow{
				Page:        tn.Page,
				Mechanism:   string(tn.Mechanism),
				Transitions: tn.Transitions,
				FromN:       tn.FromN,
				ToN:         tn.ToN,
			}
			if !yield(row) {
				return
			}
		}
	}}
}

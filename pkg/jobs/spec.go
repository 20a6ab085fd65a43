// Package jobs runs engine operations as independent jobs.
//
// A [Spec] addresses one operation by a stable parameter tuple. [Execute]
// runs it against a [pipeline.Runner] and returns the artifacts it produced.
// On top of that:
//
//   - [Manager] runs submitted jobs in the background with bounded
//     concurrency and exposes pollable status, the service boundary a thin
//     request layer would sit on;
//   - [RunBatch] runs a fixed list of jobs over a worker pool and returns
//     when all of them are done.
//
// Artifacts are published only when a job succeeds in full. The page store
// and rule indices are read-only, so jobs share them without locking.
package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// Kind selects the operation a job runs.
type Kind string

const (
	KindTrace     Kind = "trace"
	KindBasin     Kind = "basin"
	KindBranches  Kind = "branches"
	KindMultiplex Kind = "multiplex"
)

// Spec is the parameter tuple of one job.
type Spec struct {
	Kind Kind  `json:"kind"`
	N    int   `json:"n,omitempty"`
	Ns   []int `json:"ns,omitempty"`

	// Terminal is a terminal key ("halt:5", "cycle:1,2,3"). Basin and
	// branch jobs may leave it empty and name a Start page instead; the
	// terminal is then the one Start drains into.
	Terminal string           `json:"terminal,omitempty"`
	Start    pagestore.PageID `json:"start,omitempty"`

	MaxDepth    int           `json:"max_depth,omitempty"`
	MaxNodes    int           `json:"max_nodes,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty"`

	TopK           int     `json:"top_k,omitempty"`
	TrunkThreshold float64 `json:"trunk_threshold,omitempty"`

	RunTag string `json:"run_tag,omitempty"`
}

// Validate checks the spec without touching the store.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindTrace:
		if err := errors.ValidateRule(s.N); err != nil {
			return err
		}
		if s.Start == 0 {
			return errors.New(errors.ErrCodeInvalidInput, "trace job needs a start page")
		}
	case KindBasin, KindBranches:
		if err := errors.ValidateRule(s.N); err != nil {
			return err
		}
		if s.Terminal == "" && s.Start == 0 {
			return errors.New(errors.ErrCodeInvalidTerminal, "%s job needs a terminal or a start page", s.Kind)
		}
		if s.Terminal != "" {
			if _, err := terminal.Parse(s.Terminal); err != nil {
				return err
			}
		}
	case KindMultiplex:
		if err := errors.ValidateRules(s.Ns); err != nil {
			return err
		}
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown job kind %q", s.Kind)
	}
	if err := errors.ValidateBudget(s.MaxDepth, s.MaxNodes); err != nil {
		return err
	}
	if s.MaxDuration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max duration must be >= 0, got %s", s.MaxDuration)
	}
	if s.TopK < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "top k must be >= 0, got %d", s.TopK)
	}
	if s.TrunkThreshold != 0 {
		if err := errors.ValidateThreshold("trunk threshold", s.TrunkThreshold); err != nil {
			return err
		}
	}
	return errors.ValidateRunTag(s.RunTag)
}

// Key returns a canonical string identifying the spec. Two specs with the
// same key produce the same artifacts.
func (s Spec) Key() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	if len(s.Ns) > 0 {
		strs := make([]string, len(s.Ns))
		for i, n := range s.Ns {
			strs[i] = strconv.Itoa(n)
		}
		fmt.Fprintf(&b, "|ns=%s", strings.Join(strs, ","))
	} else {
		fmt.Fprintf(&b, "|n=%d", s.N)
	}
	if s.Terminal != "" {
		t, err := terminal.Parse(s.Terminal)
		if err == nil {
			fmt.Fprintf(&b, "|t=%s", t.Key())
		} else {
			fmt.Fprintf(&b, "|t=%s", s.Terminal)
		}
	}
	if s.Start != 0 {
		fmt.Fprintf(&b, "|start=%d", s.Start)
	}
	fmt.Fprintf(&b, "|d=%d|m=%d|dur=%s", s.MaxDepth, s.MaxNodes, s.MaxDuration)
	if s.Kind == KindBranches {
		fmt.Fprintf(&b, "|k=%d|trunk=%g", s.TopK, s.TrunkThreshold)
	}
	if s.RunTag != "" {
		fmt.Fprintf(&b, "|tag=%s", s.RunTag)
	}
	return b.String()
}

func (s Spec) String() string { return s.Key() }

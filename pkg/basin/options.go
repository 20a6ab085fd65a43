package basin

import (
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/progress"
)

// Options bounds a basin computation. The zero value maps the whole basin.
type Options struct {
	// MaxDepth stops the search after this many layers beyond the terminal.
	// 0 means unlimited.
	MaxDepth int

	// MaxNodes caps the number of pages recorded, terminal members included.
	// The last layer may be recorded partially. The terminal members
	// themselves are exempt: a terminal larger than MaxNodes is recorded
	// whole, and the basin is truncated if it has any predecessor. 0 means unlimited.
	MaxNodes int

	// MaxDuration stops the search at the first layer boundary after the
	// budget has elapsed. 0 means unlimited.
	MaxDuration time.Duration

	// Progress receives one update per completed layer. Nil disables it.
	Progress progress.Reporter

	// Scratch, if set, supplies the visited set instead of a fresh
	// store-sized allocation. See [Scratch].
	Scratch *Scratch

	validated bool
}

// ValidateAndSetDefaults checks the budgets and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateBudget(o.MaxDepth, o.MaxNodes); err != nil {
		return err
	}
	if o.MaxDuration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max duration must be >= 0, got %s", o.MaxDuration)
	}
	o.Progress = progress.OrNop(o.Progress)
	o.validated = true
	return nil
}

// Reason explains why a basin is truncated.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonMaxDepth Reason = "max_depth"
	ReasonMaxNodes Reason = "max_nodes"
	ReasonTime     Reason = "time"
)

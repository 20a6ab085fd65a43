package artifact

import (
	"context"
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
)

// commitTimeout bounds the commit phase, which runs detached from the
// caller's cancellation.
const commitTimeout = 30 * time.Second

// Publish stages and commits a single artifact and returns its location.
func Publish(ctx context.Context, p Publisher, a *Artifact) (string, error) {
	locs, err := PublishAll(ctx, p, []*Artifact{a}, nil)
	if err != nil {
		return "", err
	}
	return locs[0], nil
}

// PublishAll publishes arts as one unit and returns their locations in
// order.
//
// Every artifact is staged first. If staging fails or ctx is cancelled
// before the last artifact is staged, every staged artifact is discarded
// and nothing becomes visible. Once all are staged, commits run to
// completion even if ctx is cancelled meanwhile. A failed commit discards
// it and the artifacts after it and returns the error; artifacts committed
// before it stay visible.
//
// onStage, if not nil, is called before each artifact is staged.
func PublishAll(ctx context.Context, p Publisher, arts []*Artifact, onStage func(i int, a *Artifact)) ([]string, error) {
	staged := make([]Staged, 0, len(arts))
	discard := func(from int) {
		for _, st := range staged[from:] {
			st.Discard()
		}
	}

	for i, a := range arts {
		if onStage != nil {
			onStage(i, a)
		}
		st, err := p.Stage(ctx, a)
		if err != nil {
			discard(0)
			return nil, err
		}
		staged = append(staged, st)
	}
	if err := ctx.Err(); err != nil {
		discard(0)
		return nil, errors.Cancelled(err, "publish")
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	locs := make([]string, len(staged))
	for i, st := range staged {
		if err := st.Commit(cctx); err != nil {
			discard(i)
			return locs[:i], err
		}
		locs[i] = st.Location()
	}
	return locs, nil
}

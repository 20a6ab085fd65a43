package artifact

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matzehuels/nlink/pkg/errors"
)

// ctxCheckEvery is how many rows are written between cancellation checks.
const ctxCheckEvery = 4096

// FileSink publishes artifacts as JSON Lines files under Dir.
//
// The first line is {"provenance": {...}}, every following line is one row.
// Rows go to a private temp file next to the target, which is fsynced when
// staged and renamed into place on commit.
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Path returns where a would be published.
func (s *FileSink) Path(a *Artifact) string {
	return filepath.Join(s.Dir, filepath.FromSlash(Key(a.Provenance))+".jsonl")
}

type header struct {
	Provenance Provenance `json:"provenance"`
}

// Publish writes a atomically and returns its file path.
func (s *FileSink) Publish(ctx context.Context, a *Artifact) (string, error) {
	return Publish(ctx, s, a)
}

// Stage writes a to a private temp file next to its target and fsyncs it.
// Commit renames the temp file into place.
func (s *FileSink) Stage(ctx context.Context, a *Artifact) (Staged, error) {
	if err := errors.ValidateRunTag(a.Provenance.RunTag); err != nil {
		return nil, err
	}
	target := s.Path(a)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create output dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".nlink-*.tmp")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create temp file")
	}
	st := &stagedFile{tmp: tmp.Name(), target: target}
	if err := writeJSONL(ctx, tmp, a); err != nil {
		tmp.Close()
		st.Discard()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		st.Discard()
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "sync %s", st.tmp)
	}
	if err := tmp.Close(); err != nil {
		st.Discard()
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "close %s", st.tmp)
	}
	return st, nil
}

type stagedFile struct {
	tmp, target string
	done        bool
}

func (f *stagedFile) Location() string { return f.target }

func (f *stagedFile) Commit(context.Context) error {
	if f.done {
		return errors.New(errors.ErrCodeInternal, "%s already committed or discarded", f.target)
	}
	if err := os.Rename(f.tmp, f.target); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "publish %s", f.target)
	}
	f.done = true
	return nil
}

func (f *stagedFile) Discard() {
	if f.done {
		return
	}
	f.done = true
	os.Remove(f.tmp)
}

func writeJSONL(ctx context.Context, f *os.File, a *Artifact) error {
	w := bufio.NewWriterSize(f, 1<<20)
	enc := json.NewEncoder(w)
	if err := enc.Encode(header{Provenance: a.Provenance}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write provenance")
	}

	var werr error
	i := 0
	if a.Rows != nil {
		for row := range a.Rows {
			if i++; i%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					werr = errors.Cancelled(err, "publish")
					break
				}
			}
			if err := enc.Encode(row); err != nil {
				werr = errors.Wrap(errors.ErrCodeInternal, err, "write row %d", i)
				break
			}
		}
	}
	if werr != nil {
		return werr
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "flush")
	}
	return nil
}

var _ Publisher = (*FileSink)(nil)

// ReadHeader returns the provenance line of a published artifact file.
func ReadHeader(path string) (Provenance, error) {
	f, err := os.Open(path)
	if err != nil {
		return Provenance{}, errors.Wrap(errors.ErrCodeNotFound, err, "open %s", path)
	}
	defer f.Close()

	var h header
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&h); err != nil {
		return Provenance{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read provenance of %s", path)
	}
	return h.Provenance, nil
}

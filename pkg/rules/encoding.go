package rules

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
)

// encoding layout (little endian):
//
//	magic   [4]byte "NLIX"
//	version uint16
//	n       uint32
//	fplen   uint16, fingerprint [fplen]byte
//	count   uint32, succ [count]int32
//
// Only the forward array is stored; the reverse arrays are rebuilt on decode.
var magic = [4]byte{'N', 'L', 'I', 'X'}

const encodingVersion uint16 = 1

// MarshalBinary encodes the index for an external cache.
func (ix *Index) MarshalBinary() ([]byte, error) {
	fp := ix.store.Fingerprint()
	var buf bytes.Buffer
	buf.Grow(4 + 2 + 4 + 2 + len(fp) + 4 + 4*len(ix.succ))

	buf.Write(magic[:])
	le := binary.LittleEndian
	buf.Write(le.AppendUint16(nil, encodingVersion))
	buf.Write(le.AppendUint32(nil, uint32(ix.n)))
	buf.Write(le.AppendUint16(nil, uint16(len(fp))))
	buf.WriteString(fp)
	buf.Write(le.AppendUint32(nil, uint32(len(ix.succ))))
	if err := binary.Write(&buf, le, ix.succ); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode rule index")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an index produced by MarshalBinary and attaches it to s.
//
// Decoding fails with an integrity error when the data was produced for a
// different store (fingerprint mismatch) and with an input error when it is
// malformed or its N differs from want. Pass want <= 0 to accept any N.
func Unmarshal(data []byte, s *pagestore.Store, want int) (*Index, error) {
	r := bytes.NewReader(data)
	le := binary.LittleEndian

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || hdr != magic {
		return nil, errors.New(errors.ErrCodeInvalidInput, "rule index: bad magic")
	}
	var (
		version uint16
		n       uint32
		fplen   uint16
	)
	if err := binary.Read(r, le, &version); err != nil {
		return nil, malformed(err)
	}
	if version != encodingVersion {
		return nil, errors.New(errors.ErrCodeUnsupported, "rule index: encoding version %d", version)
	}
	if err := binary.Read(r, le, &n); err != nil {
		return nil, malformed(err)
	}
	if want > 0 && int(n) != want {
		return nil, errors.New(errors.ErrCodeInvalidInput, "rule index: encoded N=%d, want N=%d", n, want)
	}
	if err := binary.Read(r, le, &fplen); err != nil {
		return nil, malformed(err)
	}
	fp := make([]byte, fplen)
	if _, err := io.ReadFull(r, fp); err != nil {
		return nil, malformed(err)
	}
	if string(fp) != s.Fingerprint() {
		return nil, errors.New(errors.ErrCodeIntegrity, "rule index was built for a different page store")
	}

	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, malformed(err)
	}
	if int(count) != s.Len() {
		return nil, errors.New(errors.ErrCodeIntegrity,
			"rule index covers %d pages, store has %d", count, s.Len())
	}
	if r.Len() != 4*int(count) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "rule index: truncated successor array")
	}
	succ := make([]int32, count)
	if err := binary.Read(r, le, succ); err != nil {
		return nil, malformed(err)
	}
	for i, t := range succ {
		if t < Halt || int(t) >= len(succ) {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"rule index: successor %d of page %d out of range", t, i)
		}
	}

	return finish(context.Background(), s, int(n), succ)
}

func malformed(err error) error {
	return errors.Wrap(errors.ErrCodeInvalidInput, err, "rule index: malformed encoding")
}

package basin

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/rules"
	"github.com/matzehuels/nlink/pkg/terminal"
)

// encoding layout (little endian):
//
//	magic   [4]byte "NLBS"
//	version uint16
//	n       uint32
//	fp      uint32 length + bytes
//	key     uint32 length + bytes (terminal key)
//	reason  uint32 length + bytes
//	elapsed int64 (nanoseconds)
//	layers  uint32, layerOff [layers]int32
//	nodes   uint32, nodes [nodes]int32
var basinMagic = [4]byte{'N', 'L', 'B', 'S'}

const basinVersion uint16 = 2

// MarshalBinary encodes the basin for an external cache.
func (b *Basin) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	writeString := func(s string) {
		buf.Write(le.AppendUint32(nil, uint32(len(s))))
		buf.WriteString(s)
	}

	buf.Write(basinMagic[:])
	buf.Write(le.AppendUint16(nil, basinVersion))
	buf.Write(le.AppendUint32(nil, uint32(b.ix.N())))
	writeString(b.ix.Store().Fingerprint())
	writeString(b.terminal.Key())
	writeString(string(b.Reason))
	buf.Write(le.AppendUint64(nil, uint64(b.Elapsed)))
	buf.Write(le.AppendUint32(nil, uint32(len(b.layerOff))))
	if err := binary.Write(&buf, le, b.layerOff); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode basin")
	}
	buf.Write(le.AppendUint32(nil, uint32(len(b.nodes))))
	if err := binary.Write(&buf, le, b.nodes); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode basin")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a basin produced by MarshalBinary and attaches it to ix.
// The encoded store fingerprint, N and terminal must match.
func Unmarshal(data []byte, ix *rules.Index, t terminal.Terminal) (*Basin, error) {
	r := bytes.NewReader(data)
	le := binary.LittleEndian
	readString := func() (string, error) {
		var n uint32
		if err := binary.Read(r, le, &n); err != nil {
			return "", err
		}
		if r.Len() < int(n) {
			return "", io.ErrUnexpectedEOF
		}
		p := make([]byte, n)
		_, err := io.ReadFull(r, p)
		return string(p), err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || hdr != basinMagic {
		return nil, errors.New(errors.ErrCodeInvalidInput, "basin: bad magic")
	}
	var (
		version uint16
		n       uint32
	)
	if err := binary.Read(r, le, &version); err != nil {
		return nil, malformed(err)
	}
	if version != basinVersion {
		return nil, errors.New(errors.ErrCodeUnsupported, "basin: encoding version %d", version)
	}
	if err := binary.Read(r, le, &n); err != nil {
		return nil, malformed(err)
	}
	fp, err := readString()
	if err != nil {
		return nil, malformed(err)
	}
	key, err := readString()
	if err != nil {
		return nil, malformed(err)
	}
	if int(n) != ix.N() || fp != ix.Store().Fingerprint() || key != t.Key() {
		return nil, errors.New(errors.ErrCodeIntegrity,
			"basin encoding is for N=%d %s, want N=%d %s", n, key, ix.N(), t.Key())
	}
	reason, err := readString()
	if err != nil {
		return nil, malformed(err)
	}
	var elapsed int64
	if err := binary.Read(r, le, &elapsed); err != nil {
		return nil, malformed(err)
	}

	layerOff, err := readInt32s(r)
	if err != nil {
		return nil, err
	}
	nodes, err := readInt32s(r)
	if err != nil {
		return nil, err
	}
	if len(layerOff) < 2 || layerOff[0] != 0 || int(layerOff[len(layerOff)-1]) != len(nodes) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "basin: inconsistent layer offsets")
	}

	members, err := Resolve(ix, t)
	if err != nil {
		return nil, err
	}
	b := &Basin{
		ix:        ix,
		terminal:  t,
		members:   members,
		nodes:     nodes,
		layerOff:  layerOff,
		visited:   newBitset(ix.Len()),
		Reason:    Reason(reason),
		Truncated: reason != string(ReasonNone),
		Elapsed:   time.Duration(elapsed),
	}
	for _, idx := range nodes {
		if idx < 0 || int(idx) >= ix.Len() {
			return nil, errors.New(errors.ErrCodeInvalidInput, "basin: page index %d out of range", idx)
		}
		b.visited.set(idx)
	}
	return b, nil
}

func readInt32s(r *bytes.Reader) ([]int32, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, malformed(err)
	}
	if r.Len() < 4*int(count) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "basin: truncated encoding")
	}
	out := make([]int32, count)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, malformed(err)
	}
	return out, nil
}

func malformed(err error) error {
	return errors.Wrap(errors.ErrCodeInvalidInput, err, "basin: malformed encoding")
}

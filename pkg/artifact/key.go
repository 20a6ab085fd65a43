package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// maxSlug bounds one path component derived from a terminal or rule list.
const maxSlug = 64

// Key derives the artifact location from its parameters:
//
//	[<run tag>/]<kind>/n<N>[_<terminal>][_from-<start>][_d<depth>][_m<nodes>]
//
// Multiplex artifacts use the rule set instead of a single N ("n1-5" for a
// contiguous range). The run tag must already be validated. Key is a
// slash-separated relative path without extension.
func Key(p Provenance) string {
	parts := []string{rulePart(p)}
	if p.Terminal != "" {
		parts = append(parts, terminalSlug(p.Terminal))
	}
	if p.Start != 0 {
		parts = append(parts, "from-"+strconv.FormatUint(uint64(p.Start), 10))
	}
	if p.MaxDepth > 0 {
		parts = append(parts, "d"+strconv.Itoa(p.MaxDepth))
	}
	if p.MaxNodes > 0 {
		parts = append(parts, "m"+strconv.Itoa(p.MaxNodes))
	}
	name := strings.Join(parts, "_")
	if p.RunTag != "" {
		return path.Join(p.RunTag, string(p.Kind), name)
	}
	return path.Join(string(p.Kind), name)
}

func rulePart(p Provenance) string {
	if len(p.Ns) == 0 {
		return "n" + strconv.Itoa(p.N)
	}
	contiguous := true
	for i := 1; i < len(p.Ns); i++ {
		if p.Ns[i] != p.Ns[i-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous {
		return fmt.Sprintf("n%d-%d", p.Ns[0], p.Ns[len(p.Ns)-1])
	}
	strs := make([]string, len(p.Ns))
	for i, n := range p.Ns {
		strs[i] = strconv.Itoa(n)
	}
	return shorten("n" + strings.Join(strs, "."))
}

// terminalSlug turns a terminal key ("cycle:1,2,3") into a path-safe
// component ("cycle-1-2-3").
func terminalSlug(key string) string {
	r := strings.NewReplacer(":", "-", ",", "-")
	return shorten(r.Replace(key))
}

// shorten replaces the tail of an over-long component with a content hash.
func shorten(s string) string {
	if len(s) <= maxSlug {
		return s
	}
	sum := sha256.Sum256([]byte(s))
	return s[:maxSlug-17] + "~" + hex.EncodeToString(sum[:8])
}

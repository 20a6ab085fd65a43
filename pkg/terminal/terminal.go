// Package terminal defines the attractor a forward N-link path converges to.
//
// Under a fixed rule every page has at most one successor, so iterating the
// successor function from any page either reaches a page without a successor
// (a HALT) or enters a closed loop (a CYCLE). A [Terminal] is the identity of
// that attractor: one page id for a HALT, the set of member page ids for a
// CYCLE.
//
// Identity is content-based. Two terminals are equal exactly when they have
// the same kind and the same member set, regardless of the order in which the
// cycle was discovered or which rule produced it. [Terminal.Key] is the
// canonical string form of that identity. Cycles that share some but not all
// members are distinct terminals.
package terminal

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/pagestore"
)

// Kind distinguishes the two terminal shapes.
type Kind uint8

const (
	// KindHalt is a page with fewer than N links under rule N.
	KindHalt Kind = iota + 1
	// KindCycle is a closed loop of pages mapping only to each other.
	KindCycle
)

// String returns "HALT" or "CYCLE".
func (k Kind) String() string {
	switch k {
	case KindHalt:
		return "HALT"
	case KindCycle:
		return "CYCLE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Terminal is a HALT page or a CYCLE member set.
//
// The zero value is invalid; use [Halt] or [Cycle]. Terminals are immutable
// values and safe to share.
type Terminal struct {
	kind    Kind
	members []pagestore.PageID // sorted ascending, unique
}

// Halt returns the terminal for a single halting page.
func Halt(id pagestore.PageID) Terminal {
	return Terminal{kind: KindHalt, members: []pagestore.PageID{id}}
}

// Cycle returns the terminal for a cycle with the given members.
// The input order does not matter and is not retained; duplicates collapse.
func Cycle(ids []pagestore.PageID) Terminal {
	m := slices.Clone(ids)
	slices.Sort(m)
	return Terminal{kind: KindCycle, members: slices.Compact(m)}
}

// Kind returns the terminal kind.
func (t Terminal) Kind() Kind { return t.kind }

// IsZero reports whether t is the zero value.
func (t Terminal) IsZero() bool { return t.kind == 0 }

// IsHalt reports whether t is a HALT.
func (t Terminal) IsHalt() bool { return t.kind == KindHalt }

// IsCycle reports whether t is a CYCLE.
func (t Terminal) IsCycle() bool { return t.kind == KindCycle }

// Page returns the halting page. It is only meaningful for HALT terminals.
func (t Terminal) Page() pagestore.PageID {
	if len(t.members) == 0 {
		return 0
	}
	return t.members[0]
}

// Members returns a copy of the member page ids in ascending order.
func (t Terminal) Members() []pagestore.PageID { return slices.Clone(t.members) }

// Len returns the number of member pages.
func (t Terminal) Len() int { return len(t.members) }

// Contains reports whether id is a member of t.
func (t Terminal) Contains(id pagestore.PageID) bool {
	_, ok := slices.BinarySearch(t.members, id)
	return ok
}

// Equal reports whether t and u denote the same attractor.
func (t Terminal) Equal(u Terminal) bool {
	return t.kind == u.kind && slices.Equal(t.members, u.members)
}

// Compare orders terminals by kind, then by member set.
func (t Terminal) Compare(u Terminal) int {
	if c := cmp.Compare(t.kind, u.kind); c != 0 {
		return c
	}
	return slices.Compare(t.members, u.members)
}

// Key returns the canonical identity string: "halt:<id>" or
// "cycle:<id>,<id>,..." with ascending ids.
func (t Terminal) Key() string {
	var sb strings.Builder
	switch t.kind {
	case KindHalt:
		sb.WriteString("halt:")
	case KindCycle:
		sb.WriteString("cycle:")
	default:
		return ""
	}
	for i, id := range t.members {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}

// String returns Key.
func (t Terminal) String() string { return t.Key() }

// Parse decodes a terminal specification as produced by Key. Member order in
// a cycle specification is irrelevant.
func Parse(spec string) (Terminal, error) {
	kind, list, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || list == "" {
		return Terminal{}, errors.New(errors.ErrCodeInvalidTerminal,
			"terminal %q: want halt:<id> or cycle:<id>,<id>,...", spec)
	}
	var ids []pagestore.PageID
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return Terminal{}, errors.Wrap(errors.ErrCodeInvalidTerminal, err, "terminal %q", spec)
		}
		ids = append(ids, pagestore.PageID(v))
	}
	switch strings.ToLower(kind) {
	case "halt":
		if len(ids) != 1 {
			return Terminal{}, errors.New(errors.ErrCodeInvalidTerminal,
				"terminal %q: a halt has exactly one page", spec)
		}
		return Halt(ids[0]), nil
	case "cycle":
		return Cycle(ids), nil
	default:
		return Terminal{}, errors.New(errors.ErrCodeInvalidTerminal,
			"terminal %q: unknown kind %q", spec, kind)
	}
}

// MarshalJSON encodes the terminal as its key.
func (t Terminal) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Key())
}

// UnmarshalJSON decodes a key produced by MarshalJSON.
func (t *Terminal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Describe returns a short human-readable label with titles from s, for
// example "CYCLE(3) Philosophy, Knowledge, Science".
func Describe(t Terminal, s *pagestore.Store) string {
	names := make([]string, 0, len(t.members))
	for _, id := range t.members {
		name := strconv.FormatUint(uint64(id), 10)
		if s != nil {
			if idx, ok := s.Index(id); ok && s.Title(idx) != "" {
				name = s.Title(idx)
			}
		}
		names = append(names, name)
	}
	if t.kind == KindHalt {
		return fmt.Sprintf("HALT %s", strings.Join(names, ""))
	}
	return fmt.Sprintf("CYCLE(%d) %s", len(names), strings.Join(names, ", "))
}

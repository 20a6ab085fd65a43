package cache

// ScopedKeyer wraps a Keyer with a prefix, so several datasets or run tags
// sharing one backend get separate namespaces.
//
//	k := NewScopedKeyer(NewDefaultKeyer(), "enwiki-2024:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// IndexKey generates a prefixed rule index key.
func (k *ScopedKeyer) IndexKey(fingerprint string, n int) string {
	return k.prefix + k.inner.IndexKey(fingerprint, n)
}

// TerminalsKey generates a prefixed terminal list key.
func (k *ScopedKeyer) TerminalsKey(fingerprint string, n int) string {
	return k.prefix + k.inner.TerminalsKey(fingerprint, n)
}

// BasinKey generates a prefixed basin key.
func (k *ScopedKeyer) BasinKey(fingerprint string, n int, terminal string, opts BasinKeyOpts) string {
	return k.prefix + k.inner.BasinKey(fingerprint, n, terminal, opts)
}

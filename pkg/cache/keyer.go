package cache

// Keyer derives cache keys. Every key embeds the page store fingerprint, so
// entries for one snapshot never serve another.
type Keyer interface {
	IndexKey(fingerprint string, n int) string
	TerminalsKey(fingerprint string, n int) string
	BasinKey(fingerprint string, n int, terminal string, opts BasinKeyOpts) string
}

// BasinKeyOpts are the budget parameters that change a basin's content.
// MaxDuration is not part of the key; time-truncated basins are never cached.
type BasinKeyOpts struct {
	MaxDepth int `json:"max_depth"`
	MaxNodes int `json:"max_nodes"`
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// IndexKey keys an encoded rule index.
func (DefaultKeyer) IndexKey(fingerprint string, n int) string {
	return hashKey("index", fingerprint, n)
}

// TerminalsKey keys the terminal list of a rule.
func (DefaultKeyer) TerminalsKey(fingerprint string, n int) string {
	return hashKey("terminals", fingerprint, n)
}

// BasinKey keys an encoded basin.
func (DefaultKeyer) BasinKey(fingerprint string, n int, terminal string, opts BasinKeyOpts) string {
	return hashKey("basin", fingerprint, n, terminal, opts)
}

var _ Keyer = DefaultKeyer{}

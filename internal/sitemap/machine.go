package sitemap

// state is what the most recent structural start-tag says the next <loc>
// refers to.
type state int

const (
	stateOther state = iota
	stateIndex
	stateEntry
)

// String returns the state name.
func (s state) String() string {
	switch s {
	case stateIndex:
		return "index"
	case stateEntry:
		return "entry"
	default:
		return "other"
	}
}

// action is what a text event turns into.
type action int

const (
	actNone action = iota
	// actNested is a sitemap reference to resolve recursively.
	actNested
	// actLeaf is a page URL.
	actLeaf
)

// machine holds the per-document parse state: which structure we are in and
// whether the next text event is a <loc> value. Both fields are only changed
// through startTag and text.
type machine struct {
	state  state
	toRead bool
}

// startTag advances the machine on a start-tag with the given local name.
func (m *machine) startTag(name string) {
	switch name {
	case "urlset":
		// Leaf document marker. Its entries arrive through <url>.
	case "sitemap":
		m.state = stateIndex
	case "url":
		m.state = stateEntry
	case "loc":
		m.toRead = true
	default:
		m.state = stateOther
	}
}

// text consumes a trimmed text event. Empty text is not an event and leaves
// the flag set. Otherwise only the first text event after <loc> is read and
// the flag is cleared whether or not the value is used.
func (m *machine) text(s string) (action, string) {
	if !m.toRead || s == "" {
		return actNone, ""
	}
	m.toRead = false

	switch m.state {
	case stateIndex:
		return actNested, s
	case stateEntry:
		return actLeaf, s
	default:
		return actNone, ""
	}
}

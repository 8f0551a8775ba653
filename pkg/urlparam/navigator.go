package urlparam

// URLMode determines how URL updates are applied by the page shell.
type URLMode int

const (
	// ModeReplace replaces the current history entry without scrolling.
	ModeReplace URLMode = iota

	// ModePush adds a new history entry.
	ModePush
)

func (m URLMode) String() string {
	if m == ModePush {
		return "push"
	}
	return "replace"
}

// Sink delivers a query string to whatever owns the address bar: a
// WebSocket session, a redirect, or a test recorder.
type Sink func(query string, mode URLMode)

// Navigator writes query strings to a sink, dropping writes identical to the
// previous one. A Navigator belongs to one form instance.
type Navigator struct {
	sink   Sink
	last   string
	has    bool
	writes int
}

// NewNavigator creates a navigator that forwards writes to sink. A nil sink
// records writes without delivering them.
func NewNavigator(sink Sink) *Navigator {
	return &Navigator{sink: sink}
}

// Navigate delivers query unless it equals the last written string. It
// reports whether a write happened.
func (n *Navigator) Navigate(query string, mode URLMode) bool {
	if n.has && query == n.last {
		return false
	}
	n.last, n.has = query, true
	n.writes++
	if n.sink != nil {
		n.sink(query, mode)
	}
	return true
}

// Last returns the last written query string.
func (n *Navigator) Last() string {
	return n.last
}

// Reset forgets the last write. Owners call it when the address bar was
// changed by someone else, so writing the old string again is not a repeat.
func (n *Navigator) Reset() {
	n.last, n.has = "", false
}

// Writes returns how many writes reached the sink.
func (n *Navigator) Writes() int {
	return n.writes
}

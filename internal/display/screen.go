package display

import "fmt"

// Screen is either one of the telemetry pages or the diagnostic-code page.
type Screen struct {
	page int
	diag bool
}

// Page selects telemetry page i.
func Page(i int) Screen { return Screen{page: i} }

// Diagnostic is the trouble-code browsing screen.
var Diagnostic = Screen{diag: true}

func (s Screen) IsDiagnostic() bool { return s.diag }

// PageIndex returns the telemetry page number; ok is false on Diagnostic.
func (s Screen) PageIndex() (int, bool) {
	if s.diag {
		return 0, false
	}
	return s.page, true
}

func (s Screen) String() string {
	if s.diag {
		return "diagnostic"
	}
	return fmt.Sprintf("page %d", s.page)
}

// Maxima are the running peaks shown on alternate sub-screens.
type Maxima struct {
	Max1 int `json:"max1"`
	Max2 int `json:"max2"`
}

// State is the screen selection plus the per-page scratch values that are
// discarded whenever the page changes.
type State struct {
	Screen Screen
	Sub    int
	Max    Maxima
	// DiagSeen is set once the MIL-status response has been handled for the
	// current diagnostic entry.
	DiagSeen bool

	total    int
	lastPage int
}

// NewState starts on page initial of total pages. Out of range values fall
// back to page 0.
func NewState(total, initial int) *State {
	if total <= 0 {
		total = 1
	}
	if initial < 0 || initial >= total {
		initial = 0
	}
	return &State{Screen: Page(initial), total: total, lastPage: initial}
}

// Total is the number of telemetry pages.
func (st *State) Total() int { return st.total }

// Change moves dir pages with wraparound and resets the page scratch. Moving
// from Diagnostic lands on the first or last page depending on direction.
func (st *State) Change(dir int) int {
	cur, ok := st.Screen.PageIndex()
	var next int
	switch {
	case !ok && dir >= 0:
		next = 0
	case !ok:
		next = st.total - 1
	case cur+dir >= st.total:
		next = 0
	case cur+dir < 0:
		next = st.total - 1
	default:
		next = cur + dir
	}
	st.Screen = Page(next)
	st.lastPage = next
	st.reset()
	return next
}

// EnterDiagnostic switches to the trouble-code screen.
func (st *State) EnterDiagnostic() {
	if p, ok := st.Screen.PageIndex(); ok {
		st.lastPage = p
	}
	st.Screen = Diagnostic
	st.reset()
}

// LeaveDiagnostic returns to the page shown before EnterDiagnostic.
func (st *State) LeaveDiagnostic() int {
	st.Screen = Page(st.lastPage)
	st.reset()
	return st.lastPage
}

// ToggleSub flips between the primary and alternate sub-screen.
func (st *State) ToggleSub() {
	st.Sub ^= 1
}

func (st *State) reset() {
	st.Sub = 0
	st.Max = Maxima{}
	st.DiagSeen = false
}

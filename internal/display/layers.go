package display

import "time"

// Source names the buffer currently shown on the LCD.
type Source int

const (
	SourceComputed Source = iota
	SourceStatus
	SourceMirror
)

func (s Source) String() string {
	switch s {
	case SourceMirror:
		return "mirror"
	case SourceStatus:
		return "status"
	default:
		return "computed"
	}
}

// Layers holds the three texts that compete for the LCD. The mirrored factory
// text wins while its deadline is in the future, then the status text, and
// otherwise the computed text.
type Layers struct {
	clock Clock

	Computed Text
	Mirrored Text
	Status   Text

	mirrorUntil int64
	statusUntil int64
}

// NewLayers starts with splash as computed text, blank mirror and status
// buffers, and the mirror held for the startup grace period so the factory
// display is untouched while the bus settles.
func NewLayers(clock Clock, splash Text, startupGrace time.Duration) *Layers {
	return &Layers{
		clock:       clock,
		Computed:    splash,
		Mirrored:    Blank,
		Status:      Blank,
		mirrorUntil: clock.Millis() + startupGrace.Milliseconds(),
	}
}

// Source reports which buffer Active returns right now.
func (l *Layers) Source() Source {
	now := l.clock.Millis()
	switch {
	case now < l.mirrorUntil:
		return SourceMirror
	case now < l.statusUntil:
		return SourceStatus
	default:
		return SourceComputed
	}
}

// Active returns the text that belongs on the LCD right now.
func (l *Layers) Active() Text {
	switch l.Source() {
	case SourceMirror:
		return l.Mirrored
	case SourceStatus:
		return l.Status
	default:
		return l.Computed
	}
}

// MirrorActive reports whether factory text currently has priority.
func (l *Layers) MirrorActive() bool {
	return l.clock.Millis() < l.mirrorUntil
}

// ExtendMirror gives the mirrored factory text priority for d from now.
func (l *Layers) ExtendMirror(d time.Duration) {
	l.mirrorUntil = l.clock.Millis() + d.Milliseconds()
}

// ShowStatus puts text on the status layer for d from now.
func (l *Layers) ShowStatus(text string, d time.Duration) {
	l.Status = NewText(text)
	l.statusUntil = l.clock.Millis() + d.Milliseconds()
}

// MirrorHead copies factory characters 0..6 if they differ from the stored
// copy and reports whether they did.
func (l *Layers) MirrorHead(chars []byte) bool {
	return mirror(l.Mirrored[:HeadLen], chars)
}

// MirrorTail copies factory characters 7..11 if they differ from the stored
// copy and reports whether they did.
func (l *Layers) MirrorTail(chars []byte) bool {
	return mirror(l.Mirrored[HeadLen:], chars)
}

func mirror(dst, src []byte) bool {
	changed := false
	for i := range dst {
		if i < len(src) && dst[i] != src[i] {
			changed = true
			break
		}
	}
	if changed {
		copy(dst, src)
	}
	return changed
}

// Package buttons turns steering-wheel button readings into LCD actions.
package buttons

import (
	"strings"
	"time"

	"github.com/shaunagostinho/lcdgauge/internal/display"
)

// Code is a bitmask of buttons held down.
type Code byte

const (
	None  Code = 0x00
	Left  Code = 0x80
	Right Code = 0x40
	Up    Code = 0x20
	Down  Code = 0x10
	Enter Code = 0x08
	Nav   Code = 0x04
	Back  Code = 0x02
	Info  Code = 0x01
)

var names = []struct {
	code Code
	name string
}{
	{Left, "left"}, {Right, "right"}, {Up, "up"}, {Down, "down"},
	{Enter, "enter"}, {Nav, "nav"}, {Back, "back"}, {Info, "info"},
}

// Parse maps a button name to its code.
func Parse(name string) (Code, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		if n.name == name {
			return n.code, true
		}
	}
	return None, false
}

func (c Code) String() string {
	if c == None {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if c&n.code != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

const (
	DebounceTime  = 85 * time.Millisecond
	LongPressTime = 2000 * time.Millisecond
)

// LongPressHandler is notified once per press held longer than LongPressTime.
type LongPressHandler interface {
	OnLongPress()
}

// LongPressFunc adapts a function to LongPressHandler.
type LongPressFunc func()

func (f LongPressFunc) OnLongPress() { f() }

// Debouncer filters raw readings. A reading must stay unchanged for
// DebounceTime before it becomes the reported state.
type Debouncer struct {
	clock    display.Clock
	handlers []LongPressHandler

	raw        Code
	rawSince   int64
	state      Code
	pressStart int64
	pressed    bool
	longFired  bool
}

func NewDebouncer(clock display.Clock) *Debouncer {
	return &Debouncer{clock: clock}
}

// OnLongPress registers h. Handlers run in registration order.
func (d *Debouncer) OnLongPress(h LongPressHandler) {
	d.handlers = append(d.handlers, h)
}

// Update feeds one raw reading and returns the debounced buttons.
func (d *Debouncer) Update(reading Code) Code {
	now := d.clock.Millis()
	if reading != d.raw {
		d.raw = reading
		d.rawSince = now
	}

	if now-d.rawSince > DebounceTime.Milliseconds() && d.state != d.raw {
		d.state = d.raw
		d.pressStart = now
		d.pressed = true
	}

	if !d.longFired && d.pressed && d.state != None && now-d.pressStart >= LongPressTime.Milliseconds() {
		d.longFired = true
		for _, h := range d.handlers {
			h.OnLongPress()
		}
	}

	if d.state == None {
		d.longFired = false
		d.pressed = false
	}
	return d.state
}

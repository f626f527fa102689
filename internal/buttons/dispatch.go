package buttons

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Actions is what the buttons drive.
type Actions interface {
	ChangeScreen(dir int)
	ToggleSubScreen()
	InDiagnostics() bool
	EnterDiagnostics()
	LeaveDiagnostics()
	NextCode()
	PrevCode()
	CheckMILStatus()
	ShowStatus(text string, d time.Duration)
}

// Dispatcher acts on button presses. A press is a transition from no
// buttons to some; holding a button does not repeat it.
type Dispatcher struct {
	actions Actions
	log     *logrus.Entry
	last    Code

	// Locked disables every button except Back, which toggles it.
	Locked bool
}

func NewDispatcher(a Actions, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{actions: a, log: log.WithField("component", "buttons")}
}

// Feed takes the debounced state and acts on new presses.
func (d *Dispatcher) Feed(state Code) {
	prev := d.last
	d.last = state
	if state == None || prev != None {
		return
	}
	d.Press(state)
}

// Press acts on one press of code.
func (d *Dispatcher) Press(code Code) {
	if d.Locked && code != Back {
		return
	}
	d.log.WithField("button", code.String()).Debug("press")

	if code == Back {
		d.Locked = !d.Locked
		if d.Locked {
			d.actions.ShowStatus("Locked", 1500*time.Millisecond)
		} else {
			d.actions.ShowStatus("Unlocked", 1500*time.Millisecond)
		}
		return
	}

	if d.actions.InDiagnostics() {
		switch code {
		case Up, Left:
			d.actions.PrevCode()
		case Down, Right:
			d.actions.NextCode()
		case Nav:
			d.actions.CheckMILStatus()
		case Info:
			d.actions.LeaveDiagnostics()
		}
		return
	}

	switch code {
	case Left, Down:
		d.actions.ChangeScreen(-1)
	case Right, Up:
		d.actions.ChangeScreen(1)
	case Enter:
		d.actions.ToggleSubScreen()
	case Nav, Info:
		d.actions.EnterDiagnostics()
	}
}

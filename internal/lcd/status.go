package lcd

import (
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

// Status is a point-in-time copy of the controller state for outside viewers.
type Status struct {
	Enabled    bool               `json:"enabled"`
	Screen     string             `json:"screen"`
	Page       int                `json:"page"`
	PageName   string             `json:"pageName"`
	Diagnostic bool               `json:"diagnostic"`
	Sub        int                `json:"sub"`
	Text       string             `json:"text"`
	Source     string             `json:"source"`
	Max        display.Maxima     `json:"max"`
	Telemetry  telemetry.Snapshot `json:"telemetry"`
	MIL        bool               `json:"mil"`
	CodeCount  int                `json:"codeCount"`
	Codes      []string           `json:"codes"`
	// Selected is the index of the code under the cursor, -1 on the summary.
	Selected int `json:"selected"`
}

// Status exports the current state.
func (c *Controller) Status() Status {
	st := Status{
		Enabled:    c.opts.Enabled,
		Screen:     c.state.Screen.String(),
		Diagnostic: c.state.Screen.IsDiagnostic(),
		Sub:        c.state.Sub,
		Text:       c.layers.Active().String(),
		Source:     c.layers.Source().String(),
		Max:        c.state.Max,
		Telemetry:  c.snap,
		MIL:        c.mil,
		CodeCount:  c.codes.Capacity(),
		Codes:      c.codes.Codes(),
		Selected:   -1,
	}
	if p, ok := c.state.Screen.PageIndex(); ok {
		st.Page = p
		st.PageName = display.PageName(p)
	}
	if i, ok := c.codes.Selected(); ok {
		st.Selected = i
	}
	return st
}

// Snapshot returns the latest telemetry readings.
func (c *Controller) Snapshot() telemetry.Snapshot { return c.snap }

// Package lcd takes over the instrument LCD: it rewrites the head unit's text
// frames with live engine readings, lets genuine factory messages through for
// a while when they change, and drives the diagnostic requests that feed the
// readings and the trouble-code browser.
//
// A Controller is not safe for concurrent use. The host calls Process for
// every inbound frame and Tick once per loop iteration from one goroutine.
package lcd

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/dtc"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

// MIL-status (mode 01 PID 01) and stored-codes (mode 03) response markers.
const (
	milStatusMode byte = 0x41
	milStatusPID  byte = 0x01
	codesMode     byte = 0x43
	milLampBit    byte = 0x80
	milCountMask  byte = 0x7F // seven-bit OBD-II count field
)

// codePairsStart is the offset of the first code pair in a mode 03 response.
const codePairsStart = 2

// Controller owns every piece of LCD state.
type Controller struct {
	opts  Options
	queue can.Queue
	clock display.Clock
	log   *logrus.Entry

	layers *display.Layers
	state  *display.State
	snap   telemetry.Snapshot
	codes  dtc.Store
	mil    bool

	lastUpdate  int64
	lastService int64
}

// New builds a controller that pushes outbound frames to q. A nil log uses
// the standard logrus logger.
func New(opts Options, q can.Queue, clock display.Clock, log *logrus.Entry) *Controller {
	opts = opts.withDefaults()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{
		opts:   opts,
		queue:  q,
		clock:  clock,
		log:    log.WithField("component", "lcd"),
		layers: display.NewLayers(clock, display.NewText(opts.Splash), opts.StartupGrace),
		state:  display.NewState(display.PageCount(), opts.InitialScreen),
	}
	if !opts.Enabled {
		c.log.Info("LCD override disabled, frames pass through")
	}
	return c
}

// Enabled reports the flag read at construction.
func (c *Controller) Enabled() bool { return c.opts.Enabled }

// Process applies the rewrite rules to one inbound frame and returns it with
// Dispatch set for forwarding. Frames matching no rule keep the caller's
// Dispatch value. Telemetry and trouble codes are picked up from every frame.
func (c *Controller) Process(f can.Frame) can.Frame {
	if !c.opts.Enabled {
		return f
	}

	switch {
	case f.ID == LightControlID && !c.layers.MirrorActive():
		f.Data[1], f.Data[2], f.Data[3] = 0, 0, 0
		f.Data[5], f.Data[6] = 0x27, 0x10
		f.Dispatch = true

	case f.ID == TextHeadID:
		c.layers.MirrorHead(f.Data[1 : 1+display.HeadLen])
		copy(f.Data[1:], c.layers.Active().Head())
		f.Dispatch = true

	case f.ID == TextTailID:
		if c.layers.MirrorTail(f.Data[1 : 1+display.TextLen-display.HeadLen]) {
			c.layers.ExtendMirror(c.opts.MirrorHold)
			c.log.WithField("text", c.layers.Mirrored.String()).Debug("factory text changed")
		}
		copy(f.Data[1:], c.layers.Active().Tail())
		f.Dispatch = true

	case f.ID == DecimalPointID:
		f.Dispatch = false
	}

	c.observe(f)
	return f
}

// observe feeds f to the decoder or the code store and re-renders.
func (c *Controller) observe(f can.Frame) {
	if c.state.Screen.IsDiagnostic() {
		c.observeDiagnostic(f)
		c.layers.Computed = display.RenderDiagnostic(&c.codes)
		return
	}
	if telemetry.Decode(f, &c.snap) {
		c.log.WithField("frame", f.String()).Debug("telemetry decoded")
	}
	page, _ := c.state.Screen.PageIndex()
	c.layers.Computed = display.Render(page, c.state.Sub, &c.snap, &c.state.Max)
}

func (c *Controller) observeDiagnostic(f can.Frame) {
	if f.ID != telemetry.DiagResponseID {
		return
	}
	d := f.Data
	switch {
	case d[1] == milStatusMode && d[2] == milStatusPID && !c.state.DiagSeen:
		c.state.DiagSeen = true
		count := int(d[3] & milCountMask)
		c.mil = d[3]&milLampBit != 0
		if err := c.codes.Initialize(count); err != nil {
			c.log.WithError(err).Warn("cannot start code session")
			return
		}
		c.log.WithFields(logrus.Fields{"count": count, "mil": c.mil}).Info("MIL status received")
		c.GetCodes()

	case d[1] == codesMode:
		if !c.codes.Active() {
			return
		}
		for i := codePairsStart; i+1 < can.MaxLen; i += 2 {
			if err := c.codes.InsertPair(d[i], d[i+1]); err != nil {
				if errors.Is(err, dtc.ErrStoreFull) {
					c.log.WithError(err).Warn("ECU reported more codes than announced")
					continue
				}
				c.log.WithError(err).Warn("cannot store code")
			}
		}
	}
}

// Tick sends a display burst when one is due and runs the service cadence.
// Display bursts wait for UpdateDelay between sends and are held back while
// factory text has priority, which includes the startup grace period.
func (c *Controller) Tick() {
	if !c.opts.Enabled {
		return
	}
	now := c.clock.Millis()

	if now-c.lastUpdate > c.opts.UpdateDelay.Milliseconds() && !c.layers.MirrorActive() {
		for _, f := range DisplayFrames(c.layers.Active()) {
			c.send(f)
		}
		c.lastUpdate = now
	}

	if now < c.lastService+(c.opts.ServiceInterval+c.opts.ExtraDelay).Milliseconds() {
		return
	}
	c.lastService = now

	if c.state.Screen.IsDiagnostic() {
		c.layers.Computed = display.RenderDiagnostic(&c.codes)
		return
	}
	if c.opts.VendorPoll {
		c.VendorPoll()
	}
}

func (c *Controller) send(f can.Frame) {
	if err := c.queue.Push(f); err != nil {
		c.log.WithError(err).WithField("frame", f.String()).Debug("outbound frame dropped")
	}
}

// ShowStatus puts a banner on the LCD for d.
func (c *Controller) ShowStatus(text string, d time.Duration) {
	c.layers.ShowStatus(text, d)
}

// ChangeScreen moves dir pages with wraparound, announces the new page and
// blanks the computed text until the next render.
func (c *Controller) ChangeScreen(dir int) {
	page := c.state.Change(dir)
	c.layers.ShowStatus(display.PageName(page), c.opts.StatusHold)
	c.layers.Computed = display.Blank
	c.log.WithField("page", page).Debug("screen changed")
}

// ToggleSubScreen flips the current page between its primary readings and
// its running maxima.
func (c *Controller) ToggleSubScreen() {
	c.state.ToggleSub()
}

// InDiagnostics reports whether the trouble-code browser is showing.
func (c *Controller) InDiagnostics() bool {
	return c.state.Screen.IsDiagnostic()
}

// EnterDiagnostics switches to the trouble-code browser and starts a new
// session with a MIL-status request.
func (c *Controller) EnterDiagnostics() {
	if c.state.Screen.IsDiagnostic() {
		return
	}
	c.state.EnterDiagnostic()
	c.CheckMILStatus()
	c.layers.Computed = display.RenderDiagnostic(&c.codes)
	c.log.Info("diagnostics entered")
}

// LeaveDiagnostics returns to the page shown before EnterDiagnostics.
func (c *Controller) LeaveDiagnostics() {
	if !c.state.Screen.IsDiagnostic() {
		return
	}
	page := c.state.LeaveDiagnostic()
	c.layers.ShowStatus(display.PageName(page), c.opts.StatusHold)
	c.layers.Computed = display.Blank
	c.log.Info("diagnostics left")
}

// NextCode moves the code cursor forward.
func (c *Controller) NextCode() {
	c.codes.Next()
	c.renderCodes()
}

// PrevCode moves the code cursor backward.
func (c *Controller) PrevCode() {
	c.codes.Prev()
	c.renderCodes()
}

func (c *Controller) renderCodes() {
	if c.state.Screen.IsDiagnostic() {
		c.layers.Computed = display.RenderDiagnostic(&c.codes)
	}
}

// CheckMILStatus drops the previous code session and asks the ECU for the
// MIL state and stored code count.
func (c *Controller) CheckMILStatus() {
	c.codes.Destroy()
	c.state.DiagSeen = false
	c.send(serviceRequest(milStatusRequest))
}

// GetCodes asks the ECU for its stored trouble codes.
func (c *Controller) GetCodes() {
	c.send(serviceRequest(getCodesRequest))
}

// ClearMIL asks the ECU to clear stored codes and turn the lamp off.
func (c *Controller) ClearMIL() {
	c.send(serviceRequest(clearMILRequest))
	c.layers.ShowStatus("CEL Cleared", c.opts.StatusHold)
	c.log.Info("clear MIL requested")
}

// VendorPoll sends the vendor block read followed by its flow control frame.
func (c *Controller) VendorPoll() {
	c.send(serviceRequest(vendorPollRequest))
	c.send(serviceRequest(vendorFlowControl))
}

// OnLongPress clears codes while browsing them. On a telemetry page it only
// re-announces the page; sub-screen and maxima are kept.
func (c *Controller) OnLongPress() {
	if c.state.Screen.IsDiagnostic() {
		c.ClearMIL()
		return
	}
	page, _ := c.state.Screen.PageIndex()
	c.layers.ShowStatus(display.PageName(page), c.opts.StatusHold)
}

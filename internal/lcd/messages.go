package lcd

import (
	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

// Display-side frames.
const (
	TextHeadID     uint16 = 0x290 // characters 0..6 in bytes 1..7
	TextTailID     uint16 = 0x291 // characters 7..11 in bytes 1..5
	LightControlID uint16 = 0x28F // display extras and lights
	DecimalPointID uint16 = 0x201 // decimal point and extras, never forwarded

	TextHeadHeader byte = 0x90
	TextTailHeader byte = 0x87

	// DisplayBus carries the text frames, LightBus the light control frame.
	DisplayBus uint8 = 3
	LightBus   uint8 = 1
)

// neutralLights is the light control payload sent with every display burst.
var neutralLights = [can.MaxLen]byte{0x90, 0x00, 0x00, 0x00, 0x01, 0x27, 0x10, 0x40}

// Service request payloads sent to telemetry.DiagRequestID.
var (
	milStatusRequest  = []byte{0x02, 0x01, 0x01}
	getCodesRequest   = []byte{0x01, 0x03}
	clearMILRequest   = []byte{0x01, 0x04}
	vendorPollRequest = []byte{0x03, 0x22, 0x1E, 0x04}
	vendorFlowControl = []byte{0x30}
)

// DisplayFrames builds the two text frames and the light control frame that
// put txt on the LCD.
func DisplayFrames(txt display.Text) [3]can.Frame {
	head := can.Frame{Bus: DisplayBus, ID: TextHeadID, Len: can.MaxLen, Dispatch: true}
	head.Data[0] = TextHeadHeader
	copy(head.Data[1:], txt.Head())

	tail := can.Frame{Bus: DisplayBus, ID: TextTailID, Len: can.MaxLen, Dispatch: true}
	tail.Data[0] = TextTailHeader
	copy(tail.Data[1:], txt.Tail())

	lights := can.Frame{Bus: LightBus, ID: LightControlID, Len: can.MaxLen, Data: neutralLights, Dispatch: true}
	return [3]can.Frame{head, tail, lights}
}

// TextFromFrames reassembles the LCD text carried by a head and tail frame.
func TextFromFrames(head, tail can.Frame) display.Text {
	var t display.Text
	copy(t[:display.HeadLen], head.Data[1:1+display.HeadLen])
	copy(t[display.HeadLen:], tail.Data[1:1+display.TextLen-display.HeadLen])
	return t
}

func serviceRequest(payload []byte) can.Frame {
	f := can.New(telemetry.PowertrainBus, telemetry.DiagRequestID, payload...)
	f.Len = can.MaxLen
	f.Dispatch = true
	return f
}

// Package can holds the frame type shared by every bus, the outbound queue
// the controller pushes into, and the SLCAN text codec used by serial adapters.
package can

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// MaxLen is the payload size of a classical CAN frame.
const MaxLen = 8

// MaxID is the largest standard (11-bit) identifier.
const MaxID = 0x7FF

var (
	ErrInvalidLength = errors.New("can: invalid data length")
	ErrInvalidID     = errors.New("can: invalid identifier")
)

// Frame is one message seen on, or destined for, one of the vehicle buses.
//
// Dispatch tells the bridge whether the frame should be transmitted after
// processing. It is set by the caller before Process and may be changed by it.
type Frame struct {
	Bus      uint8
	ID       uint16
	Len      uint8
	Data     [MaxLen]byte
	Dispatch bool
}

// New builds a frame with the given payload. Payloads longer than 8 bytes are
// truncated; use Validate when the input is untrusted.
func New(bus uint8, id uint16, data ...byte) Frame {
	f := Frame{Bus: bus, ID: id}
	n := copy(f.Data[:], data)
	f.Len = uint8(n)
	return f
}

// Validate reports whether the identifier and length fit a standard frame.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLength
	}
	if f.ID > MaxID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the used part of Data.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > MaxLen {
		n = MaxLen
	}
	return f.Data[:n]
}

var (
	idColor   = color.New(color.FgGreen).SprintfFunc()
	dataColor = color.New(color.FgRed).SprintfFunc()
	textColor = color.New(color.FgHiBlue).SprintfFunc()
)

func (f Frame) String() string {
	return fmt.Sprintf("bus%d || 0x%03X || %d || %-23s || %s",
		f.Bus, f.ID, f.Len, hexView(f.Payload()), onlyPrintable(f.Payload()))
}

// ColorString is String with the identifier, payload and text view coloured
// for terminal monitoring.
func (f Frame) ColorString() string {
	return fmt.Sprintf("bus%d || %s || %d || %s || %s",
		f.Bus, idColor("0x%03X", f.ID), f.Len,
		dataColor("%-23s", hexView(f.Payload())),
		textColor("%s", onlyPrintable(f.Payload())))
}

func hexView(data []byte) string {
	var out strings.Builder
	for i, b := range data {
		if i > 0 {
			out.WriteByte(' ')
		}
		fmt.Fprintf(&out, "%02X", b)
	}
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteByte('.')
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}

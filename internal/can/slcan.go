package can

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SLCAN bitrate commands, indexed by bit/s.
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	750000:  "S7",
	1000000: "S8",
}

// SLCANBitrate returns the "Sx" setup command for a CAN bitrate.
func SLCANBitrate(bitrate int) (string, error) {
	cmd, ok := slcanBitrates[bitrate]
	if !ok {
		return "", fmt.Errorf("can: unsupported slcan bitrate %d", bitrate)
	}
	return cmd + "\r", nil
}

// EncodeSLCAN renders a standard data frame as "tIIILDD..\r".
func EncodeSLCAN(f Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t%03X%d", f.ID&MaxID, f.Len&0x0F)
	for _, d := range f.Payload() {
		fmt.Fprintf(&b, "%02X", d)
	}
	b.WriteByte('\r')
	return b.String()
}

// DecodeSLCAN parses one received 't' line, without its trailing '\r'.
// The returned frame carries no bus number.
func DecodeSLCAN(line []byte) (Frame, error) {
	if len(line) < 5 || line[0] != 't' {
		return Frame{}, fmt.Errorf("can: not an slcan data frame: %q", line)
	}
	id, err := strconv.ParseUint(string(line[1:4]), 16, 16)
	if err != nil {
		return Frame{}, fmt.Errorf("can: slcan identifier: %w", err)
	}
	if id > MaxID {
		return Frame{}, fmt.Errorf("can: slcan identifier %03X: %w", id, ErrInvalidID)
	}
	n := int(line[4] - '0')
	if n < 0 || n > MaxLen {
		return Frame{}, ErrInvalidLength
	}
	body := line[5:]
	if len(body) < n*2 {
		return Frame{}, fmt.Errorf("can: slcan body too short: want %d bytes, have %q", n, body)
	}
	var f Frame
	f.ID = uint16(id)
	f.Len = uint8(n)
	if _, err := hex.Decode(f.Data[:n], body[:n*2]); err != nil {
		return Frame{}, fmt.Errorf("can: slcan body: %w", err)
	}
	return f, nil
}

// Package telemetry turns powertrain frames into engine readings.
package telemetry

import (
	"github.com/shaunagostinho/lcdgauge/internal/can"
)

// Powertrain frames.
const (
	BoostID        uint16 = 0x0FD // boost sensor, raw in byte 6
	DiagRequestID  uint16 = 0x7E0 // ECU diagnostic request
	DiagResponseID uint16 = 0x7E8 // ECU diagnostic response
	CoolantID      uint16 = 0x420 // coolant sensor, raw in byte 0

	// PowertrainBus is the bus carrying diagnostic traffic and CoolantID.
	PowertrainBus uint8 = 2
)

// ISO-TP PCI bytes of the vendor poll response, used as sub-identifiers
// within DiagResponseID.
const (
	ModeFirstFrame byte = 0x10
	ModeBlock1     byte = 0x21
	ModeBlock2     byte = 0x22
	ModeBlock3     byte = 0x23
	ModeBlock4     byte = 0x24
)

// Snapshot holds the latest value of every decoded quantity. Fields are
// integers in the fixed-point scale noted beside them.
type Snapshot struct {
	AFR          int `json:"afr"`          // air-fuel ratio x10
	Knock        int `json:"knock"`        // knock retard, raw 16-bit
	Boost        int `json:"boost"`        // psi x100
	EGT          int `json:"egt"`          // exhaust gas temp °C
	FuelPressure int `json:"fuelPressure"` // psi
	LTFT         int `json:"ltft"`         // long-term fuel trim, (raw-128) x100
	IAT          int `json:"iat"`          // intake air temp °C
	MAF          int `json:"maf"`          // mass air flow g/s x100
	Spark        int `json:"spark"`        // spark advance, degrees x2
	Throttle     int `json:"throttle"`     // %
	Coolant      int `json:"coolant"`      // °C
	Speed        int `json:"speed"`        // km/h
	RPM          int `json:"rpm"`
	Battery      int `json:"battery"` // raw-40
}

// Decode updates s from f when f carries a known reading and reports
// whether anything changed. Unknown frames are ignored.
func Decode(f can.Frame, s *Snapshot) bool {
	d := f.Data
	switch {
	case f.ID == BoostID:
		s.Boost = BoostFromRaw(d[6])
		return true

	case f.ID == DiagResponseID:
		return decodeDiag(d, s)

	case f.ID == CoolantID && f.Bus == PowertrainBus:
		s.Coolant = int(d[0]) - 40
		return true
	}
	return false
}

func decodeDiag(d [can.MaxLen]byte, s *Snapshot) bool {
	switch d[0] {
	case ModeFirstFrame:
		s.Knock = word(d[6], d[7])
	case ModeBlock1:
		s.Battery = int(d[2]) - 40
		s.AFR = int(d[3]) * 23 / 20
		s.LTFT = (int(d[5]) - 128) * 100
		s.RPM = word(d[6], d[7]) / 4
	case ModeBlock2:
		s.Speed = int(d[1])
		s.Spark = int(d[2]) - 128
		s.MAF = word(d[3], d[4])
		s.FuelPressure = int(float64(word(d[5], d[6])) * 1.45)
	case ModeBlock3:
		s.Throttle = int(d[3]) * 100 / 225
	case ModeBlock4:
		s.IAT = int(d[1]) - 40
	default:
		return false
	}
	return true
}

// BoostFromRaw converts the boost sensor byte to psi x100.
func BoostFromRaw(raw byte) int {
	return int(float64(raw)*14.5 - 1450)
}

func word(hi, lo byte) int {
	return int(hi)<<8 | int(lo)
}

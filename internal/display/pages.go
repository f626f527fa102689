package display

import (
	"fmt"

	"github.com/shaunagostinho/lcdgauge/internal/dtc"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

var degree = string([]byte{DegreeSign})

type page struct {
	name   string
	render func(sub int, s *telemetry.Snapshot, m *Maxima) string
}

var pages = []page{
	{"AFR & KR", renderKnock},
	{"KPH & RPM", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("S:%3d R:%4d", s.Speed, s.RPM)
	}},
	{"Boost & BAT", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("B%6s T%3d", fixed(s.Boost, 100), s.Battery)
	}},
	{"FuelPr Exh.T", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("F:%4d E:%3d", s.FuelPressure, s.EGT)
	}},
	{"IAT(" + degree + "C) LTFT", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("I%3d  L%.2f", s.IAT, float64(s.LTFT)/128)
	}},
	{"MAF & Spark", renderAirflow},
	{"Throttle Pos", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("T.Pos.: %3d%%", s.Throttle)
	}},
	{"Coolant Temp", func(_ int, s *telemetry.Snapshot, _ *Maxima) string {
		return fmt.Sprintf("Temp: %3d%sC", s.Coolant, degree)
	}},
}

// PageCount is the number of telemetry pages.
func PageCount() int { return len(pages) }

// PageName is the banner shown when page i is selected.
func PageName(i int) string {
	if i < 0 || i >= len(pages) {
		return ""
	}
	return pages[i].name
}

// Render draws telemetry page i. Pages with an alternate sub-screen fold the
// current readings into m before drawing.
func Render(i, sub int, s *telemetry.Snapshot, m *Maxima) Text {
	if i < 0 || i >= len(pages) {
		return Blank
	}
	return NewText(pages[i].render(sub, s, m))
}

// RenderDiagnostic draws the code browser: the announced code count while the
// cursor is on the summary, otherwise the selected code.
func RenderDiagnostic(store *dtc.Store) Text {
	code, ok := store.Current()
	if !ok {
		return NewText(fmt.Sprintf("Codes: %2d", store.Capacity()))
	}
	return NewText(fmt.Sprintf("Code: %5s", code))
}

func renderKnock(sub int, s *telemetry.Snapshot, m *Maxima) string {
	if s.Knock > m.Max1 {
		m.Max1 = s.Knock
	}
	if sub == 0 {
		return fmt.Sprintf("A%2d.%1d KR%s", s.AFR/10, s.AFR%10, fixed(s.Knock, 100))
	}
	return fmt.Sprintf("KR%s M%s", fixed(s.Knock, 100), fixed(m.Max1, 100))
}

func renderAirflow(sub int, s *telemetry.Snapshot, m *Maxima) string {
	if s.MAF > m.Max1 {
		m.Max1 = s.MAF
	}
	if s.Spark > m.Max2 {
		m.Max2 = s.Spark
	}
	if sub == 0 {
		return fmt.Sprintf("M%5.1f S%4.1f", float64(s.MAF)/100, float64(s.Spark)/2)
	}
	return fmt.Sprintf(">M%4.1f S%4.1f", float64(m.Max1)/100, float64(m.Max2)/2)
}

// fixed formats v/div with two decimals, keeping the sign for values
// between -1 and 0.
func fixed(v, div int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/div, v%div)
}

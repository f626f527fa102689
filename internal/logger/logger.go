// Package logger records telemetry to CSV files with automatic rotation.
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/internal/lcd"
)

// Logger records timestamped controller snapshots to CSV.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	log      *logrus.Entry
	now      func() time.Time

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs" validate:"min=10"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows (~2.7 hrs at 10 Hz)
)

var csvHeader = []string{
	"timestamp", "screen", "source", "lcd_text",
	"afr", "knock", "boost_psi", "egt_c", "fuel_psi", "ltft_pct",
	"iat_c", "maf_gs", "spark_deg", "tps_pct", "coolant_c",
	"vss_kph", "rpm", "battery",
	"mil", "codes",
}

// New creates a new Logger.
func New(cfg Config, log *logrus.Entry) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/lcdgauge"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 10*time.Millisecond {
		interval = 100 * time.Millisecond // Default 10 Hz
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		log:      log.WithField("component", "logger"),
		now:      time.Now,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a snapshot if the minimum interval has elapsed.
func (l *Logger) Record(st lcd.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := l.now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			l.log.WithError(err).Warn("rotate failed")
			return
		}
	}

	if err := l.writer.Write(buildRow(now, st)); err != nil {
		l.log.WithError(err).Warn("write failed")
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("lcdgauge_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	l.log.WithField("path", path).Info("opened telemetry log")
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, st lcd.Status) []string {
	s := st.Telemetry
	return []string{
		ts.Format(time.RFC3339Nano),
		st.Screen,
		st.Source,
		st.Text,
		fmt.Sprintf("%.1f", float64(s.AFR)/10),
		strconv.Itoa(s.Knock),
		fmt.Sprintf("%.2f", float64(s.Boost)/100),
		strconv.Itoa(s.EGT),
		strconv.Itoa(s.FuelPressure),
		fmt.Sprintf("%.2f", float64(s.LTFT)/128),
		strconv.Itoa(s.IAT),
		fmt.Sprintf("%.2f", float64(s.MAF)/100),
		fmt.Sprintf("%.1f", float64(s.Spark)/2),
		strconv.Itoa(s.Throttle),
		strconv.Itoa(s.Coolant),
		strconv.Itoa(s.Speed),
		strconv.Itoa(s.RPM),
		strconv.Itoa(s.Battery),
		boolStr(st.MIL),
		strconv.Itoa(len(st.Codes)),
	}
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

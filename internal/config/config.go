// Package config loads, validates and saves the gauge configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/lcdgauge/internal/bus"
	"github.com/shaunagostinho/lcdgauge/internal/lcd"
	"github.com/shaunagostinho/lcdgauge/internal/logger"
)

// DefaultPath is used by Save when the config was not loaded from a file.
const DefaultPath = "/etc/lcdgauge/config.yaml"

// Config holds all gauge configuration.
type Config struct {
	mu sync.RWMutex

	// LCD takeover
	LCD LCDConfig `yaml:"lcd" json:"lcd"`

	// Vehicle buses
	Buses []bus.Config `yaml:"buses" json:"buses" validate:"min=1,max=3,unique=ID,dive"`

	// Process log
	Log LogConfig `yaml:"log" json:"log"`

	// CSV telemetry recording
	TelemetryLog logger.Config `yaml:"telemetry_log" json:"telemetryLog"`

	// Web view
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type LCDConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	UpdateMs       int    `yaml:"update_ms" json:"updateMs" validate:"min=50,max=10000"`
	ServiceMs      int    `yaml:"service_ms" json:"serviceMs" validate:"min=1,max=10000"`
	ExtraDelayMs   int    `yaml:"extra_delay_ms" json:"extraDelayMs" validate:"min=0,max=10000"`
	StartupGraceMs int    `yaml:"startup_grace_ms" json:"startupGraceMs" validate:"min=0,max=60000"`
	MirrorHoldMs   int    `yaml:"mirror_hold_ms" json:"mirrorHoldMs" validate:"min=0,max=60000"`
	StatusHoldMs   int    `yaml:"status_hold_ms" json:"statusHoldMs" validate:"min=0,max=60000"`
	// VendorPoll is off when another logger already polls the ECU.
	VendorPoll    bool   `yaml:"vendor_poll" json:"vendorPoll"`
	Splash        string `yaml:"splash" json:"splash" validate:"max=12"`
	InitialScreen int    `yaml:"initial_screen" json:"initialScreen" validate:"min=0,max=7"`
	// QueueSize is the outbound FIFO depth.
	QueueSize int `yaml:"queue_size" json:"queueSize" validate:"min=8,max=4096"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr" validate:"required"`
}

// DefaultConfig returns a config with sensible defaults: the LCD takeover
// enabled and three SocketCAN buses.
func DefaultConfig() *Config {
	return &Config{
		LCD: LCDConfig{
			Enabled:        true,
			UpdateMs:       500,
			ServiceMs:      5,
			ExtraDelayMs:   0,
			StartupGraceMs: 4000,
			MirrorHoldMs:   1500,
			StatusHoldMs:   1500,
			VendorPoll:     true,
			Splash:         "CANBus Gauge",
			InitialScreen:  0,
			QueueSize:      64,
		},
		Buses: []bus.Config{
			{ID: 1, Type: bus.TypeSocketCAN, Interface: "can0", Bitrate: 500000},
			{ID: 2, Type: bus.TypeSocketCAN, Interface: "can1", Bitrate: 500000},
			{ID: 3, Type: bus.TypeSocketCAN, Interface: "can2", Bitrate: 125000},
		},
		Log: LogConfig{Level: "info"},
		TelemetryLog: logger.Config{
			Enabled:    false,
			Path:       "/var/log/lcdgauge",
			IntervalMs: 100,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// DemoBuses replaces every bus with the simulated vehicle.
func (c *Config) DemoBuses() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.Buses {
		c.Buses[i].Type = bus.TypeDemo
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string, log *logrus.Entry) *Config {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "config")

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithField("path", path).Info("no config file, using defaults")
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.WithError(err).WithField("path", path).Warn("cannot parse config, using defaults")
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.WithField("path", path).Info("config loaded")
	}

	// Load .env file from the same directory as the config, or from CWD
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep, log)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string, log *logrus.Entry) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.WithField("path", path).Debug("loading .env")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envBool(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: LCD_ENABLED, LCD_SCREEN, LCD_UPDATE_MS, LCD_EXTRA_DELAY_MS,
// LCD_VENDOR_POLL, LISTEN_ADDR, LOG_LEVEL, LOG_ENABLED, LOG_PATH,
// LOG_INTERVAL_MS and BUS<n>_TYPE, BUS<n>_INTERFACE, BUS<n>_PORT for n in 1..3.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LCD_ENABLED"); v != "" {
		c.LCD.Enabled = envBool(v)
	}
	envInt("LCD_SCREEN", &c.LCD.InitialScreen)
	envInt("LCD_UPDATE_MS", &c.LCD.UpdateMs)
	envInt("LCD_EXTRA_DELAY_MS", &c.LCD.ExtraDelayMs)
	if v := os.Getenv("LCD_VENDOR_POLL"); v != "" {
		c.LCD.VendorPoll = envBool(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	// Telemetry recording
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.TelemetryLog.Enabled = envBool(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.TelemetryLog.Path = v
	}
	envInt("LOG_INTERVAL_MS", &c.TelemetryLog.IntervalMs)

	for id := uint8(1); id <= 3; id++ {
		prefix := fmt.Sprintf("BUS%d_", id)
		typ := os.Getenv(prefix + "TYPE")
		iface := os.Getenv(prefix + "INTERFACE")
		port := os.Getenv(prefix + "PORT")
		if typ == "" && iface == "" && port == "" {
			continue
		}
		b := c.busRef(id)
		if typ != "" {
			b.Type = typ
		}
		if iface != "" {
			b.Interface = iface
		}
		if port != "" {
			b.Port = port
		}
	}
}

// busRef returns the bus with the given id, adding it when missing.
func (c *Config) busRef(id uint8) *bus.Config {
	for i := range c.Buses {
		if c.Buses[i].ID == id {
			return &c.Buses[i]
		}
	}
	c.Buses = append(c.Buses, bus.Config{ID: id, Type: bus.TypeSocketCAN})
	return &c.Buses[len(c.Buses)-1]
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, b := range c.Buses {
		if b.ForwardTo != 0 && b.ForwardTo == b.ID {
			return fmt.Errorf("config: bus %d forwards to itself", b.ID)
		}
	}
	return nil
}

// Options converts the lcd section for the controller.
func (c *Config) Options() lcd.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return lcd.Options{
		Enabled:         c.LCD.Enabled,
		UpdateDelay:     ms(c.LCD.UpdateMs),
		ServiceInterval: ms(c.LCD.ServiceMs),
		ExtraDelay:      ms(c.LCD.ExtraDelayMs),
		StartupGrace:    ms(c.LCD.StartupGraceMs),
		MirrorHold:      ms(c.LCD.MirrorHoldMs),
		StatusHold:      ms(c.LCD.StatusHoldMs),
		VendorPoll:      c.LCD.VendorPoll,
		Splash:          c.LCD.Splash,
		InitialScreen:   c.LCD.InitialScreen,
	}
}

// BusConfigs returns a copy of the bus list.
func (c *Config) BusConfigs() []bus.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bus.Config, len(c.Buses))
	copy(out, c.Buses)
	return out
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() logrus.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Path is the file Save writes to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		return DefaultPath
	}
	return c.path
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	path := c.Path()

	c.mu.RLock()
	data, err := yaml.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved. An update that fails validation is rolled
// back.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	next := DefaultConfig()
	next.Buses = nil
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("unmarshal merged config: %w", err)
	}
	if err := next.validate(); err != nil {
		return err
	}
	c.LCD = next.LCD
	c.Buses = next.Buses
	c.Log = next.Log
	c.TelemetryLog = next.TelemetryLog
	c.Server = next.Server
	return nil
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/lcdgauge/internal/bus"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := LoadConfig(filepath.Join(dir, "config.yaml"), nil)
	assert.Equal(t, DefaultConfig().LCD, cfg.LCD)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.Path())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lcd:
  enabled: false
  update_ms: 250
buses:
  - id: 1
    type: slcan
    port: /dev/ttyACM0
    bitrate: 500000
    dispatch: true
    forward_to: 2
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nLCD_SCREEN=\"5\"\nLISTEN_ADDR=:9999\n"), 0o644))
	t.Setenv("LCD_SCREEN", "")
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BUS2_TYPE", "demo")

	cfg := LoadConfig(path, nil)
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.LCD.Enabled)
	assert.Equal(t, 250, cfg.LCD.UpdateMs)
	assert.Equal(t, 1500, cfg.LCD.MirrorHoldMs, "unset fields keep their defaults")
	assert.Equal(t, 5, cfg.LCD.InitialScreen, ".env fills unset variables")
	assert.Equal(t, ":7000", cfg.Server.ListenAddr, "real env wins over .env")
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel())

	buses := cfg.BusConfigs()
	require.Len(t, buses, 2)
	assert.Equal(t, bus.Config{ID: 1, Type: bus.TypeSLCAN, Port: "/dev/ttyACM0", Bitrate: 500000, Dispatch: true, ForwardTo: 2}, buses[0])
	assert.Equal(t, uint8(2), buses[1].ID)
	assert.Equal(t, bus.TypeDemo, buses[1].Type)
}

func TestBadYAMLFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lcd: [not, a, map"), 0o644))
	cfg := LoadConfig(path, nil)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"screen out of range": func(c *Config) { c.LCD.InitialScreen = 8 },
		"splash too long":     func(c *Config) { c.LCD.Splash = "thirteen char" },
		"unknown transport":   func(c *Config) { c.Buses[0].Type = "usb" },
		"duplicate bus":       func(c *Config) { c.Buses[1].ID = 1 },
		"no buses":            func(c *Config) { c.Buses = nil },
		"self forward":        func(c *Config) { c.Buses[0].ForwardTo = 1 },
		"bad level":           func(c *Config) { c.Log.Level = "loud" },
		"no listen addr":      func(c *Config) { c.Server.ListenAddr = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUpdateFromJSONDeepMerges(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.UpdateFromJSON([]byte(`{"lcd":{"vendorPoll":false},"server":{"listenAddr":":9090"}}`)))

	assert.False(t, cfg.LCD.VendorPoll)
	assert.Equal(t, 500, cfg.LCD.UpdateMs)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Len(t, cfg.Buses, 3)
}

func TestUpdateFromJSONRollsBackInvalid(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.UpdateFromJSON([]byte(`{"lcd":{"initialScreen":42}}`)))
	assert.Equal(t, 0, cfg.LCD.InitialScreen)

	assert.Error(t, cfg.UpdateFromJSON([]byte(`not json`)))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := LoadConfig(path, nil)
	cfg.LCD.Splash = "Hello"
	require.NoError(t, cfg.Save())

	again := LoadConfig(path, nil)
	assert.Equal(t, "Hello", again.LCD.Splash)
	assert.Equal(t, cfg.Buses, again.Buses)
}

func TestOptions(t *testing.T) {
	opts := DefaultConfig().Options()
	assert.True(t, opts.Enabled)
	assert.Equal(t, 500*time.Millisecond, opts.UpdateDelay)
	assert.Equal(t, 5*time.Millisecond, opts.ServiceInterval)
	assert.Equal(t, 4*time.Second, opts.StartupGrace)
	assert.Equal(t, "CANBus Gauge", opts.Splash)
}

func TestDemoBuses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DemoBuses()
	for _, b := range cfg.BusConfigs() {
		assert.Equal(t, bus.TypeDemo, b.Type)
	}
}

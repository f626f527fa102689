package lcd

import "time"

// Options tune the controller. Zero durations are replaced by the defaults.
type Options struct {
	// Enabled is read once at construction; a disabled controller passes
	// every frame through untouched and never transmits.
	Enabled bool

	UpdateDelay     time.Duration // minimum gap between display frame bursts
	ServiceInterval time.Duration // vendor poll cadence
	ExtraDelay      time.Duration // added to ServiceInterval
	StartupGrace    time.Duration // factory text keeps the LCD this long after start
	MirrorHold      time.Duration // factory text priority after it changes
	StatusHold      time.Duration // how long banners stay up

	// VendorPoll sends the vendor diagnostic poll on every service tick.
	// Disable it when another tool is already polling the ECU.
	VendorPoll bool

	Splash        string
	InitialScreen int
}

func DefaultOptions() Options {
	return Options{
		Enabled:         true,
		UpdateDelay:     500 * time.Millisecond,
		ServiceInterval: 5 * time.Millisecond,
		StartupGrace:    4000 * time.Millisecond,
		MirrorHold:      1500 * time.Millisecond,
		StatusHold:      1500 * time.Millisecond,
		VendorPoll:      true,
		Splash:          "CANBus Gauge",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.UpdateDelay <= 0 {
		o.UpdateDelay = def.UpdateDelay
	}
	if o.ServiceInterval <= 0 {
		o.ServiceInterval = def.ServiceInterval
	}
	if o.StartupGrace < 0 {
		o.StartupGrace = 0
	}
	if o.MirrorHold <= 0 {
		o.MirrorHold = def.MirrorHold
	}
	if o.StatusHold <= 0 {
		o.StatusHold = def.StatusHold
	}
	return o
}

// Package bus connects the bridge to the vehicle's CAN buses.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/internal/can"
)

var (
	ErrNotConnected = errors.New("bus: not connected")
	ErrUnsupported  = errors.New("bus: transport not supported on this platform")
	// ErrNoFrame is returned by Read when nothing arrived within the read
	// timeout. Callers check their context and read again.
	ErrNoFrame = errors.New("bus: no frame")
)

// readTimeout bounds how long Read blocks before returning ErrNoFrame.
const readTimeout = 100 * time.Millisecond

// Bus is one CAN interface. Read and Write may be called concurrently with
// each other, but not with Connect or Close.
type Bus interface {
	// Name is a human-readable description for logs.
	Name() string
	// ID is the bus number stamped on every frame read.
	ID() uint8
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	// Read returns the next standard data frame, or ErrNoFrame after the
	// transport's read timeout.
	Read(ctx context.Context) (can.Frame, error)
	Write(f can.Frame) error
}

// Transport types.
const (
	TypeSocketCAN = "socketcan"
	TypeSLCAN     = "slcan"
	TypeDemo      = "demo"
)

// Config describes one bus.
type Config struct {
	ID        uint8  `yaml:"id" json:"id" validate:"min=1,max=3"`
	Type      string `yaml:"type" json:"type" validate:"oneof=socketcan slcan demo"`
	Interface string `yaml:"interface" json:"interface"` // socketcan: can0
	Port      string `yaml:"port" json:"port"`           // slcan: /dev/ttyACM0
	BaudRate  int    `yaml:"baud_rate" json:"baudRate" validate:"omitempty,min=1200"`
	Bitrate   int    `yaml:"bitrate" json:"bitrate" validate:"omitempty,min=10000,max=1000000"`
	// Dispatch is the forwarding default for frames read from this bus
	// before the controller sees them.
	Dispatch bool `yaml:"dispatch" json:"dispatch"`
	// ForwardTo sends dispatched frames to another bus; 0 keeps them on
	// the bus they arrived on.
	ForwardTo uint8 `yaml:"forward_to" json:"forwardTo" validate:"max=3"`
}

// Open builds the transport for cfg. Demo buses are endpoints of sim, which
// must be non-nil when cfg.Type is TypeDemo.
func Open(cfg Config, sim *Vehicle, log *logrus.Entry) (Bus, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"component": "bus", "bus": cfg.ID})
	switch cfg.Type {
	case TypeSocketCAN:
		return NewSocketCAN(cfg.ID, cfg.Interface, log), nil
	case TypeSLCAN:
		return NewSLCAN(cfg, log), nil
	case TypeDemo:
		if sim == nil {
			return nil, fmt.Errorf("bus %d: demo transport without a simulated vehicle", cfg.ID)
		}
		return sim.Bus(cfg.ID), nil
	default:
		return nil, fmt.Errorf("bus %d: unknown transport %q", cfg.ID, cfg.Type)
	}
}

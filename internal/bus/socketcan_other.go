//go:build !linux

package bus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/internal/can"
)

// SocketCAN is only available on Linux.
type SocketCAN struct {
	id     uint8
	ifname string
}

func NewSocketCAN(id uint8, ifname string, _ *logrus.Entry) *SocketCAN {
	return &SocketCAN{id: id, ifname: ifname}
}

func (s *SocketCAN) Name() string                  { return "socketcan:" + s.ifname }
func (s *SocketCAN) ID() uint8                     { return s.id }
func (s *SocketCAN) IsConnected() bool             { return false }
func (s *SocketCAN) Connect(context.Context) error { return ErrUnsupported }
func (s *SocketCAN) Close() error                  { return nil }
func (s *SocketCAN) Write(can.Frame) error         { return ErrUnsupported }
func (s *SocketCAN) Read(context.Context) (can.Frame, error) {
	return can.Frame{}, ErrUnsupported
}

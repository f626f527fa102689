//go:build linux

package bus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/shaunagostinho/lcdgauge/internal/can"
)

// canFrameSize is sizeof(struct can_frame).
const canFrameSize = 16

// SocketCAN is a raw CAN socket bound to a kernel interface such as can0.
type SocketCAN struct {
	id     uint8
	ifname string
	log    *logrus.Entry

	mu        sync.Mutex
	fd        int
	connected bool
}

func NewSocketCAN(id uint8, ifname string, log *logrus.Entry) *SocketCAN {
	return &SocketCAN{id: id, ifname: ifname, log: log, fd: -1}
}

func (s *SocketCAN) Name() string { return "socketcan:" + s.ifname }
func (s *SocketCAN) ID() uint8    { return s.id }

func (s *SocketCAN) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect opens a raw socket, binds it to the interface and sets a short
// receive timeout so Read returns regularly.
func (s *SocketCAN) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("socketcan: create socket: %w", err)
	}
	ifreq, err := unix.NewIfreq(s.ifname)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("socketcan: %s: %w", s.ifname, err)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifreq); err != nil {
		unix.Close(fd)
		return fmt.Errorf("socketcan: interface index of %s: %w", s.ifname, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: int(ifreq.Uint32())}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("socketcan: bind %s: %w", s.ifname, err)
	}
	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("socketcan: receive timeout: %w", err)
	}

	s.mu.Lock()
	s.fd = fd
	s.connected = true
	s.mu.Unlock()
	s.log.WithField("interface", s.ifname).Info("socketcan connected")
	return nil
}

func (s *SocketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}

func (s *SocketCAN) socket() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return -1, ErrNotConnected
	}
	return s.fd, nil
}

// Read skips extended, remote and error frames.
func (s *SocketCAN) Read(ctx context.Context) (can.Frame, error) {
	var buf [canFrameSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return can.Frame{}, err
		}
		fd, err := s.socket()
		if err != nil {
			return can.Frame{}, err
		}
		n, err := unix.Read(fd, buf[:])
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return can.Frame{}, ErrNoFrame
		}
		if err != nil {
			return can.Frame{}, fmt.Errorf("socketcan: read %s: %w", s.ifname, err)
		}
		if n < canFrameSize {
			return can.Frame{}, fmt.Errorf("socketcan: short frame from %s: %d bytes", s.ifname, n)
		}
		raw := binary.LittleEndian.Uint32(buf[0:4])
		if raw&(unix.CAN_EFF_FLAG|unix.CAN_RTR_FLAG|unix.CAN_ERR_FLAG) != 0 {
			continue
		}
		f := can.Frame{Bus: s.id, ID: uint16(raw & unix.CAN_SFF_MASK), Len: buf[4]}
		if f.Len > can.MaxLen {
			f.Len = can.MaxLen
		}
		copy(f.Data[:], buf[8:16])
		return f, nil
	}
}

func (s *SocketCAN) Write(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	fd, err := s.socket()
	if err != nil {
		return err
	}
	var buf [canFrameSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.ID))
	buf[4] = f.Len
	copy(buf[8:], f.Data[:])
	if _, err := unix.Write(fd, buf[:]); err != nil {
		return fmt.Errorf("socketcan: write %s: %w", s.ifname, err)
	}
	return nil
}

package bus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/shaunagostinho/lcdgauge/internal/can"
)

const (
	defaultSLCANBaud    = 115200
	defaultSLCANBitrate = 500000

	drainSilence = 100 * time.Millisecond
	drainTimeout = 1500 * time.Millisecond
	maxLineLen   = 64
)

// SLCAN is a serial-line CAN adapter (CANable, CANtact, Lawicel) speaking
// the ASCII "tIIILDD..\r" protocol.
type SLCAN struct {
	id       uint8
	portPath string
	baudRate int
	bitrate  int
	log      *logrus.Entry

	mu        sync.Mutex
	port      serial.Port
	lines     *lineReader
	connected bool
}

func NewSLCAN(cfg Config, log *logrus.Entry) *SLCAN {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultSLCANBaud
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = defaultSLCANBitrate
	}
	return &SLCAN{
		id:       cfg.ID,
		portPath: cfg.Port,
		baudRate: cfg.BaudRate,
		bitrate:  cfg.Bitrate,
		log:      log,
	}
}

func (s *SLCAN) Name() string { return "slcan:" + s.portPath }
func (s *SLCAN) ID() uint8    { return s.id }

func (s *SLCAN) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect opens the port, clears whatever the adapter printed while booting,
// sets the bitrate and opens the channel.
func (s *SLCAN) Connect(ctx context.Context) error {
	setup, err := can.SLCANBitrate(s.bitrate)
	if err != nil {
		return err
	}
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("slcan: failed to open %s: %w", s.portPath, err)
	}
	if err := ctx.Err(); err != nil {
		port.Close()
		return err
	}

	// Close first in case the channel was left open by a previous run.
	for _, cmd := range []string{"C\r", setup, "O\r"} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			port.Close()
			return fmt.Errorf("slcan: setup %q on %s: %w", cmd, s.portPath, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.drain(port)

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("slcan: failed to set timeout: %w", err)
	}

	s.mu.Lock()
	s.port = port
	s.lines = newLineReader(port)
	s.connected = true
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"port": s.portPath, "bitrate": s.bitrate}).Info("slcan connected")
	return nil
}

// drain discards adapter output until the line is quiet.
func (s *SLCAN) drain(port serial.Port) {
	port.ResetInputBuffer()
	port.SetReadTimeout(drainSilence)

	total := 0
	deadline := time.Now().Add(drainTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, _ := port.Read(buf)
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		s.log.WithField("bytes", total).Debug("drained adapter output")
	}
}

func (s *SLCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	s.port.Write([]byte("C\r"))
	return s.port.Close()
}

func (s *SLCAN) Read(ctx context.Context) (can.Frame, error) {
	s.mu.Lock()
	lines, connected := s.lines, s.connected
	s.mu.Unlock()
	if !connected {
		return can.Frame{}, ErrNotConnected
	}
	for {
		if err := ctx.Err(); err != nil {
			return can.Frame{}, err
		}
		line, err := lines.next()
		if err != nil {
			return can.Frame{}, err
		}
		if len(line) == 0 || line[0] != 't' {
			// acks, status replies and extended frames
			continue
		}
		f, err := can.DecodeSLCAN(line)
		if err != nil {
			s.log.WithError(err).Debug("bad slcan line")
			continue
		}
		f.Bus = s.id
		return f, nil
	}
}

func (s *SLCAN) Write(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	port, connected := s.port, s.connected
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if _, err := port.Write([]byte(can.EncodeSLCAN(f))); err != nil {
		return fmt.Errorf("slcan: write %s: %w", s.portPath, err)
	}
	return nil
}

// lineReader splits a byte stream into '\r' terminated lines. A read that
// returns nothing is reported as ErrNoFrame.
type lineReader struct {
	r   io.Reader
	buf []byte
	tmp [128]byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r}
}

func (l *lineReader) next() ([]byte, error) {
	for {
		if i := bytes.IndexByte(l.buf, '\r'); i >= 0 {
			line := bytes.Clone(l.buf[:i])
			l.buf = l.buf[i+1:]
			return bytes.TrimLeft(line, "\n\a"), nil
		}
		if len(l.buf) > maxLineLen {
			l.buf = l.buf[:0]
		}
		n, err := l.r.Read(l.tmp[:])
		l.buf = append(l.buf, l.tmp[:n]...)
		if err != nil {
			return nil, fmt.Errorf("slcan: read: %w", err)
		}
		if n == 0 {
			return nil, ErrNoFrame
		}
	}
}

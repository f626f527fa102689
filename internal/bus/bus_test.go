package bus

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/dtc"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

func TestLineReaderSplitsOnCR(t *testing.T) {
	l := newLineReader(bytes.NewReader([]byte("z\r\at2900\rt28F3AABBCC\r")))

	line, err := l.next()
	require.NoError(t, err)
	assert.Equal(t, "z", string(line))

	line, err = l.next()
	require.NoError(t, err)
	assert.Equal(t, "t2900", string(line))

	line, err = l.next()
	require.NoError(t, err)
	assert.Equal(t, "t28F3AABBCC", string(line))

	_, err = l.next()
	assert.True(t, errors.Is(err, io.EOF))
}

type silentReader struct{}

func (silentReader) Read([]byte) (int, error) { return 0, nil }

func TestLineReaderTimeout(t *testing.T) {
	_, err := newLineReader(silentReader{}).next()
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestOpen(t *testing.T) {
	b, err := Open(Config{ID: 1, Type: TypeSocketCAN, Interface: "can0"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b.ID())
	assert.Equal(t, "socketcan:can0", b.Name())

	b, err = Open(Config{ID: 2, Type: TypeSLCAN, Port: "/dev/ttyACM0"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "slcan:/dev/ttyACM0", b.Name())
	assert.False(t, b.IsConnected())
	assert.ErrorIs(t, b.Write(can.New(2, 0x100, 1)), ErrNotConnected)

	_, err = Open(Config{ID: 3, Type: TypeDemo}, nil, nil)
	assert.Error(t, err)

	_, err = Open(Config{ID: 3, Type: "carrier-pigeon"}, nil, nil)
	assert.Error(t, err)
}

func connectDemo(t *testing.T, v *Vehicle, id uint8) Bus {
	t.Helper()
	b := v.Bus(id)
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

func readUntil(t *testing.T, b Bus, id uint16) can.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		f, err := b.Read(ctx)
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		require.NoError(t, err)
		if f.ID == id {
			return f
		}
	}
}

func TestDemoNotConnected(t *testing.T) {
	v := NewVehicle(time.Hour)
	b := v.Bus(2)
	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, b.Write(can.New(2, telemetry.DiagRequestID, 1, 3)), ErrNotConnected)
}

func TestDemoStepEmitsPeriodicFrames(t *testing.T) {
	v := NewVehicle(time.Hour)
	pt := connectDemo(t, v, telemetry.PowertrainBus)
	display := connectDemo(t, v, 3)

	for i := 0; i < 4; i++ {
		v.Step()
	}
	coolant := readUntil(t, pt, telemetry.CoolantID)
	assert.GreaterOrEqual(t, int(coolant.Data[0])-40, 85)

	head := readUntil(t, display, 0x290)
	assert.Equal(t, "FM1  10", string(head.Data[1:8]))
}

func TestDemoECUAnswersCodeRequests(t *testing.T) {
	v := NewVehicle(time.Hour)
	pt := connectDemo(t, v, telemetry.PowertrainBus)

	require.NoError(t, pt.Write(can.New(2, telemetry.DiagRequestID, 0x02, 0x01, 0x01, 0, 0, 0, 0, 0)))
	mil := readUntil(t, pt, telemetry.DiagResponseID)
	assert.Equal(t, byte(0x41), mil.Data[1])
	assert.Equal(t, byte(0x83), mil.Data[3])

	require.NoError(t, pt.Write(can.New(2, telemetry.DiagRequestID, 0x01, 0x03, 0, 0, 0, 0, 0, 0)))
	codes := readUntil(t, pt, telemetry.DiagResponseID)
	assert.Equal(t, byte(0x43), codes.Data[1])

	var store dtc.Store
	require.NoError(t, store.Initialize(3))
	for i := 2; i < 8; i += 2 {
		require.NoError(t, store.InsertPair(codes.Data[i], codes.Data[i+1]))
	}
	assert.Equal(t, []string{"P0133", "P0301", "P0171"}, store.Codes())

	require.NoError(t, pt.Write(can.New(2, telemetry.DiagRequestID, 0x01, 0x04, 0, 0, 0, 0, 0, 0)))
	assert.Empty(t, v.Codes())
}

func TestDemoECUAnswersVendorPoll(t *testing.T) {
	v := NewVehicle(time.Hour)
	pt := connectDemo(t, v, telemetry.PowertrainBus)

	require.NoError(t, pt.Write(can.New(2, telemetry.DiagRequestID, 0x03, 0x22, 0x1E, 0x04, 0, 0, 0, 0)))
	first := readUntil(t, pt, telemetry.DiagResponseID)
	assert.Equal(t, telemetry.ModeFirstFrame, first.Data[0])

	require.NoError(t, pt.Write(can.New(2, telemetry.DiagRequestID, 0x30, 0, 0, 0, 0, 0, 0, 0)))
	var snap telemetry.Snapshot
	for _, mode := range []byte{telemetry.ModeBlock1, telemetry.ModeBlock2, telemetry.ModeBlock3, telemetry.ModeBlock4} {
		f := readUntil(t, pt, telemetry.DiagResponseID)
		assert.Equal(t, mode, f.Data[0])
		assert.True(t, telemetry.Decode(f, &snap))
	}
	assert.Equal(t, 14, snap.Battery)
	assert.GreaterOrEqual(t, snap.RPM, 849)
	assert.Equal(t, 43, snap.FuelPressure)
}

func TestDemoRecordsLCDText(t *testing.T) {
	v := NewVehicle(time.Hour)
	display := connectDemo(t, v, 3)

	head := can.New(3, 0x290, 0x90, 'H', 'e', 'l', 'l', 'o', ' ', 'W')
	tail := can.New(3, 0x291, 0x87, 'o', 'r', 'l', 'd', '!', 0, 0)
	require.NoError(t, display.Write(head))
	require.NoError(t, display.Write(tail))
	assert.Equal(t, "Hello World!", v.LCD())
}

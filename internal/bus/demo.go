package bus

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

// Simulated frame identifiers that the vehicle itself sends.
const (
	demoTextHead uint16 = 0x290
	demoTextTail uint16 = 0x291
	demoLights   uint16 = 0x28F
	demoDecimal  uint16 = 0x201
	demoBoostBus uint8  = 1
	demoLightBus uint8  = 1
	demoTextBus  uint8  = 3
)

const demoQueueSize = 256

var demoTexts = []string{"FM1  101.5  ", "FM1  RDS ON ", "AUX         ", "VOL 12      "}

// Vehicle simulates the car behind the three buses: a head unit writing
// text to the LCD, a boost and a coolant sensor, and an ECU answering
// diagnostic requests with plausible telemetry and a few stored codes.
type Vehicle struct {
	period time.Duration

	mu     sync.Mutex
	t      float64 // virtual time accumulator
	tick   int
	rx     map[uint8]chan can.Frame
	codes  [][2]byte
	mil    bool
	lcd    [2]can.Frame
	users  int
	cancel context.CancelFunc
}

// NewVehicle creates a simulation that steps every period.
func NewVehicle(period time.Duration) *Vehicle {
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	v := &Vehicle{
		period: period,
		rx:     make(map[uint8]chan can.Frame),
		// P0133, P0301, P0171
		codes: [][2]byte{{0x01, 0x33}, {0x03, 0x01}, {0x01, 0x71}},
		mil:   true,
	}
	return v
}

// Bus returns the endpoint for bus id.
func (v *Vehicle) Bus(id uint8) Bus {
	return &demoBus{v: v, id: id, rx: v.queue(id)}
}

// LCD returns the text most recently written to the display bus.
func (v *Vehicle) LCD() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var b [12]byte
	copy(b[:7], v.lcd[0].Data[1:8])
	copy(b[7:], v.lcd[1].Data[1:6])
	return string(b[:])
}

// Codes returns the stored trouble-code pairs.
func (v *Vehicle) Codes() [][2]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][2]byte, len(v.codes))
	copy(out, v.codes)
	return out
}

func (v *Vehicle) queue(id uint8) chan can.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch, ok := v.rx[id]
	if !ok {
		ch = make(chan can.Frame, demoQueueSize)
		v.rx[id] = ch
	}
	return ch
}

// emit queues f for readers of its bus, dropping it when nobody keeps up.
// Callers hold v.mu.
func (v *Vehicle) emit(f can.Frame) {
	ch, ok := v.rx[f.Bus]
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (v *Vehicle) start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users++
	if v.users > 1 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go v.run(ctx)
}

func (v *Vehicle) stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.users == 0 {
		return
	}
	v.users--
	if v.users == 0 && v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

func (v *Vehicle) run(ctx context.Context) {
	tk := time.NewTicker(v.period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			v.Step()
		}
	}
}

// Step advances the simulation by one period and emits the periodic frames.
func (v *Vehicle) Step() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.t += v.period.Seconds()
	v.tick++

	// Boost swings between vacuum and about 12 psi.
	boost := 100 + 80*math.Sin(v.t*0.3)*math.Sin(v.t*0.3) + rand.Float64()*3
	v.emit(can.New(demoBoostBus, telemetry.BoostID, 0, 0, 0, 0, 0, 0, byte(boost), 0))

	coolant := 85 + rand.Float64()*5
	v.emit(can.New(telemetry.PowertrainBus, telemetry.CoolantID, byte(coolant+40)))

	// The head unit refreshes its text every few steps and changes it rarely.
	if v.tick%4 == 0 {
		text := demoTexts[(v.tick/100)%len(demoTexts)]
		head := can.New(demoTextBus, demoTextHead, 0x90)
		head.Len = can.MaxLen
		copy(head.Data[1:], text[:7])
		tail := can.New(demoTextBus, demoTextTail, 0x87)
		tail.Len = can.MaxLen
		copy(tail.Data[1:], text[7:])
		v.emit(head)
		v.emit(tail)
		v.emit(can.New(demoLightBus, demoLights, 0x90, 0x02, 0x03, 0x00, 0x01, 0x00, 0x00, 0x40))
		v.emit(can.New(demoTextBus, demoDecimal, 0x00, 0x10))
	}
}

// receive handles a frame the bridge wrote onto bus id.
func (v *Vehicle) receive(f can.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case f.ID == demoTextHead:
		v.lcd[0] = f
	case f.ID == demoTextTail:
		v.lcd[1] = f
	case f.ID == telemetry.DiagRequestID:
		v.answer(f.Data)
	}
}

// answer emits the ECU response to a diagnostic request.
func (v *Vehicle) answer(req [can.MaxLen]byte) {
	respond := func(data ...byte) {
		v.emit(can.New(telemetry.PowertrainBus, telemetry.DiagResponseID, pad(data)...))
	}
	switch {
	case req[0] == 0x02 && req[1] == 0x01 && req[2] == 0x01:
		count := byte(len(v.codes)) & 0x7F
		if v.mil {
			count |= 0x80
		}
		respond(0x06, 0x41, 0x01, count, 0x07, 0xE5, 0x00)

	case req[0] == 0x01 && req[1] == 0x03:
		for i := 0; i < len(v.codes) || i == 0; i += 3 {
			data := []byte{0x06, 0x43}
			for j := i; j < i+3; j++ {
				if j < len(v.codes) {
					data = append(data, v.codes[j][0], v.codes[j][1])
				} else {
					data = append(data, 0, 0)
				}
			}
			respond(data...)
		}

	case req[0] == 0x01 && req[1] == 0x04:
		v.codes = nil
		v.mil = false
		respond(0x01, 0x44)

	case req[0] == 0x03 && req[1] == 0x22:
		knock := uint16(rand.Intn(400))
		respond(telemetry.ModeFirstFrame, 0x26, 0x62, 0x1E, 0x04, 0x00, byte(knock>>8), byte(knock))

	case req[0] == 0x30:
		rpm := 850 + 4000*math.Sin(v.t*0.3)*math.Sin(v.t*0.3)
		raw := uint16(rpm * 4)
		afr := 14.7 - rand.Float64()*2
		respond(telemetry.ModeBlock1, 0x00, byte(14+40), byte(afr*10*20/23), 0x00, byte(128+rand.Intn(4)), byte(raw>>8), byte(raw))

		speed := byte(rpm / 40)
		maf := uint16(rpm / 2)
		fuel := uint16(30) // 43 psi after the x1.45 scale
		respond(telemetry.ModeBlock2, speed, byte(128+20+rand.Intn(10)), byte(maf>>8), byte(maf), byte(fuel>>8), byte(fuel), 0x00)

		tps := (rpm - 850) / 4000 * 225
		respond(telemetry.ModeBlock3, 0x00, 0x00, byte(tps), 0x00, 0x00, 0x00, 0x00)
		respond(telemetry.ModeBlock4, byte(30+40+rand.Intn(8)), 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	}
}

func pad(data []byte) []byte {
	out := make([]byte, can.MaxLen)
	copy(out, data)
	return out
}

// demoBus is one bus of a simulated Vehicle.
type demoBus struct {
	v  *Vehicle
	id uint8
	rx chan can.Frame

	mu        sync.Mutex
	connected bool
}

func (b *demoBus) Name() string { return "demo" }
func (b *demoBus) ID() uint8    { return b.id }

func (b *demoBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *demoBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	b.connected = true
	b.v.start()
	return nil
}

func (b *demoBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	b.v.stop()
	return nil
}

func (b *demoBus) Read(ctx context.Context) (can.Frame, error) {
	if !b.IsConnected() {
		return can.Frame{}, ErrNotConnected
	}
	timer := time.NewTimer(readTimeout)
	defer timer.Stop()
	select {
	case f := <-b.rx:
		return f, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-timer.C:
		return can.Frame{}, ErrNoFrame
	}
}

func (b *demoBus) Write(f can.Frame) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f.Bus = b.id
	b.v.receive(f)
	return nil
}

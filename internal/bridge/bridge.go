// Package bridge runs the loop around the LCD controller: it reads every bus,
// passes each frame through the controller, forwards what should be
// forwarded, ticks the controller and transmits what it queued.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/lcdgauge/internal/bus"
	"github.com/shaunagostinho/lcdgauge/internal/buttons"
	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/lcd"
)

var (
	_ buttons.Actions          = (*lcd.Controller)(nil)
	_ buttons.LongPressHandler = (*lcd.Controller)(nil)
)

// Recorder receives periodic status snapshots, e.g. the CSV logger.
type Recorder interface {
	Record(st lcd.Status)
}

// Options tune the loop.
type Options struct {
	TickInterval    time.Duration
	StatusInterval  time.Duration
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

func DefaultOptions() Options {
	return Options{
		TickInterval:    time.Millisecond,
		StatusInterval:  100 * time.Millisecond,
		ConnectAttempts: 5,
		ConnectDelay:    500 * time.Millisecond,
	}
}

// Bridge owns the controller once Run starts; everything else reaches it
// through Do.
type Bridge struct {
	ctrl  *lcd.Controller
	queue *can.FIFO
	opts  Options
	log   *logrus.Entry

	buses  map[uint8]bus.Bus
	routes map[uint8]bus.Config

	debounce *buttons.Debouncer
	dispatch *buttons.Dispatcher
	held     buttons.Code

	in      chan can.Frame
	actions chan func(*lcd.Controller)

	mu       sync.RWMutex
	status   lcd.Status
	recorder Recorder
	subs     []func(lcd.Status)
}

// New wires a controller to its buses. queue must be the queue the
// controller pushes to. Buses without a matching config use forwarding
// defaults of false and no redirect.
func New(ctrl *lcd.Controller, queue *can.FIFO, clock display.Clock, buses []bus.Bus, cfgs []bus.Config, opts Options, log *logrus.Entry) *Bridge {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = def.StatusInterval
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = def.ConnectAttempts
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = def.ConnectDelay
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	b := &Bridge{
		ctrl:     ctrl,
		queue:    queue,
		opts:     opts,
		log:      log.WithField("component", "bridge"),
		buses:    make(map[uint8]bus.Bus, len(buses)),
		routes:   make(map[uint8]bus.Config, len(cfgs)),
		debounce: buttons.NewDebouncer(clock),
		dispatch: buttons.NewDispatcher(ctrl, log),
		in:       make(chan can.Frame, 256),
		actions:  make(chan func(*lcd.Controller), 16),
		status:   ctrl.Status(),
	}
	b.debounce.OnLongPress(ctrl)
	for _, bs := range buses {
		b.buses[bs.ID()] = bs
	}
	for _, c := range cfgs {
		b.routes[c.ID] = c
	}
	return b
}

// SetRecorder attaches r before Run.
func (b *Bridge) SetRecorder(r Recorder) {
	b.mu.Lock()
	b.recorder = r
	b.mu.Unlock()
}

// Subscribe registers fn to receive every published status. fn runs on the
// loop goroutine and must not block.
func (b *Bridge) Subscribe(fn func(lcd.Status)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Status returns the most recently published status.
func (b *Bridge) Status() lcd.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Do runs fn on the loop goroutine. It returns once fn is queued.
func (b *Bridge) Do(ctx context.Context, fn func(*lcd.Controller)) error {
	select {
	case b.actions <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Press acts on one press of code as if it came from the wheel.
func (b *Bridge) Press(ctx context.Context, code buttons.Code) error {
	return b.Do(ctx, func(*lcd.Controller) { b.dispatch.Press(code) })
}

// Hold reports the buttons currently held down. The state is debounced on
// the loop, so holding a button long enough triggers a long press.
func (b *Bridge) Hold(ctx context.Context, code buttons.Code) error {
	return b.Do(ctx, func(*lcd.Controller) { b.held = code })
}

// Run connects every bus and processes frames until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.connectAll(ctx); err != nil {
		b.closeAll()
		return err
	}
	defer b.closeAll()

	errg, ctx := errgroup.WithContext(ctx)
	for _, bs := range b.buses {
		bs := bs // per-iteration copy; module targets go1.21 loop semantics
		errg.Go(func() error { return b.read(ctx, bs) })
	}
	errg.Go(func() error { return b.loop(ctx) })

	err := errg.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (b *Bridge) connectAll(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)
	for _, bs := range b.buses {
		bs := bs // per-iteration copy; module targets go1.21 loop semantics
		errg.Go(func() error {
			err := retry.Do(func() error {
				return bs.Connect(ctx)
			},
				retry.Context(ctx),
				retry.Attempts(b.opts.ConnectAttempts),
				retry.Delay(b.opts.ConnectDelay),
				retry.DelayType(retry.BackOffDelay),
				retry.OnRetry(func(n uint, err error) {
					b.log.WithError(err).WithFields(logrus.Fields{"bus": bs.ID(), "attempt": n + 1}).Warn("connect failed, retrying")
				}),
				retry.LastErrorOnly(true),
			)
			if err != nil {
				return fmt.Errorf("bridge: connect bus %d (%s): %w", bs.ID(), bs.Name(), err)
			}
			b.log.WithFields(logrus.Fields{"bus": bs.ID(), "transport": bs.Name()}).Info("bus connected")
			return nil
		})
	}
	return errg.Wait()
}

func (b *Bridge) closeAll() {
	for id, bs := range b.buses {
		if err := bs.Close(); err != nil {
			b.log.WithError(err).WithField("bus", id).Warn("close failed")
		}
	}
}

// read pumps frames from one bus into the loop.
func (b *Bridge) read(ctx context.Context, bs bus.Bus) error {
	for {
		f, err := bs.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, bus.ErrNoFrame):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("bridge: read bus %d: %w", bs.ID(), err)
		}
		f.Bus = bs.ID()
		select {
		case b.in <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bridge) loop(ctx context.Context) error {
	tick := time.NewTicker(b.opts.TickInterval)
	defer tick.Stop()
	status := time.NewTicker(b.opts.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-b.in:
			b.handle(f)
		case fn := <-b.actions:
			fn(b.ctrl)
		case <-tick.C:
			b.dispatch.Feed(b.debounce.Update(b.held))
			b.ctrl.Tick()
		case <-status.C:
			b.publish()
		}
		b.flush()
	}
}

// handle runs one inbound frame through the controller and forwards it when
// the result is marked for dispatch.
func (b *Bridge) handle(f can.Frame) {
	route := b.routes[f.Bus]
	f.Dispatch = route.Dispatch
	out := b.ctrl.Process(f)
	if !out.Dispatch {
		return
	}
	if route.ForwardTo != 0 {
		out.Bus = route.ForwardTo
	}
	b.write(out)
}

// flush transmits everything the controller queued.
func (b *Bridge) flush() {
	for _, f := range b.queue.Drain() {
		b.write(f)
	}
}

func (b *Bridge) write(f can.Frame) {
	bs, ok := b.buses[f.Bus]
	if !ok {
		b.log.WithField("frame", f.String()).Debug("no such bus, frame dropped")
		return
	}
	if err := bs.Write(f); err != nil {
		b.log.WithError(err).WithField("frame", f.String()).Debug("write failed")
	}
}

func (b *Bridge) publish() {
	st := b.ctrl.Status()
	b.mu.Lock()
	b.status = st
	rec := b.recorder
	subs := append([]func(lcd.Status){}, b.subs...)
	b.mu.Unlock()

	if rec != nil {
		rec.Record(st)
	}
	for _, fn := range subs {
		fn(st)
	}
}

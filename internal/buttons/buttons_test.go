package buttons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shaunagostinho/lcdgauge/internal/display"
)

type recorder struct {
	diag  bool
	calls []string
}

func (r *recorder) ChangeScreen(dir int) {
	if dir > 0 {
		r.calls = append(r.calls, "next")
	} else {
		r.calls = append(r.calls, "prev")
	}
}
func (r *recorder) ToggleSubScreen() { r.calls = append(r.calls, "sub") }

func (r *recorder) InDiagnostics() bool { return r.diag }

func (r *recorder) EnterDiagnostics() {
	r.diag = true
	r.calls = append(r.calls, "enter-diag")
}

func (r *recorder) LeaveDiagnostics() {
	r.diag = false
	r.calls = append(r.calls, "leave-diag")
}

func (r *recorder) NextCode() { r.calls = append(r.calls, "next-code") }

func (r *recorder) PrevCode() { r.calls = append(r.calls, "prev-code") }

func (r *recorder) CheckMILStatus() { r.calls = append(r.calls, "mil") }

func (r *recorder) ShowStatus(text string, _ time.Duration) {
	r.calls = append(r.calls, "status:"+text)
}

func TestParseAndString(t *testing.T) {
	c, ok := Parse(" Enter ")
	assert.True(t, ok)
	assert.Equal(t, Enter, c)

	_, ok = Parse("horn")
	assert.False(t, ok)

	assert.Equal(t, "none", None.String())
	assert.Equal(t, "left+back", (Left | Back).String())
}

func TestDebounce(t *testing.T) {
	clk := &display.ManualClock{}
	d := NewDebouncer(clk)

	assert.Equal(t, None, d.Update(Right))
	clk.Advance(85 * time.Millisecond)
	assert.Equal(t, None, d.Update(Right), "must be held longer than the debounce time")
	clk.Advance(time.Millisecond)
	assert.Equal(t, Right, d.Update(Right))

	clk.Advance(10 * time.Millisecond)
	assert.Equal(t, Right, d.Update(None), "release is debounced too")
	clk.Advance(86 * time.Millisecond)
	assert.Equal(t, None, d.Update(None))
}

func TestLongPressFiresOncePerHold(t *testing.T) {
	clk := &display.ManualClock{}
	d := NewDebouncer(clk)
	fired := 0
	d.OnLongPress(LongPressFunc(func() { fired++ }))
	d.OnLongPress(LongPressFunc(func() { fired += 10 }))

	d.Update(Enter)
	clk.Advance(100 * time.Millisecond)
	d.Update(Enter)
	clk.Advance(1999 * time.Millisecond)
	d.Update(Enter)
	assert.Zero(t, fired)

	clk.Advance(time.Millisecond)
	d.Update(Enter)
	clk.Advance(time.Second)
	d.Update(Enter)
	assert.Equal(t, 11, fired)

	d.Update(None)
	clk.Advance(100 * time.Millisecond)
	d.Update(None)
	d.Update(Enter)
	clk.Advance(100 * time.Millisecond)
	d.Update(Enter)
	clk.Advance(2 * time.Second)
	d.Update(Enter)
	assert.Equal(t, 22, fired)
}

func TestDispatchTelemetryPages(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(r, nil)

	for _, c := range []Code{Right, Up, Left, Down, Enter} {
		d.Press(c)
	}
	assert.Equal(t, []string{"next", "next", "prev", "prev", "sub"}, r.calls)
}

func TestDispatchDiagnostics(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(r, nil)

	d.Press(Nav)
	d.Press(Down)
	d.Press(Up)
	d.Press(Nav)
	d.Press(Info)
	d.Press(Right)
	assert.Equal(t, []string{"enter-diag", "next-code", "prev-code", "mil", "leave-diag", "next"}, r.calls)
}

func TestLockOnlyLetsBackThrough(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(r, nil)

	d.Press(Back)
	assert.True(t, d.Locked)
	d.Press(Right)
	d.Press(Back)
	assert.False(t, d.Locked)
	d.Press(Right)
	assert.Equal(t, []string{"status:Locked", "status:Unlocked", "next"}, r.calls)
}

func TestFeedActsOnEdgesOnly(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(r, nil)

	d.Feed(Right)
	d.Feed(Right)
	d.Feed(Right | Up)
	d.Feed(None)
	d.Feed(Left)
	assert.Equal(t, []string{"next", "prev"}, r.calls)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/lcdgauge/internal/buttons"
	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/config"
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/lcd"
)

// fakeGauge runs actions immediately against a real controller.
type fakeGauge struct {
	mu      sync.Mutex
	ctrl    *lcd.Controller
	pressed []buttons.Code
	held    []buttons.Code
}

func newFakeGauge() *fakeGauge {
	opts := lcd.DefaultOptions()
	opts.StartupGrace = 0
	logger, _ := test.NewNullLogger()
	ctrl := lcd.New(opts, can.NewFIFO(64), &display.ManualClock{}, logrus.NewEntry(logger))
	return &fakeGauge{ctrl: ctrl}
}

func (g *fakeGauge) Status() lcd.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctrl.Status()
}

func (g *fakeGauge) Do(ctx context.Context, fn func(*lcd.Controller)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.ctrl)
	return nil
}

func (g *fakeGauge) Press(ctx context.Context, code buttons.Code) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pressed = append(g.pressed, code)
	return nil
}

func (g *fakeGauge) Hold(ctx context.Context, code buttons.Code) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = append(g.held, code)
	return nil
}

func (g *fakeGauge) presses() []buttons.Code {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]buttons.Code(nil), g.pressed...)
}

type fakeRecording struct{ on bool }

func (r *fakeRecording) SetEnabled(on bool) { r.on = on }
func (r *fakeRecording) IsEnabled() bool    { return r.on }

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	gauge *fakeGauge
	rec   *fakeRecording
	cfg   *config.Config
	path  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.LoadConfig(path, log)
	f := &fixture{gauge: newFakeGauge(), rec: &fakeRecording{}, cfg: cfg, path: path}
	web := fstest.MapFS{"index.html": {Data: []byte("<html>gauge</html>")}}
	f.srv = New(cfg, f.gauge, f.rec, web, log)
	f.ts = httptest.NewServer(f.srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st lcd.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Enabled)
	assert.Equal(t, "page 0", st.Screen)
	assert.Equal(t, -1, st.Selected)
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigGetAndUpdate(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got, "lcd")
	assert.Contains(t, got, "buses")

	resp = f.post(t, "/api/config", `{"lcd":{"splash":"Hello"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", f.cfg.LCD.Splash)
	assert.FileExists(t, f.path)
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello")

	resp = f.post(t, "/api/config", `{"lcd":{"splash":"far too long for the lcd"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Hello", f.cfg.LCD.Splash)
}

func TestButtonRouting(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		body string
		code int
	}{
		{`{"button":"enter"}`, http.StatusOK},
		{`{"button":"Left","action":"press"}`, http.StatusOK},
		{`{"button":"up","action":"hold"}`, http.StatusOK},
		{`{"action":"release"}`, http.StatusOK},
		{`{"button":"enter","action":"long"}`, http.StatusOK},
		{`{"button":"horn"}`, http.StatusBadRequest},
		{`{"button":"enter","action":"spin"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := f.post(t, "/api/button", tt.body)
		assert.Equal(t, tt.code, resp.StatusCode, tt.body)
	}

	assert.Equal(t, []buttons.Code{buttons.Enter, buttons.Left}, f.gauge.presses())
	assert.Equal(t, []buttons.Code{buttons.Up, buttons.None}, f.gauge.held)
	// The long press re-announced the page without leaving it.
	st := f.gauge.Status()
	assert.Equal(t, display.NewText(display.PageName(0)).String(), st.Text)
	assert.Equal(t, "page 0", st.Screen)
}

func TestDiagActions(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/diag", `{"action":"enter"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.gauge.Status().Diagnostic)

	resp = f.post(t, "/api/diag", `{"action":"leave"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, f.gauge.Status().Diagnostic)

	resp = f.post(t, "/api/diag", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/api/diag", nil)
	require.NoError(t, err)
	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestRecordingToggle(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/recording", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["enabled"])
	assert.True(t, f.rec.on)
}

func TestWebSocketBroadcastAndButtons(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// First frame carries config and status.
	var first Frame
	require.NoError(t, conn.ReadJSON(&first))
	require.NotNil(t, first.Status)
	assert.NotEmpty(t, first.Config)
	require.NotNil(t, first.Recording)
	assert.False(t, *first.Recording)

	// Published status reaches the client.
	f.srv.Publish(lcd.Status{Screen: "diagnostic", Text: "Codes:  3   "})
	var next Frame
	require.NoError(t, conn.ReadJSON(&next))
	require.NotNil(t, next.Status)
	assert.Equal(t, "Codes:  3   ", next.Status.Text)

	// Button events from the page are routed to the gauge.
	require.NoError(t, conn.WriteJSON(ButtonMessage{Button: "right"}))
	require.Eventually(t, func() bool {
		p := f.gauge.presses()
		return len(p) == 1 && p[0] == buttons.Right
	}, 2*time.Second, 10*time.Millisecond)
}

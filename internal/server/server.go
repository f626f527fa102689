// Package server serves the browser view of the gauge: a live copy of the LCD,
// on-screen steering-wheel buttons, the trouble-code browser and the config
// editor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/internal/buttons"
	"github.com/shaunagostinho/lcdgauge/internal/config"
	"github.com/shaunagostinho/lcdgauge/internal/lcd"
)

// actionTimeout bounds how long a request waits for the bridge to accept it.
const actionTimeout = time.Second

// Gauge is the running bridge as seen by the server.
type Gauge interface {
	Status() lcd.Status
	Do(ctx context.Context, fn func(*lcd.Controller)) error
	Press(ctx context.Context, code buttons.Code) error
	Hold(ctx context.Context, code buttons.Code) error
}

// Recording switches the CSV telemetry log.
type Recording interface {
	SetEnabled(on bool)
	IsEnabled() bool
}

// Server broadcasts gauge status to WebSocket clients and takes commands.
type Server struct {
	cfg   *config.Config
	gauge Gauge
	rec   Recording
	webFS fs.FS
	log   *logrus.Entry

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Status    *lcd.Status     `json:"status,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	Recording *bool           `json:"recording,omitempty"`
	Stamp     int64           `json:"stamp"` // Unix ms
}

// ButtonMessage is a button event from a client, over the socket or
// POST /api/button.
type ButtonMessage struct {
	Button string `json:"button"`
	// Action is press (default), hold, release or long.
	Action string `json:"action"`
}

// DiagMessage drives the trouble-code browser.
type DiagMessage struct {
	// Action is enter, leave, check, clear, next or prev.
	Action string `json:"action"`
}

// New creates a new Server. rec may be nil when recording is unavailable.
func New(cfg *config.Config, gauge Gauge, rec Recording, webFS fs.FS, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		cfg:     cfg,
		gauge:   gauge,
		rec:     rec,
		webFS:   webFS,
		log:     log.WithField("component", "server"),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/button", s.handleButton)
	mux.HandleFunc("/api/diag", s.handleDiag)
	mux.HandleFunc("/api/recording", s.handleRecording)
	return mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.log.WithError(err).Warn("shutdown")
		}
	}()

	s.log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Publish sends st to every client. It never blocks.
func (s *Server) Publish(st lcd.Status) {
	s.broadcast(Frame{Status: &st, Stamp: time.Now().UnixMilli()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.log.WithField("clients", n).Info("ws client connected")

	// Send initial config and status
	st := s.gauge.Status()
	first := Frame{Status: &st, Stamp: time.Now().UnixMilli()}
	if data, err := s.cfg.ToJSON(); err == nil {
		first.Config = data
	}
	if s.rec != nil {
		on := s.rec.IsEnabled()
		first.Recording = &on
	}
	if data, err := json.Marshal(first); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine, button events from the page
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			s.log.WithField("clients", n).Info("ws client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var msg ButtonMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.WithError(err).Debug("bad ws message")
				continue
			}
			if err := s.button(context.Background(), msg); err != nil {
				s.log.WithError(err).WithField("button", msg.Button).Debug("button rejected")
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.gauge.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.WithError(err).Warn("config save failed")
		}
		s.log.Info("config updated, bus and LCD changes apply on restart")

		// Broadcast updated config
		if data, err := s.cfg.ToJSON(); err == nil {
			s.broadcast(Frame{Config: data, Stamp: time.Now().UnixMilli()})
		}
		writeOK(w)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg ButtonMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.button(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeOK(w)
}

var (
	errUnknownButton = errors.New("unknown button")
	errUnknownAction = errors.New("unknown action")
)

// button routes one button event to the bridge.
func (s *Server) button(ctx context.Context, msg ButtonMessage) error {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if msg.Action == "release" {
		return s.gauge.Hold(ctx, buttons.None)
	}
	code, ok := buttons.Parse(msg.Button)
	if !ok {
		return errUnknownButton
	}
	switch msg.Action {
	case "", "press":
		return s.gauge.Press(ctx, code)
	case "hold":
		return s.gauge.Hold(ctx, code)
	case "long":
		return s.gauge.Do(ctx, func(c *lcd.Controller) { c.OnLongPress() })
	}
	return errUnknownAction
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg DiagMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var fn func(*lcd.Controller)
	switch msg.Action {
	case "enter":
		fn = (*lcd.Controller).EnterDiagnostics
	case "leave":
		fn = (*lcd.Controller).LeaveDiagnostics
	case "check":
		fn = (*lcd.Controller).CheckMILStatus
	case "clear":
		fn = (*lcd.Controller).ClearMIL
	case "next":
		fn = (*lcd.Controller).NextCode
	case "prev":
		fn = (*lcd.Controller).PrevCode
	default:
		http.Error(w, errUnknownAction.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()
	if err := s.gauge.Do(ctx, fn); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeOK(w)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		http.Error(w, "recording unavailable", http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.rec.SetEnabled(body.Enabled)
		on := body.Enabled
		s.broadcast(Frame{Recording: &on, Stamp: time.Now().UnixMilli()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]bool{"enabled": s.rec.IsEnabled()})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

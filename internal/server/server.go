package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
	"github.com/shaunagostinho/pitft-gps/internal/logger"
)

const odoSaveInterval = 30 * time.Second

// Source hands out receiver snapshots; *gps.Engine is one.
type Source interface {
	Snapshot() gps.Snapshot
}

// Server polls the receiver once per display refresh and broadcasts the
// result to WebSocket clients.
type Server struct {
	cfg      *Config
	src      Source
	webFS    fs.FS
	logger   *logger.Logger
	odo      *Odometer
	gatherer prometheus.Gatherer

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
	GPS    *DisplayData   `json:"gps,omitempty"`
	Config *DisplayConfig `json:"config,omitempty"`
	Odo    *OdoData       `json:"odo,omitempty"`
	Stamp  int64          `json:"stamp"` // Unix ms
}

// New creates a new Server. gatherer may be nil when metrics are off.
func New(cfg *Config, src Source, webFS fs.FS, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:   cfg,
		src:   src,
		webFS: webFS,
		logger: logger.New(logger.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		}),
		odo:      NewOdometer(filepath.Join(filepath.Dir(cfg.Path()), "odometer.dat")),
		gatherer: gatherer,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/odo/reset-trip", s.handleResetTrip)
	if s.cfg.ServerSettings().Metrics && s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run starts the HTTP server and the display loop.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	addr := s.cfg.ServerSettings().ListenAddr
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		save := time.NewTicker(odoSaveInterval)
		defer save.Stop()
		for {
			select {
			case <-save.C:
				s.odo.Save()
			case <-ctx.Done():
				s.odo.Save()
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutCtx)
				return
			}
		}
	}()

	log.Printf("[server] listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 64)}

	// new clients get settings, odometer and the current receiver picture
	// without waiting for the next refresh
	disp := s.cfg.DisplaySettings()
	odo := s.odo.Read()
	now := time.Now()
	if data, err := json.Marshal(Frame{
		GPS:    BuildDisplay(s.src.Snapshot(), disp, now),
		Config: &disp,
		Odo:    &odo,
		Stamp:  now.UnixMilli(),
	}); err == nil {
		c.send <- data
	}
	s.register(c)

	go c.writePump()
	go func() {
		defer s.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) register(c *wsClient) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Printf("[ws] client connected (%d total)", n)
}

// unregister closes send under the lock so broadcast never writes to a
// closed channel.
func (s *Server) unregister(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	close(c.send)
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Printf("[ws] client disconnected (%d total)", n)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode: %v", err)
	}
}

var statusOK = map[string]string{"status": "ok"}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.src.Snapshot())
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
		if err == nil {
			err = s.cfg.UpdateFromJSON(body)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.applyConfig()
		writeJSON(w, statusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// applyConfig persists an updated config and pushes the parts that take
// effect at runtime.
func (s *Server) applyConfig() {
	if err := s.cfg.Save(); err != nil {
		log.Printf("[config] save failed: %v", err)
	}
	s.cfg.mu.RLock()
	logOn := s.cfg.Logging.Enabled
	s.cfg.mu.RUnlock()
	s.logger.SetEnabled(logOn)

	disp := s.cfg.DisplaySettings()
	s.broadcast(Frame{Config: &disp, Stamp: time.Now().UnixMilli()})
}

func (s *Server) handleResetTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.odo.ResetTrip()
	writeJSON(w, statusOK)
}

// pollLoop reads the receiver once per refresh on its own clock; the engine
// never pushes into the display.
func (s *Server) pollLoop(ctx context.Context) {
	refresh := time.Duration(s.cfg.DisplaySettings().RefreshMs) * time.Millisecond
	if refresh <= 0 {
		refresh = time.Second
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	defer s.logger.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Server) tick(now time.Time) {
	snap := s.src.Snapshot()
	s.odo.Update(snap)
	odo := s.odo.Read()

	s.broadcast(Frame{
		GPS:   BuildDisplay(snap, s.cfg.DisplaySettings(), now),
		Odo:   &odo,
		Stamp: now.UnixMilli(),
	})
	s.logger.Record(snap)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default: // slow client drops this frame
		}
	}
}

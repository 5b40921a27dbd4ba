// Package server provides the HTTP API of the airdrums player.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/server/api"
	"github.com/ayusman/airdrums/internal/store"
	"github.com/ayusman/airdrums/internal/trigger"
)

// StateSource exposes the live engine for /api/state.
type StateSource interface {
	Engine() *trigger.Engine
	Observations() []trigger.Observation
	IsEnabled() bool
}

// Config holds the server configuration. Every field is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Kits      api.Activator
	State     StateSource
	Frames    FrameSource
	Hub       *Hub
	Metrics   prometheus.Gatherer
}

// Server represents the HTTP server for the airdrums application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		kits := api.NewKitHandler(s.config.Store, s.config.Kits)
		s.mux.Handle("/api/kits", kits)
		s.mux.Handle("/api/kits/", kits)
	}

	if s.config.State != nil {
		s.mux.HandleFunc("/api/state", s.handleState)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/events", s.config.Hub)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.config.Metrics, promhttp.HandlerOpts{}))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Hub != nil {
		response["clients"] = s.config.Hub.Clients()
	}

	writeJSON(w, response)
}

// FingerState is one assigned finger in the /api/state response.
type FingerState struct {
	kit.Binding
	Extended bool `json:"extended"`
	// LastTriggerMs is the engine time of the last hit, in milliseconds.
	LastTriggerMs *int64 `json:"last_trigger_ms"`
}

// HandState is one hand seen in the latest frame.
type HandState struct {
	Side    string        `json:"side"`
	Center  trigger.Point `json:"center"`
	Fingers []bool        `json:"fingers"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Enabled    bool          `json:"enabled"`
	CooldownMs int64         `json:"cooldown_ms"`
	Fingers    []FingerState `json:"fingers"`
	Hands      []HandState   `json:"hands"`
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	engine := s.config.State.Engine()
	response := StateResponse{
		Enabled:    s.config.State.IsEnabled(),
		CooldownMs: engine.Cooldown().Milliseconds(),
		Fingers:    []FingerState{},
		Hands:      []HandState{},
	}

	for _, b := range engine.Map().Bindings() {
		st, ok := engine.State(b.Side, b.Finger)
		if !ok {
			continue
		}
		fs := FingerState{Binding: b, Extended: st.Extended}
		if st.Triggered {
			ms := st.LastTrigger.Milliseconds()
			fs.LastTriggerMs = &ms
		}
		response.Fingers = append(response.Fingers, fs)
	}

	for _, obs := range s.config.State.Observations() {
		response.Hands = append(response.Hands, HandState{
			Side:    obs.Side.String(),
			Center:  obs.Center,
			Fingers: obs.Fingers,
		})
	}

	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

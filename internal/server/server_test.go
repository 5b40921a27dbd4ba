package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/trigger"
)

// fakeState serves a fixed engine and observation list.
type fakeState struct {
	engine       *trigger.Engine
	observations []trigger.Observation
}

func (f *fakeState) Engine() *trigger.Engine             { return f.engine }
func (f *fakeState) Observations() []trigger.Observation { return f.observations }
func (f *fakeState) IsEnabled() bool                     { return true }

// fakeFrames returns a fixed JPEG payload.
type fakeFrames struct {
	mu    sync.Mutex
	frame []byte
}

func (f *fakeFrames) Preview() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func TestServer_Health(t *testing.T) {
	s := New(Config{Hub: NewHub()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["clients"] != float64(0) {
			t.Errorf("expected 0 clients, got %v", response["clients"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	// Routes without their dependency are not registered.
	for _, path := range []string{"/api/nonexistent", "/api/kits", "/api/state", "/api/stream", "/api/events", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_State(t *testing.T) {
	m := kit.MustNew([]kit.Binding{
		{Side: kit.Left, Finger: kit.Thumb, Code: 38, Name: "Snare"},
		{Side: kit.Left, Finger: kit.Index, Code: 41, Name: "Low Tom"},
	})
	engine := trigger.New(m, 200*time.Millisecond)
	obs := trigger.Observation{
		Side:    kit.Left,
		Center:  trigger.Point{X: 0.3, Y: 0.4},
		Fingers: []bool{true, false, false, false, false},
	}
	if _, err := engine.Process(obs, 1500*time.Millisecond); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	s := New(Config{State: &fakeState{engine: engine, observations: []trigger.Observation{obs}}})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Enabled    bool  `json:"enabled"`
		CooldownMs int64 `json:"cooldown_ms"`
		Fingers    []struct {
			Side          string `json:"side"`
			Finger        string `json:"finger"`
			Code          int    `json:"code"`
			Extended      bool   `json:"extended"`
			LastTriggerMs *int64 `json:"last_trigger_ms"`
		} `json:"fingers"`
		Hands []HandState `json:"hands"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Enabled || resp.CooldownMs != 200 {
		t.Errorf("enabled/cooldown = %v/%d", resp.Enabled, resp.CooldownMs)
	}
	if len(resp.Fingers) != 2 {
		t.Fatalf("expected 2 fingers, got %d", len(resp.Fingers))
	}

	thumb, index := resp.Fingers[0], resp.Fingers[1]
	if thumb.Side != "left" || thumb.Finger != "thumb" || !thumb.Extended {
		t.Errorf("thumb = %+v", thumb)
	}
	if thumb.LastTriggerMs == nil || *thumb.LastTriggerMs != 1500 {
		t.Errorf("thumb last trigger = %v, want 1500", thumb.LastTriggerMs)
	}
	if index.Extended || index.LastTriggerMs != nil {
		t.Errorf("index = %+v, want untouched", index)
	}

	if len(resp.Hands) != 1 || resp.Hands[0].Side != "left" || !resp.Hands[0].Fingers[0] {
		t.Errorf("hands = %+v", resp.Hands)
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airdrums_test_hits_total",
		Help: "Test counter.",
	})
	reg.MustRegister(hits)
	hits.Add(3)

	s := New(Config{Metrics: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "airdrums_test_hits_total 3") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestServer_Stream(t *testing.T) {
	frames := &fakeFrames{frame: []byte("\xff\xd8fake-jpeg\xff\xd9")}
	ts := httptest.NewServer(New(Config{Frames: frames}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q", ct)
	}

	buf := make([]byte, 256)
	n, err := io.ReadAtLeast(resp.Body, buf, len("--frame\r\n"))
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "--frame\r\n") {
		t.Errorf("unexpected stream start %q", buf[:n])
	}

	rec := httptest.NewRecorder()
	New(Config{Frames: frames}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/stream: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}
		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}

func TestServer_ListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(Config{}).ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

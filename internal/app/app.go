// Package app wires the camera, landmark detector, trigger engine and note
// sinks into the airdrums pipeline.
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/airdrums/internal/capture"
	"github.com/ayusman/airdrums/internal/config"
	"github.com/ayusman/airdrums/internal/detector"
	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/overlay"
	"github.com/ayusman/airdrums/internal/sink"
	"github.com/ayusman/airdrums/internal/store"
	"github.com/ayusman/airdrums/internal/trigger"
)

// ErrNoStore is returned by kit operations when the app runs without a
// database.
var ErrNoStore = errors.New("no store configured")

// Config holds the collaborators of an App. Only Settings is required.
type Config struct {
	Settings   *config.Config
	Store      *store.Store          // enables saved kits
	Camera     capture.Camera        // nil opens the configured webcam
	Detector   detector.Detector     // nil tries MediaPipe, then the mock
	Sink       sink.Sink             // nil discards hits
	Registerer prometheus.Registerer // nil disables metrics
}

// Listener is called for every hit, after the sinks.
type Listener func(ev trigger.Event)

// kitAware sinks want the instrument names of the active kit.
type kitAware interface {
	SetKit(m *kit.Map)
}

// App is the running drum kit.
type App struct {
	settings *config.Config
	store    *store.Store
	camera   capture.Camera
	motion   *capture.MotionDetector
	gate     *capture.Gate
	sink     sink.Sink
	renderer *overlay.Renderer
	metrics  *Metrics
	epoch    time.Time

	mu        sync.RWMutex
	detector  detector.Detector
	engine    *trigger.Engine
	kitID     string
	enabled   bool
	stopCh    chan struct{}
	done      chan struct{}
	listeners []Listener
	preview   []byte
	observed  []trigger.Observation
}

// New creates an App. The default kit from the settings is loaded; call
// LoadKit to restore the kit saved in the store.
func New(config Config) (*App, error) {
	if config.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	settings := config.Settings

	m, err := settings.InstrumentMap()
	if err != nil {
		return nil, fmt.Errorf("load kit: %w", err)
	}

	motion := capture.NewMotionDetector(settings.Camera.MotionThreshold)
	a := &App{
		settings: settings,
		store:    config.Store,
		camera:   config.Camera,
		motion:   motion,
		gate:     capture.NewGate(motion, settings.IdleTimeout()),
		sink:     config.Sink,
		renderer: overlay.NewRenderer(overlay.DefaultHitDuration),
		epoch:    time.Now(),
		detector: config.Detector,
		enabled:  true,
	}
	if a.camera == nil {
		a.camera = capture.NewCamera(settings.CaptureConfig())
	}
	if a.sink == nil {
		a.sink = sink.Discard
	}
	if config.Registerer != nil {
		a.metrics = NewMetrics(config.Registerer)
	}

	if a.detector == nil {
		// Try MediaPipe first, fall back to mock detector
		if mp, err := detector.NewMediaPipeDetector(settings.DetectorConfig()); err == nil {
			a.detector = mp
			log.Println("Using MediaPipe hand detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			a.detector = detector.NewMockDetector()
		}
	}

	a.SetKit(m, "")
	return a, nil
}

// SetEnabled enables or disables hit detection.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether hit detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// OnTrigger registers a listener for hits.
func (a *App) OnTrigger(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// SetKit replaces the instrument map. The engine is rebuilt, so all finger
// states and cooldowns start over. id names the saved kit, or is empty for
// the configured one.
func (a *App) SetKit(m *kit.Map, id string) {
	var opts []trigger.Option
	if a.metrics != nil {
		opts = append(opts, trigger.WithObserver(a.metrics))
	}
	engine := trigger.New(m, a.settings.Cooldown(), opts...)

	applyKit(a.sink, m)

	a.mu.Lock()
	a.engine = engine
	a.kitID = id
	a.mu.Unlock()
}

func applyKit(s sink.Sink, m *kit.Map) {
	switch s := s.(type) {
	case sink.Multi:
		for _, inner := range s {
			applyKit(inner, m)
		}
	case kitAware:
		s.SetKit(m)
	}
}

// Engine returns the current trigger engine.
func (a *App) Engine() *trigger.Engine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine
}

// ActiveKit returns the ID of the active saved kit, or "" when the
// configured kit is in use.
func (a *App) ActiveKit() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.kitID
}

// LoadKit restores the active kit recorded in the store. A missing or
// deleted kit leaves the configured kit in place.
func (a *App) LoadKit() error {
	if a.store == nil {
		return nil
	}

	id, err := a.store.Settings().Get(store.KeyActiveKit)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	k, err := a.store.Kits().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Active kit %s no longer exists, using configured kit", id)
		return nil
	}
	if err != nil {
		return err
	}

	m, err := k.Map()
	if err != nil {
		return fmt.Errorf("kit %s: %w", k.Name, err)
	}
	a.SetKit(m, k.ID)
	log.Printf("Loaded kit %q (%d instruments)", k.Name, m.Len())
	return nil
}

// ActivateKit switches to a saved kit and remembers the choice.
func (a *App) ActivateKit(id string) (*store.Kit, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}

	k, err := a.store.Kits().GetByID(id)
	if err != nil {
		return nil, err
	}
	m, err := k.Map()
	if err != nil {
		return nil, err
	}
	if err := a.store.Settings().Set(store.KeyActiveKit, k.ID); err != nil {
		return nil, err
	}

	a.SetKit(m, k.ID)
	log.Printf("Activated kit %q", k.Name)
	return k, nil
}

// Start opens the camera and begins the detection pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.settings.Camera.IdleFPS)

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	log.Println("Detection pipeline started")
	return nil
}

// Stop halts the pipeline and releases the camera, motion detector and
// hand detector.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	a.motion.Close()

	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	log.Println("Detection pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Metrics returns the pipeline metrics, or nil when disabled.
func (a *App) Metrics() *Metrics {
	return a.metrics
}

// Preview returns the latest annotated frame as JPEG, or nil before the
// first frame.
func (a *App) Preview() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview
}

// Observations returns the hands seen in the latest processed frame.
func (a *App) Observations() []trigger.Observation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.observed
}

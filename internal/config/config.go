// Package config loads the airdrums YAML configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/airdrums/internal/capture"
	"github.com/ayusman/airdrums/internal/detector"
	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/sink"
	"github.com/ayusman/airdrums/internal/trigger"
)

// CameraConfig selects and tunes the capture device.
type CameraConfig struct {
	Device          int     `yaml:"device"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	Mirror          bool    `yaml:"mirror"`            // flip frames so the preview acts like a mirror
	IdleFPS         int     `yaml:"idle_fps"`          // sampling rate while nothing moves
	ActiveFPS       int     `yaml:"active_fps"`        // sampling rate while playing
	MotionThreshold float64 `yaml:"motion_threshold"`  // percent of changed pixels that counts as motion
	IdleTimeoutMs   int     `yaml:"idle_timeout_ms"`   // stillness before dropping back to idle
}

// DetectorConfig tunes the hand landmark detector.
type DetectorConfig struct {
	MaxHands               int     `yaml:"max_hands"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	IdleShutdownMs         int     `yaml:"idle_shutdown_ms"` // 0 keeps the subprocess alive
	// FlipHandedness swaps Left and Right labels. Needed when frames reach
	// the detector unmirrored.
	FlipHandedness bool `yaml:"flip_handedness"`
}

// TriggerConfig holds the debounce settings.
type TriggerConfig struct {
	CooldownMs int `yaml:"cooldown_ms"`
}

// MIDIConfig selects the raw MIDI output. An empty device disables it.
type MIDIConfig struct {
	Device   string `yaml:"device"`
	Channel  int    `yaml:"channel"`
	Velocity int    `yaml:"velocity"`
}

// PluginsConfig configures sound plugins. Config holds per-plugin settings
// keyed by plugin name and is passed to the plugin as JSON.
type PluginsConfig struct {
	Dir       string                    `yaml:"dir"`
	TimeoutMs int                       `yaml:"timeout_ms"`
	Config    map[string]map[string]any `yaml:"config,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Kit      kit.File       `yaml:"kit,omitempty"`      // inline kit
	KitFile  string         `yaml:"kit_file,omitempty"` // kit YAML file, relative to the config file
	MIDI     MIDIConfig     `yaml:"midi"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`

	dir string
}

// Default returns the built-in configuration. Data files live under
// ~/.airdrums.
func Default() *Config {
	home := DataDir()
	return &Config{
		Camera: CameraConfig{
			Device:          0,
			Width:           capture.DefaultWidth,
			Height:          capture.DefaultHeight,
			Mirror:          true,
			IdleFPS:         5,
			ActiveFPS:       capture.DefaultFPS,
			MotionThreshold: capture.DefaultMotionThreshold,
			IdleTimeoutMs:   2000,
		},
		Detector: DetectorConfig{
			MaxHands:               2,
			MinDetectionConfidence: 0.85,
			MinTrackingConfidence:  0.5,
			IdleShutdownMs:         30000,
		},
		Trigger: TriggerConfig{
			CooldownMs: int(trigger.DefaultCooldown / time.Millisecond),
		},
		MIDI: MIDIConfig{
			Channel:  sink.DefaultChannel,
			Velocity: sink.DefaultVelocity,
		},
		Plugins: PluginsConfig{
			Dir:       filepath.Join(home, "plugins"),
			TimeoutMs: int(2 * time.Second / time.Millisecond),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Path: filepath.Join(home, "airdrums.db"),
		},
	}
}

// DataDir returns ~/.airdrums, or .airdrums when the home directory is
// unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".airdrums"
	}
	return filepath.Join(home, ".airdrums")
}

// Load reads a YAML file over the defaults and validates the result. Keys
// missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)

	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all configuration fields. Every problem is reported, not
// just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Device < 0 {
		errs = append(errs, fmt.Errorf("camera.device %d must be >= 0", c.Camera.Device))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0 {
		errs = append(errs, fmt.Errorf("camera fps (idle %d, active %d) must be positive", c.Camera.IdleFPS, c.Camera.ActiveFPS))
	} else if c.Camera.IdleFPS > c.Camera.ActiveFPS {
		errs = append(errs, fmt.Errorf("camera.idle_fps %d must not exceed active_fps %d", c.Camera.IdleFPS, c.Camera.ActiveFPS))
	}
	if c.Camera.MotionThreshold <= 0 || c.Camera.MotionThreshold > 100 {
		errs = append(errs, fmt.Errorf("camera.motion_threshold %.2f must be in (0, 100]", c.Camera.MotionThreshold))
	}
	if c.Camera.IdleTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("camera.idle_timeout_ms %d must be positive", c.Camera.IdleTimeoutMs))
	}

	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > 2 {
		errs = append(errs, fmt.Errorf("detector.max_hands %d must be 1 or 2", c.Detector.MaxHands))
	}
	if c.Detector.MinDetectionConfidence < 0 || c.Detector.MinDetectionConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_detection_confidence %.2f must be in [0, 1]", c.Detector.MinDetectionConfidence))
	}
	if c.Detector.MinTrackingConfidence < 0 || c.Detector.MinTrackingConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_tracking_confidence %.2f must be in [0, 1]", c.Detector.MinTrackingConfidence))
	}
	if c.Detector.IdleShutdownMs < 0 {
		errs = append(errs, fmt.Errorf("detector.idle_shutdown_ms %d must be >= 0", c.Detector.IdleShutdownMs))
	}

	if c.Trigger.CooldownMs <= 0 {
		errs = append(errs, fmt.Errorf("trigger.cooldown_ms %d must be positive", c.Trigger.CooldownMs))
	}

	if len(c.Kit) > 0 && c.KitFile != "" {
		errs = append(errs, errors.New("kit and kit_file are mutually exclusive"))
	}
	if len(c.Kit) > 0 {
		if _, err := c.Kit.Map(); err != nil {
			errs = append(errs, fmt.Errorf("kit: %w", err))
		}
	}

	if err := c.SinkMIDI().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("midi: %w", err))
	}

	if c.Plugins.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("plugins.timeout_ms %d must be positive", c.Plugins.TimeoutMs))
	}
	if _, err := c.PluginConfigs(); err != nil {
		errs = append(errs, fmt.Errorf("plugins.config: %w", err))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	return errors.Join(errs...)
}

// Cooldown returns the trigger cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trigger.CooldownMs) * time.Millisecond
}

// IdleTimeout returns how long the pipeline stays active without motion.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Camera.IdleTimeoutMs) * time.Millisecond
}

// PluginTimeout returns the per-run plugin timeout.
func (c *Config) PluginTimeout() time.Duration {
	return time.Duration(c.Plugins.TimeoutMs) * time.Millisecond
}

// CaptureConfig returns the camera settings. The camera opens at the active
// frame rate; the pipeline lowers it while idle.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.Device,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.ActiveFPS,
		Mirror:   c.Camera.Mirror,
	}
}

// DetectorConfig returns the landmark detector settings.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		MaxHands:        c.Detector.MaxHands,
		MinConfidence:   c.Detector.MinDetectionConfidence,
		MinTrackingConf: c.Detector.MinTrackingConfidence,
		IdleShutdown:    time.Duration(c.Detector.IdleShutdownMs) * time.Millisecond,
	}
}

// SinkMIDI returns the note-on channel and velocity.
func (c *Config) SinkMIDI() sink.MIDIConfig {
	return sink.MIDIConfig{
		Channel:  c.MIDI.Channel,
		Velocity: c.MIDI.Velocity,
	}
}

// PluginConfigs encodes each plugin's settings as JSON.
func (c *Config) PluginConfigs() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(c.Plugins.Config))
	for name, settings := range c.Plugins.Config {
		data, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// InstrumentMap resolves the kit: the inline kit, then kit_file, then the
// default ten-piece kit.
func (c *Config) InstrumentMap() (*kit.Map, error) {
	if len(c.Kit) > 0 {
		return c.Kit.Map()
	}
	if c.KitFile != "" {
		path := c.KitFile
		if !filepath.IsAbs(path) && c.dir != "" {
			path = filepath.Join(c.dir, path)
		}
		return kit.LoadFile(path)
	}
	return kit.Default(), nil
}

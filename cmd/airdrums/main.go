// Airdrums plays a drum kit with your fingers in front of a webcam.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ayusman/airdrums/internal/app"
	"github.com/ayusman/airdrums/internal/config"
	"github.com/ayusman/airdrums/internal/detector"
	"github.com/ayusman/airdrums/internal/plugin"
	"github.com/ayusman/airdrums/internal/server"
	"github.com/ayusman/airdrums/internal/sink"
	"github.com/ayusman/airdrums/internal/store"
	"github.com/ayusman/airdrums/internal/tray"
	"github.com/ayusman/airdrums/internal/trigger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("airdrums: %v", err)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to the YAML config file (default ~/.airdrums/airdrums.yaml if present)")
		addr       = flag.String("addr", "", "HTTP listen address, overrides server.addr")
		dbPath     = flag.String("db", "", "SQLite database path, overrides store.path")
		useTray    = flag.Bool("tray", runtime.GOOS == "darwin", "show the system tray menu")
		headless   = flag.Bool("headless", false, "serve the API without opening the camera")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	appCfg := app.Config{
		Settings:   cfg,
		Store:      st,
		Sink:       sinks,
		Registerer: reg,
	}
	if *headless {
		appCfg.Detector = detector.NewMockDetector()
	}
	a, err := app.New(appCfg)
	if err != nil {
		return err
	}
	defer a.Stop()
	if err := a.LoadKit(); err != nil {
		log.Printf("Failed to restore active kit: %v", err)
	}

	var tr *tray.Tray
	if *useTray {
		tr = tray.New()
		tr.OnToggle(a.SetEnabled)
		tr.OnSettings(func() { openBrowser(browserURL(cfg.Server.Addr)) })
		tr.OnQuit(stop)
		tr.SetKit(kitName(st, a.ActiveKit()))
	}

	hub := server.NewHub()
	a.OnTrigger(hub.Publish)
	a.OnTrigger(func(ev trigger.Event) {
		log.Printf("Hit: %s %s -> %s (%d)", ev.Side, ev.Finger, ev.Name, ev.Code)
		if tr != nil {
			tr.SetLastHit(ev.Name)
		}
	})

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Printf("Serving static files from: %s", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Kits:      trayActivator{App: a, tray: tr},
		State:     a,
		Frames:    a,
		Hub:       hub,
		Metrics:   reg,
	})

	if !*headless {
		if err := a.Start(); err != nil {
			return fmt.Errorf("start pipeline: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	if tr != nil {
		// systray owns the main goroutine until Quit.
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		tr.Run()
		stop()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		if err := <-errCh; err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}

	log.Println("Shutting down")
	return nil
}

// loadConfig reads path, or the default config file when path is empty. A
// missing default file yields the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	path = filepath.Join(config.DataDir(), "airdrums.yaml")
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	log.Printf("Using config %s", path)
	return config.Load(path)
}

// buildSinks assembles the note outputs: the MIDI device when configured and
// every note_on plugin found in the plugin directory.
func buildSinks(cfg *config.Config) (sink.Multi, func(), error) {
	var (
		sinks   sink.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("Error closing sink: %v", err)
			}
		}
	}

	if cfg.MIDI.Device != "" {
		dev, err := sink.OpenMIDIDevice(cfg.MIDI.Device)
		if err != nil {
			return nil, nil, err
		}
		midi, err := sink.NewMIDI(dev, cfg.SinkMIDI())
		if err != nil {
			dev.Close()
			return nil, nil, err
		}
		sinks = append(sinks, midi)
		closers = append(closers, midi.Close)
		log.Printf("Sending MIDI to %s (channel %d)", cfg.MIDI.Device, cfg.MIDI.Channel+1)
	}

	mgr := plugin.NewManager(cfg.Plugins.Dir)
	if err := mgr.Discover(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}
	if players := mgr.ForAction(plugin.ActionNoteOn); len(players) > 0 {
		configs, err := cfg.PluginConfigs()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		plugins := sink.NewPlugin(mgr, plugin.NewExecutor(cfg.PluginTimeout()), sink.PluginConfig{
			MIDI:    cfg.SinkMIDI(),
			Configs: configs,
		})
		sinks = append(sinks, plugins)
		closers = append(closers, plugins.Close)
		log.Printf("Loaded %d note plugins from %s", len(players), cfg.Plugins.Dir)
	}

	if len(sinks) == 0 {
		log.Println("No MIDI device or note plugins configured, hits are only logged")
	}
	return sinks, closeAll, nil
}

// trayActivator mirrors kit switches made through the API in the tray.
type trayActivator struct {
	*app.App
	tray *tray.Tray
}

func (t trayActivator) ActivateKit(id string) (*store.Kit, error) {
	k, err := t.App.ActivateKit(id)
	if err == nil && t.tray != nil {
		t.tray.SetKit(k.Name)
	}
	return k, err
}

func kitName(st *store.Store, id string) string {
	if id == "" {
		return ""
	}
	k, err := st.Kits().GetByID(id)
	if err != nil {
		return ""
	}
	return k.Name
}

func browserURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.airdrums/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

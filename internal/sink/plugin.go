package sink

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/plugin"
)

// DefaultMaxInFlight bounds concurrent plugin runs. Hits beyond it are
// dropped rather than queued, since a late drum hit is worse than none.
const DefaultMaxInFlight = 8

// Plugin runs every discovered plugin that handles the note_on action.
// Runs happen on their own goroutines; Emit returns immediately.
type Plugin struct {
	manager  *plugin.Manager
	executor *plugin.Executor
	midi     MIDIConfig
	configs  map[string]json.RawMessage

	mu    sync.RWMutex
	names map[int]string

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup
}

// PluginConfig configures a Plugin sink.
type PluginConfig struct {
	// MIDI supplies channel and velocity for the request params.
	MIDI MIDIConfig
	// Configs holds per-plugin configuration keyed by plugin name.
	Configs map[string]json.RawMessage
	// MaxInFlight bounds concurrent runs; <= 0 selects DefaultMaxInFlight.
	MaxInFlight int
}

// NewPlugin creates a plugin sink. The manager must already have run
// Discover.
func NewPlugin(manager *plugin.Manager, executor *plugin.Executor, config PluginConfig) *Plugin {
	n := config.MaxInFlight
	if n <= 0 {
		n = DefaultMaxInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Plugin{
		manager:  manager,
		executor: executor,
		midi:     config.MIDI,
		configs:  config.Configs,
		names:    make(map[int]string),
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, n),
	}
}

// SetKit updates the code to instrument name table sent with each request.
func (p *Plugin) SetKit(m *kit.Map) {
	names := make(map[int]string)
	for _, b := range m.Bindings() {
		if _, ok := names[b.Code]; !ok {
			names[b.Code] = b.Name
		}
	}
	p.mu.Lock()
	p.names = names
	p.mu.Unlock()
}

func (p *Plugin) name(code int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.names[code]
}

// Emit starts one run per note_on plugin.
func (p *Plugin) Emit(code int) {
	plugins := p.manager.ForAction(plugin.ActionNoteOn)
	if len(plugins) == 0 {
		return
	}

	params := plugin.NoteParams{
		Code:     code,
		Velocity: p.midi.Velocity,
		Channel:  p.midi.Channel,
		Name:     p.name(code),
	}

	for _, plug := range plugins {
		req, err := plugin.NewNoteRequest(params, p.configs[plug.Manifest.Name])
		if err != nil {
			log.Printf("sink: plugin %s: %v", plug.Manifest.Name, err)
			continue
		}

		select {
		case p.slots <- struct{}{}:
		default:
			log.Printf("sink: plugin %s busy, dropping note %d", plug.Manifest.Name, code)
			continue
		}

		p.wg.Add(1)
		go func(plug *plugin.Plugin) {
			defer p.wg.Done()
			defer func() { <-p.slots }()

			resp, err := p.executor.Execute(p.ctx, plug, req)
			if err != nil {
				log.Printf("sink: plugin %s: %v", plug.Manifest.Name, err)
				return
			}
			if !resp.Success {
				log.Printf("sink: plugin %s: %s", plug.Manifest.Name, resp.Error)
			}
		}(plug)
	}
}

// Wait blocks until all started runs have finished.
func (p *Plugin) Wait() {
	p.wg.Wait()
}

// Close cancels running plugins and waits for them to exit.
func (p *Plugin) Close() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

// Package plugin discovers and runs external sound plugins. A plugin is a
// directory holding a plugin.json manifest and an executable that reads one
// JSON request on stdin and answers with one JSON response on stdout.
package plugin

import "encoding/json"

// ActionNoteOn is the action sent for every drum hit.
const ActionNoteOn = "note_on"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the plugin declares the given action.
func (m Manifest) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action     string          `json:"action"`
	Instrument string          `json:"instrument"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// NoteParams are the params of a note_on request.
type NoteParams struct {
	Code     int    `json:"code"`
	Velocity int    `json:"velocity"`
	Channel  int    `json:"channel"`
	Name     string `json:"name"`
}

// NewNoteRequest builds a note_on request. config is the per-plugin
// configuration from the application config file and may be nil.
func NewNoteRequest(p NoteParams, config json.RawMessage) (*Request, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Request{
		Action:     ActionNoteOn,
		Instrument: p.Name,
		Config:     config,
		Params:     params,
	}, nil
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Package main provides a sample player plugin.
// It starts an audio player for the sample file mapped to the hit's code
// and returns without waiting for playback to finish.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	Instrument string          `json:"instrument"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NoteParams defines parameters for the note_on action.
type NoteParams struct {
	Code     int    `json:"code"`
	Velocity int    `json:"velocity"`
	Channel  int    `json:"channel"`
	Name     string `json:"name"`
}

// Config maps codes to sample files. Relative paths are resolved against
// the plugin directory. Player overrides the platform default.
type Config struct {
	Player  string            `json:"player"`
	Samples map[string]string `json:"samples"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Action {
	case "note_on":
		sample, err := handleNoteOn(req)
		if err != nil {
			writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
			return
		}
		writeSuccessResponse(sample)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// handleNoteOn starts playback of the sample for the requested code and
// returns the sample path.
func handleNoteOn(req Request) (string, error) {
	var p NoteParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return "", fmt.Errorf("failed to parse params: %w", err)
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}

	sample, ok := cfg.Samples[strconv.Itoa(p.Code)]
	if !ok || sample == "" {
		return "", fmt.Errorf("no sample configured for code %d (%s)", p.Code, p.Name)
	}
	if !filepath.IsAbs(sample) {
		sample = filepath.Join(pluginDir(), sample)
	}
	if _, err := os.Stat(sample); err != nil {
		return "", fmt.Errorf("sample %s: %w", sample, err)
	}

	player := cfg.Player
	if player == "" {
		player = defaultPlayer()
	}
	if player == "" {
		return "", fmt.Errorf("no audio player for %s", runtime.GOOS)
	}

	cmd := exec.Command(player, sample)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", player, err)
	}
	// Playback outlives this process.
	cmd.Process.Release()

	return sample, nil
}

func defaultPlayer() string {
	switch runtime.GOOS {
	case "darwin":
		return "afplay"
	case "linux":
		return "aplay"
	}
	return ""
}

func pluginDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response naming the played sample.
func writeSuccessResponse(sample string) {
	data, _ := json.Marshal(map[string]string{"sample": sample})
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, name, script string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    []string{ActionNoteOn},
		},
		Path:       dir,
		Executable: path,
	}
}

func noteRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewNoteRequest(
		NoteParams{Code: 38, Velocity: 127, Channel: 9, Name: "Snare"},
		json.RawMessage(`{"samples":{"38":"snare.wav"}}`),
	)
	if err != nil {
		t.Fatalf("NewNoteRequest() error = %v", err)
	}
	return req
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "ok", `echo '{"success":true,"data":{"message":"played"}}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, noteRequest(t))
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "played" {
		t.Errorf("expected message 'played', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo", `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, noteRequest(t))
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received struct {
			Action     string         `json:"action"`
			Instrument string         `json:"instrument"`
			Params     NoteParams     `json:"params"`
			Config     map[string]any `json:"config"`
		} `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	got := data.Received
	if got.Action != ActionNoteOn {
		t.Errorf("action = %q, want %q", got.Action, ActionNoteOn)
	}
	if got.Instrument != "Snare" {
		t.Errorf("instrument = %q, want Snare", got.Instrument)
	}
	want := NoteParams{Code: 38, Velocity: 127, Channel: 9, Name: "Snare"}
	if got.Params != want {
		t.Errorf("params = %+v, want %+v", got.Params, want)
	}
	if _, ok := got.Config["samples"]; !ok {
		t.Errorf("config not forwarded: %v", got.Config)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow", `sleep 10
echo '{"success":true}'
`)

	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), plugin, noteRequest(t))
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got: %v", err)
	}
}

func TestExecutor_Cancelled(t *testing.T) {
	plugin := scriptPlugin(t, "slow", "sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewExecutor(5*time.Second).Execute(ctx, plugin, noteRequest(t)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantErr     bool
		wantRespErr string
	}{
		{"error response", "echo '{\"success\":false,\"error\":\"no sample\"}'\n", false, "no sample"},
		{"invalid json", "echo 'not valid json'\n", true, ""},
		{"non-zero exit", "echo 'Error: something failed' >&2\nexit 1\n", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "p", tt.script)
			resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, noteRequest(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() failed: %v", err)
			}
			if resp.Success {
				t.Errorf("expected success=false, got true")
			}
			if resp.Error != tt.wantRespErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantRespErr)
			}
		})
	}
}

func TestNewExecutor(t *testing.T) {
	if got := NewExecutor(3 * time.Second).Timeout(); got != 3*time.Second {
		t.Errorf("Timeout() = %s, want 3s", got)
	}
	if got := NewExecutor(0).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %s, want default %s", got, DefaultTimeout)
	}
}

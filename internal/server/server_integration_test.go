package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/airdrums/internal/store"
)

// storeActivator persists the active kit like the app does, without an
// engine.
type storeActivator struct {
	store *store.Store
}

func (a storeActivator) ActivateKit(id string) (*store.Kit, error) {
	k, err := a.store.Kits().GetByID(id)
	if err != nil {
		return nil, err
	}
	return k, a.store.Settings().Set(store.KeyActiveKit, id)
}

func (a storeActivator) ActiveKit() string {
	id, _ := a.store.Settings().Get(store.KeyActiveKit)
	return id
}

func TestAPI_KitWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s, Kits: storeActivator{store: s}})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a kit
	createBody := `{"name": "Rock", "bindings": [
		{"side": "left", "finger": "thumb", "code": 38, "name": "Snare"},
		{"side": "right", "finger": "thumb", "code": 36, "name": "Bass"}]}`
	resp, err := client.Post(ts.URL+"/api/kits", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/kits error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "Rock" {
		t.Errorf("created name = %s, want Rock", created.Name)
	}

	// 2. Activate it
	resp, err = client.Post(ts.URL+"/api/kits/"+created.ID+"/activate", "application/json", nil)
	if err != nil {
		t.Fatalf("POST activate error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 3. List shows it as active
	resp, _ = client.Get(ts.URL + "/api/kits")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/kits status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Kits []struct {
			ID       string            `json:"id"`
			Active   bool              `json:"active"`
			Bindings []json.RawMessage `json:"bindings"`
		} `json:"kits"`
		Active string `json:"active"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Kits) != 1 || !listed.Kits[0].Active || listed.Active != created.ID {
		t.Fatalf("listed = %+v", listed)
	}
	if len(listed.Kits[0].Bindings) != 2 {
		t.Errorf("len(bindings) = %d, want 2", len(listed.Kits[0].Bindings))
	}

	// 4. Delete it
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/kits/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 5. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/kits/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

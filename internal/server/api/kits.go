// Package api provides HTTP API handlers for saved drum kits.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/store"
)

// Activator switches the running engine to a saved kit.
type Activator interface {
	ActivateKit(id string) (*store.Kit, error)
	ActiveKit() string
}

// KitHandler handles HTTP requests for kit resources.
type KitHandler struct {
	store     *store.Store
	activator Activator
}

// NewKitHandler creates a new KitHandler. activator may be nil, in which
// case activation requests fail with 503.
func NewKitHandler(s *store.Store, activator Activator) *KitHandler {
	return &KitHandler{store: s, activator: activator}
}

// ServeHTTP routes /api/kits, /api/kits/{id}, /api/kits/{id}/activate and
// /api/kits/{id}/yaml.
func (h *KitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/kits")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch sub {
	case "":
	case "activate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
		return
	case "yaml":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r, id)
		return
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type kitRequest struct {
	Name     string        `json:"name"`
	Bindings []kit.Binding `json:"bindings"`
}

type kitResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Bindings  []kit.Binding `json:"bindings"`
	Active    bool          `json:"active"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

type listKitsResponse struct {
	Kits   []kitResponse `json:"kits"`
	Active string        `json:"active,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *KitHandler) activeID() string {
	if h.activator == nil {
		return ""
	}
	return h.activator.ActiveKit()
}

func (h *KitHandler) toResponse(k *store.Kit) kitResponse {
	bindings := k.Bindings
	if bindings == nil {
		bindings = []kit.Binding{}
	}
	return kitResponse{
		ID:        k.ID,
		Name:      k.Name,
		Bindings:  bindings,
		Active:    k.ID == h.activeID(),
		CreatedAt: k.CreatedAt.Format(time.RFC3339),
		UpdatedAt: k.UpdatedAt.Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeStoreError maps repository errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Kit not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Kit name already exists")
	case errors.Is(err, kit.ErrInvalidBinding):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Failed to "+action+" kit")
	}
}

func decodeKit(r *http.Request) (kitRequest, error) {
	var req kitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// list handles GET /api/kits.
func (h *KitHandler) list(w http.ResponseWriter, r *http.Request) {
	kits, err := h.store.Kits().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list kits")
		return
	}

	response := listKitsResponse{
		Kits:   make([]kitResponse, 0, len(kits)),
		Active: h.activeID(),
	}
	for _, k := range kits {
		response.Kits = append(response.Kits, h.toResponse(k))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/kits/{id}.
func (h *KitHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	k, err := h.store.Kits().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(k))
}

// create handles POST /api/kits.
func (h *KitHandler) create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	k := &store.Kit{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Bindings: req.Bindings,
	}
	if err := h.store.Kits().Create(k); err != nil {
		writeStoreError(w, err, "create")
		return
	}

	// Return the stored, ordered form.
	if stored, err := h.store.Kits().GetByID(k.ID); err == nil {
		k = stored
	}
	writeJSON(w, http.StatusCreated, h.toResponse(k))
}

// update handles PUT /api/kits/{id}. Omitted fields keep their value.
func (h *KitHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	k, err := h.store.Kits().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}

	req, err := decodeKit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.Name != "" {
		k.Name = req.Name
	}
	if req.Bindings != nil {
		k.Bindings = req.Bindings
	}

	if err := h.store.Kits().Update(k); err != nil {
		writeStoreError(w, err, "update")
		return
	}

	// The running engine keeps the old map until the kit is activated again.
	if h.activator != nil && h.activeID() == id {
		if _, err := h.activator.ActivateKit(id); err != nil {
			writeStoreError(w, err, "activate")
			return
		}
	}

	if stored, err := h.store.Kits().GetByID(id); err == nil {
		k = stored
	}
	writeJSON(w, http.StatusOK, h.toResponse(k))
}

// delete handles DELETE /api/kits/{id}.
func (h *KitHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Kits().Delete(id); err != nil {
		writeStoreError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/kits/{id}/activate.
func (h *KitHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	if h.activator == nil {
		writeError(w, http.StatusServiceUnavailable, "Kit activation unavailable")
		return
	}

	k, err := h.activator.ActivateKit(id)
	if err != nil {
		writeStoreError(w, err, "activate")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(k))
}

// export handles GET /api/kits/{id}/yaml and returns the kit in the
// kit_file format.
func (h *KitHandler) export(w http.ResponseWriter, r *http.Request, id string) {
	k, err := h.store.Kits().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}
	m, err := k.Map()
	if err != nil {
		writeStoreError(w, err, "export")
		return
	}
	data, err := kit.Marshal(m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export kit")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

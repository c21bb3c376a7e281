package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/civitasgis/ageo-edge/internal/geo"
	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/civitasgis/ageo-edge/internal/validation"
)

// Syncer drains the durable queue on demand.
type Syncer interface {
	Pass(ctx context.Context) (*types.SyncStats, error)
}

// CacheControl is the subset of the cache used by the control endpoints.
type CacheControl interface {
	Generation() string
	Activate() (int, error)
	Status() (*types.CacheStatus, error)
}

// Geocoder resolves addresses and coordinates through the portal.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.Result, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Connectivity reports the monitor's current belief about the upstream and
// accepts explicit signals from the control API.
type Connectivity interface {
	Online() bool
	SetOnline(online bool)
}

// Handler implements the control-plane API handlers.
type Handler struct {
	store    store.QueueStore
	syncer   Syncer
	cache    CacheControl
	geocoder Geocoder
	monitor  Connectivity
	events   http.Handler
	notifier notify.Notifier
	apiKey   string
	version  string
	instance string

	queueEnabled bool
}

// NewHandler creates a Handler. store may be nil when the queue failed to
// open; queue endpoints then answer with a storage problem.
func NewHandler(qs store.QueueStore, syncer Syncer, cc CacheControl, gc Geocoder, monitor Connectivity, events http.Handler, notifier notify.Notifier, apiKey, version, instance string) *Handler {
	return &Handler{
		store:        qs,
		syncer:       syncer,
		cache:        cc,
		geocoder:     gc,
		monitor:      monitor,
		events:       events,
		notifier:     notifier,
		apiKey:       apiKey,
		version:      version,
		instance:     instance,
		queueEnabled: qs != nil,
	}
}

// Health returns the health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Instance: h.instance,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := types.StatusResponse{
		Online:       h.monitor.Online(),
		QueueEnabled: h.queueEnabled,
		Version:      h.version,
		Instance:     h.instance,
	}
	if h.queueEnabled {
		pending, err := h.store.CountPending(r.Context())
		if err != nil {
			MapStoreError(w, r, err)
			return
		}
		resp.Pending = pending
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// QueueList handles GET /api/v1/queue.
func (h *Handler) QueueList(w http.ResponseWriter, r *http.Request) {
	if !h.queueEnabled {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Offline queue unavailable")
		return
	}

	records, err := h.store.List(r.Context(), store.ListFilter{})
	if err != nil {
		slog.Error("queue list failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := struct {
		Records []types.QueueRecord `json:"records"`
		Stats   *types.QueueStats   `json:"stats"`
	}{Records: records, Stats: stats}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SyncNow handles POST /api/v1/sync, forcing a sync pass regardless of the
// periodic schedule. A pass already in flight reports Skipped.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if !h.queueEnabled {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Offline queue unavailable")
		return
	}

	stats, err := h.syncer.Pass(r.Context())
	if err != nil {
		slog.Error("manual sync failed", "error", err)
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// controlRequest is the lifecycle message protocol. SKIP_WAITING activates
// the configured cache generation, GET_CACHE_STATUS reports contents, and
// CONNECTIVITY feeds an explicit online/offline signal to the monitor.
type controlRequest struct {
	Type   string `json:"type"`
	Online *bool  `json:"online,omitempty"`
}

// Control handles POST /api/v1/control.
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	switch req.Type {
	case "SKIP_WAITING":
		deleted, err := h.cache.Activate()
		if err != nil {
			slog.Error("cache activation failed", "error", err)
			WriteProblem(w, r, http.StatusInternalServerError, "Cache activation failed")
			return
		}
		slog.Info("cache generation activated", "deleted", deleted)
		h.notifier.Publish(notify.CacheUpdated(h.cache.Generation()))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"deleted": deleted})

	case "GET_CACHE_STATUS":
		status, err := h.cache.Status()
		if err != nil {
			slog.Error("cache status failed", "error", err)
			WriteProblem(w, r, http.StatusInternalServerError, "Cache status failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)

	case "CONNECTIVITY":
		if req.Online == nil {
			WriteProblem(w, r, http.StatusBadRequest, "CONNECTIVITY requires an online field")
			return
		}
		h.monitor.SetOnline(*req.Online)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"online": *req.Online})

	default:
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown control type %q", req.Type))
	}
}

// CacheStatus handles GET /api/v1/cache.
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.cache.Status()
	if err != nil {
		slog.Error("cache status failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Cache status failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Events upgrades to the notification websocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.events.ServeHTTP(w, r)
}

// Geocode handles POST /api/v1/geocode.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("address", req.Address))
	c.Add(validation.ValidateUTF8("address", req.Address))
	c.Add(validation.ValidateMaxLength("address", req.Address, 512))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	result, err := h.geocoder.Geocode(r.Context(), req.Address)
	if err != nil {
		slog.Warn("geocode failed", "error", err)
		WriteProblem(w, r, http.StatusBadGateway, "Geocoding unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
}

// ReverseGeocode handles POST /api/v1/reverse-geocode.
func (h *Handler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateLatitude("lat", req.Lat))
	c.Add(validation.ValidateLongitude("lng", req.Lng))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	address, err := h.geocoder.ReverseGeocode(r.Context(), req.Lat, req.Lng)
	if err != nil {
		slog.Warn("reverse geocode failed", "error", err)
		WriteProblem(w, r, http.StatusBadGateway, "Geocoding unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "address": address})
}

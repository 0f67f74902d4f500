package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/delivery/http/request"
	"github.com/user/brandwatch/internal/delivery/http/response"
	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/usecase"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	ctrl   usecase.Controller
	logger *zap.Logger
}

func NewHandler(ctrl usecase.Controller, logger *zap.Logger) *Handler {
	return &Handler{
		ctrl:   ctrl,
		logger: logger,
	}
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req request.RunRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, &req); err != nil {
			h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	manual := usecase.ManualRun{
		Keywords: cleanList(req.Keywords),
		Brands:   cleanList(req.Brands),
	}
	for _, p := range cleanList(req.Platforms) {
		manual.Platforms = append(manual.Platforms, entity.PlatformID(p))
	}

	run, err := h.ctrl.StartRun(r.Context(), manual)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrRunInProgress):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, usecase.ErrInvalidRun):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("Failed to start run", zap.Error(err))
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if req.Wait {
		select {
		case res := <-run.Done:
			h.writeJSON(w, http.StatusOK, response.FromResult(res))
			return
		case <-r.Context().Done():
			// The run continues without the client.
			return
		}
	}

	h.writeJSON(w, http.StatusAccepted, response.RunAcceptedResponse{
		Status:  "accepted",
		Message: "Search run started",
		RunID:   run.ID,
	})
}

func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Stop() {
		h.writeJSONError(w, "No search run in progress", http.StatusConflict)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.FromStatus(h.ctrl.Status()))
}

func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Pause()
	h.writeJSON(w, http.StatusOK, response.FromStatus(h.ctrl.Status()))
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Resume()
	h.writeJSON(w, http.StatusOK, response.FromStatus(h.ctrl.Status()))
}

func (h *Handler) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	var req request.ModeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntervalMinutes < 0 || req.TurboIntervalMinutes < 0 {
		h.writeJSONError(w, "Intervals must not be negative", http.StatusBadRequest)
		return
	}

	if req.Mode != "" {
		if err := h.ctrl.SetMode(req.Mode); err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.IntervalMinutes > 0 || req.TurboIntervalMinutes > 0 {
		err := h.ctrl.SetIntervals(
			time.Duration(req.IntervalMinutes)*time.Minute,
			time.Duration(req.TurboIntervalMinutes)*time.Minute,
		)
		if err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Turbo != nil {
		h.ctrl.SetTurbo(*req.Turbo)
	}
	h.writeJSON(w, http.StatusOK, response.FromStatus(h.ctrl.Status()))
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response.FromStatus(h.ctrl.Status()))
}

func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ctrl.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to load stats", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []entity.BrandStat{}
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleListProxies(w http.ResponseWriter, r *http.Request) {
	entries := h.ctrl.Proxies()
	if entries == nil {
		entries = []entity.ProxyEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleAddProxies(w http.ResponseWriter, r *http.Request) {
	var req request.AddProxiesRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	addrs := cleanList(req.Addresses)
	if len(addrs) == 0 {
		h.writeJSONError(w, "addresses cannot be empty", http.StatusBadRequest)
		return
	}

	entries, err := h.ctrl.AddProxies(addrs...)
	if err != nil {
		h.logger.Error("Failed to add proxies", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": h.ctrl.Status().Running,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

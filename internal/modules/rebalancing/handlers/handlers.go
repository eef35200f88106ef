// Package handlers provides HTTP handlers for blending and rebalancing.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/blending"
	"github.com/aristath/capitol/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CycleRunner is the subset of rebalancing.Service the handlers use
type CycleRunner interface {
	Blend(ctx context.Context) (*blending.Result, error)
	RunCycle(ctx context.Context, dryRun bool) (*rebalancing.CycleResult, error)
	Runs(ctx context.Context, limit int) ([]rebalancing.RunRecord, error)
}

// FlagStore lists and lifts untradeable flags
type FlagStore interface {
	Active(ctx context.Context) ([]rebalancing.Flag, error)
	Clear(ctx context.Context, symbol string) error
}

// Handler handles blending and rebalancing HTTP requests
type Handler struct {
	service CycleRunner
	flags   FlagStore
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(service CycleRunner, flags FlagStore, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		flags:   flags,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleBlend handles POST /api/portfolio/blend
func (h *Handler) HandleBlend(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Blend(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to blend portfolio")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"note":      "Dry-run blend - no orders planned or executed",
		},
	})
}

// HandlePlan handles POST /api/rebalancing/plan
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	h.runCycle(w, r, true)
}

// HandleRun handles POST /api/rebalancing/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	h.runCycle(w, r, false)
}

func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request, dryRun bool) {
	result, err := h.service.RunCycle(r.Context(), dryRun)
	if err != nil {
		h.writeServiceError(w, err, "Failed to run rebalance cycle")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"dry_run":   dryRun,
			"mode":      result.Mode,
		},
	})
}

// HandleGetRuns handles GET /api/rebalancing/runs
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.service.Runs(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []rebalancing.RunRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetUntradeable handles GET /api/rebalancing/untradeable
func (h *Handler) HandleGetUntradeable(w http.ResponseWriter, r *http.Request) {
	flags, err := h.flags.Active(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to list untradeable symbols")
		return
	}
	if flags == nil {
		flags = []rebalancing.Flag{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbols": flags,
			"count":   len(flags),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleClearUntradeable handles DELETE /api/rebalancing/untradeable/{symbol}
func (h *Handler) HandleClearUntradeable(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := domain.ValidateSymbol(symbol); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SYMBOL", err.Error())
		return
	}

	if err := h.flags.Clear(r.Context(), symbol); err != nil {
		h.writeServiceError(w, err, "Failed to clear untradeable flag")
		return
	}

	h.log.Info().Str("symbol", symbol).Msg("Untradeable flag cleared")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":  symbol,
			"cleared": true,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeServiceError maps domain errors to HTTP statuses
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, rebalancing.ErrCycleInProgress):
		status, code = http.StatusConflict, "CYCLE_IN_PROGRESS"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrEmptyWeights),
		errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrInvalidCapFraction),
		errors.Is(err, domain.ErrInvalidMergeStrategy):
		status, code = http.StatusUnprocessableEntity, "INVALID_PORTFOLIO_CONFIG"
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	} else {
		h.log.Warn().Err(err).Msg(msg)
	}
	h.writeError(w, status, code, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    code,
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

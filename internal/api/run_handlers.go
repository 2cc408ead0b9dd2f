package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	uuidgen "github.com/JakeFAU/yacrawler/internal/id/uuid"
	"github.com/JakeFAU/yacrawler/internal/logging"
	"github.com/JakeFAU/yacrawler/internal/status"
)

const statusTimeout = 3 * time.Second

// RunHandler exposes recorded run status.
type RunHandler struct {
	store   status.Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the status store and logger.
func NewRunHandler(store status.Store, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		store:   store,
		timeout: statusTimeout,
		logger:  logging.OrNop(logger),
	}
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed ids, 404 when the store has no record, 503 without a
// store, or 500 otherwise.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if !uuidgen.Valid(runID) {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.store.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

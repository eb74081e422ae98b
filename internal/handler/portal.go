// ==============================================================================
// PORTAL HANDLER - internal/handler/portal.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cfdclient/internal/backend"
	"cfdclient/internal/session"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// PortalHandler passes sale and dividend reads through to the backend,
// scoped to the connected wallet.
type PortalHandler struct {
	backend    *backend.Client
	controller *session.Controller
	logger     logger.Logger
	startedAt  time.Time
}

// NewPortalHandler creates a PortalHandler.
func NewPortalHandler(be *backend.Client, controller *session.Controller, log logger.Logger) *PortalHandler {
	return &PortalHandler{
		backend:    be,
		controller: controller,
		logger:     log,
		startedAt:  time.Now(),
	}
}

// Health reports daemon liveness.
func (h *PortalHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"session":        h.controller.Session().Status,
	})
}

// ICOStatus returns the running sale's phase and limits.
func (h *PortalHandler) ICOStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.backend.ICOStatus(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// PurchaseHistory returns the backend's purchase record for the connected
// wallet.
func (h *PortalHandler) PurchaseHistory(w http.ResponseWriter, r *http.Request) {
	sess := h.controller.Session()
	if !sess.Connected() {
		respondFailure(w, errors.Validationf("no connected wallet"))
		return
	}

	page, limit := pagination(r, 1, 10)
	records, err := h.backend.PurchaseHistory(r.Context(), sess.Address, page, limit)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"purchases": records,
		"count":     len(records),
	})
}

// DividendInfo returns the connected wallet's claimable dividend summary.
func (h *PortalHandler) DividendInfo(w http.ResponseWriter, r *http.Request) {
	sess := h.controller.Session()
	if !sess.Connected() {
		respondFailure(w, errors.Validationf("no connected wallet"))
		return
	}

	info, err := h.backend.DividendInfo(r.Context(), sess.Address)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ProjectionRequest is the request body for a dividend projection.
type ProjectionRequest struct {
	MonthlyProfit *decimal.Decimal `json:"monthly_profit"`
}

// DividendProjection estimates the wallet's monthly dividend.
func (h *PortalHandler) DividendProjection(w http.ResponseWriter, r *http.Request) {
	sess := h.controller.Session()
	if !sess.Connected() {
		respondFailure(w, errors.Validationf("no connected wallet"))
		return
	}

	var req ProjectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	projected, err := h.backend.DividendProjection(r.Context(), sess.Address, req.MonthlyProfit)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_address":     sess.Address,
		"projected_dividend": projected,
	})
}

func pagination(r *http.Request, defaultPage, defaultLimit int) (int, int) {
	page, limit := defaultPage, defaultLimit
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return page, limit
}

// ==============================================================================
// SESSION HANDLER - internal/handler/session.go
// ==============================================================================
package handler

import (
	"net/http"

	"cfdclient/internal/session"
	"cfdclient/pkg/logger"
)

// SessionHandler exposes the wallet session lifecycle over HTTP.
type SessionHandler struct {
	controller *session.Controller
	logger     logger.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(controller *session.Controller, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		logger:     log,
	}
}

// Get returns the current session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Session())
}

// Connect attaches the wallet and moves it to the target network.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	sess, err := h.controller.Connect(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Authenticate runs the signature login for the connected account.
func (h *SessionHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.controller.Authenticate(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Disconnect tears the session down. Always succeeds.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Disconnect(r.Context()); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.controller.Session())
}

// Balances returns the latest snapshot without touching the chain.
func (h *SessionHandler) Balances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Balances())
}

// RefreshBalances re-reads all balances and returns the new snapshot.
func (h *SessionHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.controller.RefreshBalances(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

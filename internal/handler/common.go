// Package handler provides HTTP handlers for the wallet daemon API.
package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"cfdclient/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps the error taxonomy onto HTTP statuses.
func respondFailure(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrValidation), stderrors.Is(err, errors.ErrUserRejected):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNoProvider):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, errors.ErrNetworkSwitchFailed),
		stderrors.Is(err, errors.ErrReverted),
		stderrors.Is(err, errors.ErrNetwork):
		return http.StatusBadGateway
	}

	var remote *errors.RemoteError
	if stderrors.As(err, &remote) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

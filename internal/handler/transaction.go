// ==============================================================================
// TRANSACTION HANDLER - internal/handler/transaction.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"cfdclient/internal/transaction"
	"cfdclient/pkg/logger"
	"cfdclient/pkg/validator"
)

// TransactionHandler exposes purchases and dividend claims.
type TransactionHandler struct {
	service   *transaction.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(service *transaction.Service, v *validator.Validator, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: v,
		logger:    log,
	}
}

// PurchaseRequest is the request body for a token purchase.
type PurchaseRequest struct {
	AmountMatic   decimal.Decimal `json:"amount_matic" validate:"required,positive_decimal"`
	AffiliateCode string          `json:"affiliate_code" validate:"omitempty,eth_address"`
}

// Purchase submits a token purchase and waits for the outcome.
func (h *TransactionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.service.Purchase(r.Context(), transaction.PurchaseRequest{
		AmountMatic:   req.AmountMatic,
		AffiliateCode: req.AffiliateCode,
	})
	if err != nil {
		if record != nil {
			respondJSON(w, statusForError(err), record)
			return
		}
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// ClaimRequest is the request body for a dividend claim.
type ClaimRequest struct {
	DistributionIDs []string `json:"distribution_ids" validate:"required,min=1"`
}

// Claim asks the backend to pay out the selected distributions.
func (h *TransactionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.service.ClaimDividends(r.Context(), req.DistributionIDs)
	if err != nil {
		if record != nil {
			respondJSON(w, statusForError(err), record)
			return
		}
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// History lists the connected wallet's archived transactions.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.service.History(r.Context(), limit)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/middleware"
	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/tokens"
)

// MeterForHandler is the token service surface the handler needs.
type MeterForHandler interface {
	Summary(ctx context.Context, tenantID uuid.UUID) (*tokens.UsageSummary, error)
	Grant(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, amount int64, reason string) (uuid.UUID, error)
}

// LedgerReader lists ledger entries and reads the prepaid balance.
type LedgerReader interface {
	ListLedger(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.TokenLedgerEntry, error)
	GetBalance(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// TokenHandler serves /v1/usage, /v1/token-ledger and /v1/tokens/grant.
type TokenHandler struct {
	Meter  MeterForHandler
	Ledger LedgerReader
	Logger *slog.Logger
}

type usageResponse struct {
	*tokens.UsageSummary
	PrepaidBalance int64 `json:"prepaid_balance"`
}

// Usage handles GET /v1/usage: the current month's consumption against the
// allowance, plus the prepaid balance.
func (h *TokenHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.Meter.Summary(r.Context(), ident.TenantID)
	if err != nil {
		h.Logger.Error("usage summary", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	balance, err := h.Ledger.GetBalance(r.Context(), ident.TenantID)
	if err != nil {
		h.Logger.Error("get balance", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{UsageSummary: summary, PrepaidBalance: balance})
}

// LedgerList handles GET /v1/token-ledger?limit=.
func (h *TokenHandler) LedgerList(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeErr(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := h.Ledger.ListLedger(r.Context(), ident.TenantID, limit)
	if err != nil {
		h.Logger.Error("list ledger", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type grantRequest struct {
	Amount int64 `json:"amount"`
}

// Grant handles POST /v1/tokens/grant. Admin only.
func (h *TokenHandler) Grant(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !ident.IsAdmin() {
		writeErr(w, http.StatusForbidden, "admin role required")
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Amount <= 0 {
		writeErr(w, http.StatusBadRequest, "amount must be > 0")
		return
	}

	ledgerID, err := h.Meter.Grant(r.Context(), ident.TenantID, &ident.UserID, req.Amount, models.TokenReasonManualGrant)
	if err != nil {
		h.Logger.Error("grant tokens", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to grant tokens")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ledger_id": ledgerID.String()})
}

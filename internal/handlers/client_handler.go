package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/middleware"
	"github.com/saleslog/backend/internal/models"
)

// MatcherForHandler is the fuzzy-match side of the resolver.
type MatcherForHandler interface {
	FindBestMatch(ctx context.Context, tenantID uuid.UUID, name string) (*clients.Match, error)
	FindOrCreate(ctx context.Context, tenantID uuid.UUID, name string) (*models.Client, error)
}

// ClientHandler serves /v1/clients endpoints.
type ClientHandler struct {
	Resolver MatcherForHandler
	Logger   *slog.Logger
}

// Match handles GET /v1/clients/match?name=. A miss is a 200 with a null
// match, not an error: no match is a normal answer.
func (h *ClientHandler) Match(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErr(w, http.StatusBadRequest, "name query parameter is required")
		return
	}

	match, err := h.Resolver.FindBestMatch(r.Context(), ident.TenantID, name)
	if err != nil {
		h.Logger.Error("match client", "name", name, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*clients.Match{"match": match})
}

type resolveClientRequest struct {
	Name string `json:"name"`
}

// Resolve handles POST /v1/clients/resolve: find the client by normalized
// name or create it.
func (h *ClientHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req resolveClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}

	client, err := h.Resolver.FindOrCreate(r.Context(), ident.TenantID, req.Name)
	if err != nil {
		h.Logger.Error("resolve client", "name", req.Name, "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to resolve client")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

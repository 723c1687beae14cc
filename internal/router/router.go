package router

import (
	"net/http"

	"github.com/saleslog/backend/internal/auth"
)

// New returns an http.Handler serving the account API under /api/v1.
// The note pipeline lives under /v1 and is registered separately with its
// API-key middleware chain.
func New(authHandler *auth.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", methodPOST(authHandler.Register))
	mux.HandleFunc(base+"/auth/login", methodPOST(authHandler.Login))
	return mux
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

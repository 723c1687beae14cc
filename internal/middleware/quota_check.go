package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/tokens"
)

// MonthlyMeter reports a tenant's usage for the current month.
type MonthlyMeter interface {
	Summary(ctx context.Context, tenantID uuid.UUID) (*tokens.UsageSummary, error)
}

// QuotaCheck rejects metered requests up front when the tenant's monthly
// usage has already reached its allowance. The pipeline re-checks before
// each provider call; this guard just avoids creating jobs that are
// guaranteed to be rejected.
func QuotaCheck(meter MonthlyMeter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := IdentityFromCtx(r.Context())
			if ident == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			summary, err := meter.Summary(r.Context(), ident.TenantID)
			if err != nil {
				http.Error(w, `{"error":"failed to check usage"}`, http.StatusInternalServerError)
				return
			}
			if summary.WarningLevel == tokens.WarningLevelExceeded {
				http.Error(w, fmt.Sprintf(`{"error":"monthly token allowance exhausted","used":%d,"limit":%d}`,
					summary.Used, summary.Limit), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

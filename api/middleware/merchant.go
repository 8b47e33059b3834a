package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bargaining-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
)

// MerchantHeader is set by the authenticating gateway in front of the service.
const MerchantHeader = "X-Merchant-Id"

// MerchantContext resolves the acting merchant from MerchantHeader.
func MerchantContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(MerchantHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing"))
				return
			}
			merchantID, err := uuid.Parse(raw)
			if err != nil || merchantID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid merchant id"))
				return
			}

			ctx := WithMerchantID(r.Context(), merchantID)
			if logg != nil {
				ctx = logg.WithMerchantID(ctx, merchantID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

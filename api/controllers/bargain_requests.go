package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bargaining-backend/api/middleware"
	"github.com/angelmondragon/bargaining-backend/api/responses"
	"github.com/angelmondragon/bargaining-backend/api/validators"
	"github.com/angelmondragon/bargaining-backend/internal/bargainrequests"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
)

// CreateBargainRequest records a shopper's request to negotiate.
func CreateBargainRequest(svc bargainrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bargain request service unavailable"))
			return
		}
		var input bargainrequests.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func ListBargainRequests(svc bargainrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bargain request service unavailable"))
			return
		}
		merchantID, ok := middleware.MerchantIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing"))
			return
		}
		rows, err := svc.ListUnread(r.Context(), merchantID, strings.TrimSpace(r.URL.Query().Get("shop")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func MarkBargainRequestRead(svc bargainrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bargain request service unavailable"))
			return
		}
		merchantID, ok := middleware.MerchantIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing"))
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "requestId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request id"))
			return
		}
		updated, err := svc.MarkRead(r.Context(), merchantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bargaining-backend/api/middleware"
	"github.com/angelmondragon/bargaining-backend/api/responses"
	"github.com/angelmondragon/bargaining-backend/api/validators"
	"github.com/angelmondragon/bargaining-backend/internal/bargaining"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
)

const maxReasonLength = 500

type bulkMinPriceRequest struct {
	Updates []bargaining.MinPriceUpdate `json:"updates" validate:"required,min=1,dive"`
}

type deactivateRequest struct {
	Category string `json:"category"`
	Reason   string `json:"reason" validate:"required"`
}

// SetCategoryRules applies a percentage floor to one category.
func SetCategoryRules(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var input bargaining.CategoryRulesInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SetRulesForCategory(r.Context(), merchantID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SetAllProductsRules applies a percentage floor across the catalog.
func SetAllProductsRules(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var input bargaining.AllProductsRulesInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SetRulesForAllProducts(r.Context(), merchantID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func SetVariantRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var input bargaining.VariantRuleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.SetRuleForVariant(r.Context(), merchantID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

func SetDiscountRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var input bargaining.DiscountRuleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.SetRuleByDiscount(r.Context(), merchantID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

func BulkSetMinPrice(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var body bulkMinPriceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BulkSetMinPrice(r.Context(), merchantID, body.Updates)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DeactivateRules turns off every rule, or only one category's when the body names it.
func DeactivateRules(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		var body deactivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.SanitizeString(body.Reason, maxReasonLength)

		var (
			result *bargaining.DeactivationResult
			err    error
		)
		if category := strings.TrimSpace(body.Category); category != "" {
			result, err = svc.DeactivateByCategory(r.Context(), merchantID, category, reason)
		} else {
			result, err = svc.DeactivateAll(r.Context(), merchantID, reason)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ToggleRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		ctx := r.Context()
		variantID := chi.URLParam(r, "variantId")
		if logg != nil {
			ctx = logg.WithVariantID(ctx, variantID)
		}
		rule, err := svc.ToggleActive(ctx, merchantID, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// DeleteRule soft-deletes a rule; its floor is kept.
func DeleteRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		rule, err := svc.DeleteRule(r.Context(), merchantID, chi.URLParam(r, "variantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

func ListRules(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active_only", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := bargaining.RuleFilter{
			Category:   strings.TrimSpace(r.URL.Query().Get("category")),
			ActiveOnly: activeOnly,
		}
		rules, err := svc.GetRules(r.Context(), merchantID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rules)
	}
}

// GetVariantRule returns the rule or null when the variant has none.
func GetVariantRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		rule, err := svc.GetRuleForVariant(r.Context(), merchantID, chi.URLParam(r, "variantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// StorefrontVariantRule is the public lookup used by the storefront widget.
func StorefrontVariantRule(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bargaining service unavailable"))
			return
		}
		rule, err := svc.GetRuleForShopVariant(r.Context(), chi.URLParam(r, "shop"), chi.URLParam(r, "variantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rule == nil || !rule.IsActive {
			responses.WriteSuccess(w, map[string]any{"available": false})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"available":         true,
			"variant_id":        rule.VariantID,
			"bargain_behaviour": rule.BargainBehaviour,
		})
	}
}

func ListCategories(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		cats, err := svc.ListCategories(r.Context(), merchantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cats)
	}
}

// InvalidateCategories drops the cached collections, e.g. after a collection webhook.
func InvalidateCategories(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.InvalidateCategories(r.Context(), merchantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"invalidated": true})
	}
}

func CatalogOverview(svc bargaining.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := requireMerchant(w, r, svc, logg)
		if !ok {
			return
		}
		overview, err := svc.CatalogOverview(r.Context(), merchantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

func requireMerchant(w http.ResponseWriter, r *http.Request, svc bargaining.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bargaining service unavailable"))
		return uuid.Nil, false
	}
	merchantID, ok := middleware.MerchantIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing"))
		return uuid.Nil, false
	}
	return merchantID, true
}

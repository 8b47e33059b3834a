package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxMerchantID contextKey = "merchant_id"

// MerchantIDFromContext returns the merchant the request acts for.
func MerchantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxMerchantID).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithMerchantID injects the merchant identifier into the context for downstream handlers.
func WithMerchantID(ctx context.Context, merchantID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMerchantID, merchantID)
}

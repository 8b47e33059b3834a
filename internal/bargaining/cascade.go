package bargaining

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/google/uuid"
)

// Cascade deactivates rules in bulk while keeping their floors and history.
type Cascade struct {
	repo *Repository
	logg *logger.Logger
}

// NewCascade builds the deactivation cascade.
func NewCascade(repo *Repository, logg *logger.Logger) (*Cascade, error) {
	if repo == nil {
		return nil, fmt.Errorf("rule repository required")
	}
	return &Cascade{repo: repo, logg: logg}, nil
}

// DeactivateAll turns off every rule of the merchant. Zero affected rules is not an error.
func (c *Cascade) DeactivateAll(ctx context.Context, merchantID uuid.UUID, reason string) (int64, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return 0, err
	}
	affected, err := c.repo.Deactivate(ctx, merchantID, "", reason)
	if err != nil {
		return 0, err
	}
	c.logAffected(ctx, "", affected)
	return affected, nil
}

// DeactivateByCategory turns off the merchant's rules in category, matched exactly.
func (c *Cascade) DeactivateByCategory(ctx context.Context, merchantID uuid.UUID, category, reason string) (int64, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "category is required").
			WithDetails(map[string]string{"category": "is required"})
	}
	reason, err := requireReason(reason)
	if err != nil {
		return 0, err
	}
	affected, err := c.repo.Deactivate(ctx, merchantID, category, reason)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no bargaining rules found in category: %s", category))
	}
	c.logAffected(ctx, category, affected)
	return affected, nil
}

func (c *Cascade) logAffected(ctx context.Context, category string, affected int64) {
	if c.logg == nil {
		return
	}
	fields := map[string]any{"affected": affected}
	if category != "" {
		fields["category"] = category
	}
	c.logg.Info(c.logg.WithFields(ctx, fields), "bargaining rules deactivated")
}

func requireReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason is required").
			WithDetails(map[string]string{"reason": "is required"})
	}
	return trimmed, nil
}

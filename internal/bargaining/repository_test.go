package bargaining

import (
	"context"
	"testing"

	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/angelmondragon/bargaining-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryUpsertInsertsThenOverwritesPolicyColumns(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))
	ctx := context.Background()
	merchantID := uuid.New()

	created, err := repo.UpsertRule(ctx, &models.BargainingRule{
		MerchantID:       merchantID,
		VariantID:        "v1",
		Category:         "Shirts",
		MinPrice:         dec("18"),
		OriginalPrice:    decimal.NewNullDecimal(dec("20")),
		BargainBehaviour: enums.BargainBehaviourHigh,
		ProductTitle:     "Tee",
	}, PolicyBatchRules)
	require.NoError(t, err)
	assert.False(t, created.IsActive)
	assert.True(t, created.MinPrice.Equal(dec("18")))
	assert.Equal(t, "Shirts", created.Category)

	updated, err := repo.UpsertRule(ctx, &models.BargainingRule{
		MerchantID:       merchantID,
		VariantID:        "v1",
		Category:         "Other",
		MinPrice:         dec("15"),
		BargainBehaviour: enums.BargainBehaviourLow,
	}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.MinPrice.Equal(dec("15")))
	assert.Equal(t, "Shirts", updated.Category, "category is outside the policy")
	assert.Equal(t, enums.BargainBehaviourHigh, updated.BargainBehaviour)
	assert.Equal(t, "Tee", updated.ProductTitle)

	rules, err := repo.FindAll(ctx, merchantID, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRepositoryUpsertPreserveKeepsActivation(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))
	ctx := context.Background()
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", true)

	updated, err := repo.UpsertRule(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v1", MinPrice: dec("12")}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.True(t, updated.MinPrice.Equal(dec("12")))
}

func TestRepositoryUpsertZeroFloorForcesInactive(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))
	ctx := context.Background()
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", true)

	updated, err := repo.UpsertRule(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v1", MinPrice: decimal.Zero}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.MinPrice.IsZero())

	inserted, err := repo.UpsertRule(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v2", MinPrice: decimal.Zero, IsActive: true}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.False(t, inserted.IsActive)
}

func TestRepositoryUpsertRejectsNegativeFloor(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))

	_, err := repo.UpsertRule(context.Background(), &models.BargainingRule{MerchantID: uuid.New(), VariantID: "v1", MinPrice: dec("-1")}, PolicyMinPriceOnly)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPrice))
}

func TestRepositoryBulkUpsertReportsPartialFailures(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))
	merchantID := uuid.New()

	result := repo.BulkUpsert(context.Background(), []*models.BargainingRule{
		{MerchantID: merchantID, VariantID: "v1", MinPrice: dec("5")},
		{MerchantID: merchantID, VariantID: "v2", MinPrice: dec("-3")},
		{MerchantID: merchantID, VariantID: "v3", MinPrice: dec("7")},
	}, PolicyBatchRules)

	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Applied)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "v2", result.Failures[0].VariantID)
	assert.Error(t, result.Err())

	count, err := repo.CountActive(context.Background(), merchantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRepositoryFindAllFilters(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))
	ctx := context.Background()
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", true)
	seedRule(t, repo, merchantID, "v2", "Shirts", "10", false)
	seedRule(t, repo, merchantID, "v3", "Mugs", "10", true)
	seedRule(t, repo, uuid.New(), "v1", "Shirts", "10", true)

	all, err := repo.FindAll(ctx, merchantID, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	shirts, err := repo.FindAll(ctx, merchantID, RuleFilter{Category: "Shirts"})
	require.NoError(t, err)
	assert.Len(t, shirts, 2)

	active, err := repo.FindAll(ctx, merchantID, RuleFilter{Category: "Shirts", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "v1", active[0].VariantID)

	count, err := repo.CountActive(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRepositoryFindRuleMissing(t *testing.T) {
	repo := NewRepository(setupRulesTestDB(t))

	_, err := repo.FindRule(context.Background(), uuid.New(), "nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = repo.SetActive(context.Background(), uuid.New(), "nope", false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

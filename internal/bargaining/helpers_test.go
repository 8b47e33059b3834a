package bargaining

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/bargaining-backend/internal/catalog"
	"github.com/angelmondragon/bargaining-backend/internal/categories"
	"github.com/angelmondragon/bargaining-backend/pkg/db"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/angelmondragon/bargaining-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRulesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:rules_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	rules := `
CREATE TABLE IF NOT EXISTS bargaining_rules (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT 'Uncategorized',
  min_price NUMERIC NOT NULL CHECK (min_price >= 0),
  original_price NUMERIC,
  min_price_percentage NUMERIC,
  bargain_behaviour TEXT NOT NULL DEFAULT 'normal',
  is_active INTEGER NOT NULL DEFAULT 0,
  deactivation_reason TEXT,
  product_title TEXT,
  variant_title TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (NOT is_active OR min_price > 0)
);`
	index := `CREATE UNIQUE INDEX IF NOT EXISTS bargaining_rules_merchant_variant_key ON bargaining_rules (merchant_id, variant_id);`
	require.NoError(t, conn.Exec(rules).Error)
	require.NoError(t, conn.Exec(index).Error)
	return conn
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func seedRule(t *testing.T, repo *Repository, merchantID uuid.UUID, variantID, category, minPrice string, active bool) *models.BargainingRule {
	t.Helper()
	rule, err := repo.UpsertRule(context.Background(), &models.BargainingRule{
		MerchantID:       merchantID,
		VariantID:        variantID,
		Category:         category,
		MinPrice:         dec(minPrice),
		BargainBehaviour: enums.BargainBehaviourNormal,
		IsActive:         active,
	}, UpsertPolicy{Activity: ActivityPreserve})
	require.NoError(t, err)
	return rule
}

func newTestAdmission(t *testing.T, conn *gorm.DB, repo *Repository, admissionCap int) *Admission {
	t.Helper()
	admission, err := NewAdmission(db.FromGorm(conn), repo, AdmissionConfig{Cap: admissionCap})
	require.NoError(t, err)
	return admission
}

type fakeCatalog struct {
	mu       sync.Mutex
	snapshot *catalog.Snapshot
	err      error
	calls    int
}

func (f *fakeCatalog) Snapshot(ctx context.Context, merchantID uuid.UUID) (*catalog.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snapshot
	snap.MerchantID = merchantID
	return &snap, nil
}

type fakeCategories struct {
	list        []categories.Category
	invalidated []uuid.UUID
}

func (f *fakeCategories) List(ctx context.Context, merchantID uuid.UUID) ([]categories.Category, error) {
	return f.list, nil
}

func (f *fakeCategories) Invalidate(ctx context.Context, merchantID uuid.UUID) error {
	f.invalidated = append(f.invalidated, merchantID)
	return nil
}

type fakeMerchants struct {
	shops map[string]uuid.UUID
}

func (f fakeMerchants) FindMerchantByShop(ctx context.Context, shopName string) (uuid.UUID, error) {
	id, ok := f.shops[shopName]
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	return id, nil
}

func catalogVariant(id, category, price, product, title string) catalog.Variant {
	return catalog.Variant{
		VariantID:    id,
		ProductID:    "p-" + id,
		Price:        dec(price),
		Category:     category,
		ProductTitle: product,
		VariantTitle: title,
	}
}

func shirtsCatalog() *catalog.Snapshot {
	return &catalog.Snapshot{Variants: []catalog.Variant{
		catalogVariant("s1", "Shirts", "20", "Tee", "Small"),
		catalogVariant("s2", "Shirts", "30", "Tee", "Medium"),
		catalogVariant("s3", "Shirts", "40", "Tee", "Large"),
		catalogVariant("m1", "Mugs", "12", "Mug", "Default Title"),
		catalogVariant("v1", "Hats", "40", "Cap", "Red"),
	}}
}

type serviceFixture struct {
	conn       *gorm.DB
	repo       *Repository
	catalog    *fakeCatalog
	categories *fakeCategories
	svc        Service
}

func newServiceFixture(t *testing.T, admissionCap int) *serviceFixture {
	t.Helper()
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	cascade, err := NewCascade(repo, nil)
	require.NoError(t, err)
	fixture := &serviceFixture{
		conn:       conn,
		repo:       repo,
		catalog:    &fakeCatalog{snapshot: shirtsCatalog()},
		categories: &fakeCategories{list: []categories.Category{{ID: "1", Name: "Summer", Handle: "summer"}}},
	}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Admission:  newTestAdmission(t, conn, repo, admissionCap),
		Cascade:    cascade,
		Catalog:    fixture.catalog,
		Categories: fixture.categories,
		Merchants:  fakeMerchants{shops: map[string]uuid.UUID{}},
	})
	require.NoError(t, err)
	fixture.svc = svc
	return fixture
}

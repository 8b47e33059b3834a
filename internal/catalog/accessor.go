package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/bargaining-backend/internal/credentials"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/angelmondragon/bargaining-backend/pkg/metrics"
	"github.com/angelmondragon/bargaining-backend/pkg/shopify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const productsResource = "products"

// ProductLister reads one page of products for a shop.
type ProductLister interface {
	ListProducts(ctx context.Context, creds shopify.Credentials) (*shopify.ProductPage, error)
}

// Service exposes catalog reads to the rule engine.
type Service interface {
	Snapshot(ctx context.Context, merchantID uuid.UUID) (*Snapshot, error)
}

// Accessor resolves credentials and fetches a fresh catalog snapshot per call.
type Accessor struct {
	credentials credentials.Store
	products    ProductLister
	logg        *logger.Logger
	metrics     *metrics.BargainingMetrics
	now         func() time.Time
}

// NewAccessor wires the catalog accessor; logger and metrics are optional.
func NewAccessor(creds credentials.Store, products ProductLister, logg *logger.Logger, m *metrics.BargainingMetrics) (*Accessor, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lister required")
	}
	return &Accessor{
		credentials: creds,
		products:    products,
		logg:        logg,
		metrics:     m,
		now:         time.Now,
	}, nil
}

// Snapshot fetches the merchant's current catalog. Only the first page is
// read; a further page is reported through Snapshot.Truncated.
func (a *Accessor) Snapshot(ctx context.Context, merchantID uuid.UUID) (*Snapshot, error) {
	creds, err := a.credentials.Get(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	started := a.now()
	page, err := a.products.ListProducts(ctx, creds)
	a.metrics.ObserveCatalogFetch(productsResource, a.now().Sub(started), err)
	if err != nil {
		if a.logg != nil {
			a.logg.Error(ctx, "catalog fetch failed", err)
		}
		return nil, err
	}

	snapshot := &Snapshot{
		MerchantID: merchantID,
		Variants:   a.normalize(ctx, page.Products),
		Truncated:  page.HasNextPage,
		FetchedAt:  started.UTC(),
	}
	if snapshot.Truncated && a.logg != nil {
		a.logg.Warn(a.logg.WithField(ctx, "variants", len(snapshot.Variants)), "catalog has more pages than were read; rules apply to the first page only")
	}
	return snapshot, nil
}

func (a *Accessor) normalize(ctx context.Context, products []shopify.Product) []Variant {
	variants := make([]Variant, 0, len(products))
	for _, product := range products {
		category := strings.TrimSpace(product.ProductType)
		if category == "" {
			category = models.DefaultCategory
		}
		for _, v := range product.Variants {
			price, err := decimal.NewFromString(strings.TrimSpace(v.Price))
			if err != nil {
				if a.logg != nil {
					a.logg.Warn(a.logg.WithVariantID(ctx, strconv.FormatInt(v.ID, 10)), "skipping variant with unreadable price")
				}
				continue
			}
			variants = append(variants, Variant{
				VariantID:         strconv.FormatInt(v.ID, 10),
				ProductID:         strconv.FormatInt(product.ID, 10),
				Price:             price,
				Category:          category,
				ProductTitle:      product.Title,
				VariantTitle:      v.Title,
				InventoryQuantity: v.InventoryQuantity,
			})
		}
	}
	return variants
}

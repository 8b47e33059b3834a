package catalog

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant is one purchasable catalog item, normalized from the commerce API.
type Variant struct {
	VariantID         string          `json:"variant_id"`
	ProductID         string          `json:"product_id"`
	Price             decimal.Decimal `json:"price"`
	Category          string          `json:"category"`
	ProductTitle      string          `json:"product_title"`
	VariantTitle      string          `json:"variant_title"`
	InventoryQuantity int             `json:"inventory_quantity"`
}

// Snapshot is the merchant's catalog as read for a single request.
type Snapshot struct {
	MerchantID uuid.UUID
	Variants   []Variant
	// Truncated is set when more pages existed upstream and were not read.
	Truncated bool
	FetchedAt time.Time
}

// Find returns the variant with the given id.
func (s *Snapshot) Find(variantID string) (Variant, bool) {
	if s == nil {
		return Variant{}, false
	}
	for _, v := range s.Variants {
		if v.VariantID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

// Categories returns the distinct categories in the snapshot, sorted.
func (s *Snapshot) Categories() []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, v := range s.Variants {
		if _, ok := seen[v.Category]; ok {
			continue
		}
		seen[v.Category] = struct{}{}
		out = append(out, v.Category)
	}
	sort.Strings(out)
	return out
}

// GroupByCategory buckets variants by category, keeping catalog order inside each bucket.
func (s *Snapshot) GroupByCategory() map[string][]Variant {
	grouped := map[string][]Variant{}
	if s == nil {
		return grouped
	}
	for _, v := range s.Variants {
		grouped[v.Category] = append(grouped[v.Category], v)
	}
	return grouped
}

package resolver

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/bargaining-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// PriceRange is an inclusive price window.
type PriceRange struct {
	Start decimal.Decimal
	End   decimal.Decimal
}

// Contains reports whether price falls inside the window, bounds included.
func (r PriceRange) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(r.Start) && price.LessThanOrEqual(r.End)
}

// Filter narrows a multi-variant selection. IncludeAll disables both the
// range and the limit.
type Filter struct {
	IncludeAll bool
	Range      *PriceRange
	Limit      int
}

func (f Filter) validate() error {
	if f.Limit < 0 {
		return invalid("limit", "must not be negative")
	}
	if f.IncludeAll {
		return nil
	}
	if f.Range == nil {
		return invalid("range", "start_range and end_range are required unless include_all is set")
	}
	if f.Range.Start.IsNegative() || f.Range.End.IsNegative() {
		return invalid("range", "bounds must not be negative")
	}
	if f.Range.Start.GreaterThan(f.Range.End) {
		return invalid("range", "start_range must not exceed end_range")
	}
	return nil
}

func (f Filter) apply(variants []catalog.Variant) []catalog.Variant {
	if f.IncludeAll {
		return variants
	}
	out := make([]catalog.Variant, 0, len(variants))
	for _, v := range variants {
		if f.Range.Contains(v.Price) {
			out = append(out, v)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Selection is one of AllProducts, CategoryScoped or SingleVariant.
type Selection interface {
	Validate() error
	resolve(snapshot *catalog.Snapshot) ([]catalog.Variant, error)
}

// AllProducts targets the whole catalog.
type AllProducts struct {
	Filter Filter
}

func (s AllProducts) Validate() error {
	return s.Filter.validate()
}

func (s AllProducts) resolve(snapshot *catalog.Snapshot) ([]catalog.Variant, error) {
	targets := s.Filter.apply(snapshot.Variants)
	if len(targets) == 0 {
		return nil, notFound("no products found" + rangeSuffix(s.Filter))
	}
	return targets, nil
}

// CategoryScoped targets variants whose category equals Category exactly.
type CategoryScoped struct {
	Category string
	Filter   Filter
}

func (s CategoryScoped) Validate() error {
	if strings.TrimSpace(s.Category) == "" {
		return invalid("category", "is required")
	}
	return s.Filter.validate()
}

func (s CategoryScoped) resolve(snapshot *catalog.Snapshot) ([]catalog.Variant, error) {
	inCategory := make([]catalog.Variant, 0)
	for _, v := range snapshot.Variants {
		if v.Category == s.Category {
			inCategory = append(inCategory, v)
		}
	}
	targets := s.Filter.apply(inCategory)
	if len(targets) == 0 {
		return nil, notFound(fmt.Sprintf("no products found in category: %s", s.Category) + rangeSuffix(s.Filter))
	}
	return targets, nil
}

// SingleVariant targets one variant by id.
type SingleVariant struct {
	VariantID string
}

func (s SingleVariant) Validate() error {
	if strings.TrimSpace(s.VariantID) == "" {
		return invalid("variant_id", "is required")
	}
	return nil
}

func (s SingleVariant) resolve(snapshot *catalog.Snapshot) ([]catalog.Variant, error) {
	v, ok := snapshot.Find(strings.TrimSpace(s.VariantID))
	if !ok {
		return nil, notFound("product variant not found")
	}
	return []catalog.Variant{v}, nil
}

// Resolve returns the variants of snapshot targeted by sel, in catalog order.
func Resolve(snapshot *catalog.Snapshot, sel Selection) ([]catalog.Variant, error) {
	if sel == nil {
		return nil, invalid("selection", "is required")
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = &catalog.Snapshot{}
	}
	return sel.resolve(snapshot)
}

func rangeSuffix(f Filter) string {
	if f.IncludeAll {
		return ""
	}
	return " within the given price range"
}

func notFound(msg string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, msg)
}

func invalid(field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", field, reason)).
		WithDetails(map[string]string{field: reason})
}

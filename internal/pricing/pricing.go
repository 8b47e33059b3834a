package pricing

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentageFloor returns price - price*pct/100 without rounding.
func PercentageFloor(price, pct decimal.Decimal) (decimal.Decimal, error) {
	floor := price.Sub(price.Mul(pct).Div(hundred))
	if floor.IsNegative() {
		return decimal.Zero, invalidPrice(price, pct)
	}
	return floor, nil
}

// DiscountFloor returns price - price*discount/100 rounded to two places.
func DiscountFloor(price, discount decimal.Decimal) (decimal.Decimal, error) {
	floor := price.Sub(price.Mul(discount).Div(hundred)).Round(2)
	if floor.IsNegative() {
		return decimal.Zero, invalidPrice(price, discount)
	}
	return floor, nil
}

// RequirePercent checks a caller supplied percentage: it must be present and
// non-negative. field names the input in the returned error.
func RequirePercent(field string, pct *decimal.Decimal) (decimal.Decimal, error) {
	return requireNonNegative(field, pct)
}

// RequirePrice checks a caller supplied absolute price.
func RequirePrice(field string, price *decimal.Decimal) (decimal.Decimal, error) {
	return requireNonNegative(field, price)
}

func requireNonNegative(field string, value *decimal.Decimal) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, validation(field, "is required")
	}
	if value.IsNegative() {
		return decimal.Zero, validation(field, "must not be negative")
	}
	return *value, nil
}

func validation(field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", field, reason)).
		WithDetails(map[string]string{field: reason})
}

func invalidPrice(price, pct decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInvalidPrice, "calculated minimum price is negative").
		WithDetails(map[string]string{
			"price":      price.String(),
			"percentage": pct.String(),
		})
}

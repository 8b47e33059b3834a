package pricing

import (
	"testing"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPercentageFloor(t *testing.T) {
	cases := []struct {
		price, pct, want string
	}{
		{"100", "20", "80"},
		{"20.00", "10", "18"},
		{"19.99", "15", "16.9915"},
		{"0", "50", "0"},
		{"42", "0", "42"},
		{"42", "100", "0"},
	}
	for _, tc := range cases {
		got, err := PercentageFloor(d(tc.price), d(tc.pct))
		require.NoError(t, err)
		assert.True(t, got.Equal(d(tc.want)), "price %s pct %s: got %s want %s", tc.price, tc.pct, got, tc.want)
	}
}

func TestPercentageFloorMatchesFormula(t *testing.T) {
	prices := []string{"0.01", "1", "9.99", "123.45", "1000"}
	pcts := []string{"0", "0.5", "12.5", "33", "99.99", "100"}
	for _, p := range prices {
		for _, pct := range pcts {
			price := d(p)
			percent := d(pct)
			got, err := PercentageFloor(price, percent)
			require.NoError(t, err)
			want := price.Sub(price.Mul(percent).Div(decimal.NewFromInt(100)))
			assert.True(t, got.Equal(want))
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(price))
		}
	}
}

func TestPercentageFloorRejectsNegativeResult(t *testing.T) {
	_, err := PercentageFloor(d("10"), d("150"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPrice))
}

func TestDiscountFloorRoundsToCents(t *testing.T) {
	got, err := DiscountFloor(d("19.99"), d("15"))
	require.NoError(t, err)
	assert.Equal(t, "16.99", got.StringFixed(2))

	got, err = DiscountFloor(d("10"), d("33.333"))
	require.NoError(t, err)
	assert.Equal(t, "6.67", got.StringFixed(2))

	_, err = DiscountFloor(d("10"), d("101"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPrice))
}

func TestRequirePercent(t *testing.T) {
	pct := d("12.5")
	got, err := RequirePercent("min_price_percentage", &pct)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("12.5")))

	_, err = RequirePercent("min_price_percentage", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	negative := d("-1")
	_, err = RequirePercent("min_price_percentage", &negative)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"min_price_percentage": "must not be negative"}, typed.Details())
}

func TestRequirePrice(t *testing.T) {
	zero := decimal.Zero
	got, err := RequirePrice("min_price", &zero)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	negative := d("-0.01")
	_, err = RequirePrice("min_price", &negative)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

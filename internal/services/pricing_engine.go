package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
)

// ErrPricingInvalidInput signals an out-of-range amount or a non-positive quantity.
var ErrPricingInvalidInput = errors.New("pricing: invalid input")

const (
	// MoneyScale is the number of decimal places an amount may carry.
	MoneyScale = 2
	// MaxMoneyAmount bounds any single amount accepted for pricing.
	MaxMoneyAmount = 1_000_000

	// maxMoneyExponent is the largest exponent a value within MaxMoneyAmount can have.
	maxMoneyExponent = 6
	// minMoneyExponent admits trailing zeros such as "10.5000" while refusing absurd scales.
	minMoneyExponent = -18
)

var maxMoney = decimal.NewFromInt(MaxMoneyAmount)

// CheckMoney reports why value is not a usable money amount, or nil. Exponents are bounded before
// any comparison so no arithmetic has to rescale a huge coefficient.
func CheckMoney(value decimal.Decimal) error {
	if value.IsNegative() {
		return errors.New("must not be negative")
	}
	exp := value.Exponent()
	if exp > maxMoneyExponent {
		return fmt.Errorf("must be at most %d", MaxMoneyAmount)
	}
	if exp < minMoneyExponent {
		return fmt.Errorf("must have at most %d decimal places", MoneyScale)
	}
	if value.Cmp(maxMoney) > 0 {
		return fmt.Errorf("must be at most %d", MaxMoneyAmount)
	}
	if !value.Equal(value.Truncate(MoneyScale)) {
		return fmt.Errorf("must have at most %d decimal places", MoneyScale)
	}
	return nil
}

// PricedItem is the minimal line shape the pricing engine needs.
type PricedItem struct {
	Quantity  int
	UnitPrice decimal.Decimal
	Options   []domain.SelectedOption
}

// PriceOrder computes line totals, subtotal and total with exact decimal arithmetic.
// Catalog prices are never consulted; unit prices are the caller's snapshot.
func PriceOrder(items []PricedItem, deliveryFee decimal.Decimal) (domain.PricingBreakdown, error) {
	if err := CheckMoney(deliveryFee); err != nil {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: delivery fee %v", ErrPricingInvalidInput, err)
	}

	breakdown := domain.PricingBreakdown{
		Items:       make([]domain.ItemPricingBreakdown, 0, len(items)),
		Subtotal:    decimal.Zero,
		DeliveryFee: deliveryFee,
	}
	for i, item := range items {
		if item.Quantity < 1 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrPricingInvalidInput, i)
		}
		if err := CheckMoney(item.UnitPrice); err != nil {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: items[%d].unitPrice %v", ErrPricingInvalidInput, i, err)
		}
		options := decimal.Zero
		for j, opt := range item.Options {
			if err := CheckMoney(opt.Price); err != nil {
				return domain.PricingBreakdown{}, fmt.Errorf("%w: items[%d].options[%d].price %v", ErrPricingInvalidInput, i, j, err)
			}
			options = options.Add(opt.Price)
		}
		lineTotal := item.UnitPrice.Add(options).Mul(decimal.NewFromInt(int64(item.Quantity)))
		breakdown.Items = append(breakdown.Items, domain.ItemPricingBreakdown{
			Index:        i,
			UnitPrice:    item.UnitPrice,
			OptionsTotal: options,
			Quantity:     item.Quantity,
			Total:        lineTotal,
		})
		breakdown.Subtotal = breakdown.Subtotal.Add(lineTotal)
	}
	breakdown.Total = breakdown.Subtotal.Add(deliveryFee)
	return breakdown, nil
}

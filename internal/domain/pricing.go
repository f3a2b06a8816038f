package domain

import "github.com/shopspring/decimal"

// PricingBreakdown is the result of pricing a candidate order.
type PricingBreakdown struct {
	Items       []ItemPricingBreakdown
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// ItemPricingBreakdown stores the per-line pricing outputs in input order.
type ItemPricingBreakdown struct {
	Index        int
	UnitPrice    decimal.Decimal
	OptionsTotal decimal.Decimal
	Quantity     int
	Total        decimal.Decimal
}

package lineitem

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Derived holds the computed fields of a row with a known catalog item.
type Derived struct {
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	LineTotal          decimal.Decimal
	OverStock          bool
}

// Aggregate holds the order level totals.
type Aggregate struct {
	GrossTotal     decimal.Decimal `json:"gross_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RecomputeRow derives the unit price, discount and line total for itemID at
// qty. It reports false when the item is not in the catalog, in which case
// every derived field must be shown blank.
//
// Quantities above the available stock are flagged but priced normally.
func RecomputeRow(cat Catalog, itemID string, qty int) (Derived, bool) {
	entry, ok := cat.Lookup(itemID)
	if !ok {
		return Derived{}, false
	}
	if qty < 0 {
		qty = 0
	}
	multiplier := decimal.NewFromInt(1).Sub(entry.DiscountPercentage.Div(hundred))
	unit := Round2(entry.SellingPrice.Mul(multiplier))
	return Derived{
		UnitPrice:          unit,
		DiscountPercentage: Round2(entry.DiscountPercentage),
		LineTotal:          Round2(unit.Mul(decimal.NewFromInt(int64(qty)))),
		OverStock:          qty > entry.AvailableQuantity,
	}, true
}

// RecomputeAggregate sums gross, discount and final amounts over rows. Rows
// without a selection or whose item is missing from the catalog contribute
// nothing.
func RecomputeAggregate(cat Catalog, rows []Row) Aggregate {
	gross := decimal.Zero
	discount := decimal.Zero
	for _, row := range rows {
		entry, ok := cat.Lookup(row.ItemID)
		if !ok {
			continue
		}
		qty := row.Quantity
		if qty <= 0 {
			continue
		}
		rowGross := entry.SellingPrice.Mul(decimal.NewFromInt(int64(qty)))
		gross = gross.Add(rowGross)
		discount = discount.Add(rowGross.Mul(entry.DiscountPercentage).Div(hundred))
	}
	return Aggregate{
		GrossTotal:     Round2(gross),
		DiscountAmount: Round2(discount),
		FinalAmount:    Round2(gross.Sub(discount)),
	}
}

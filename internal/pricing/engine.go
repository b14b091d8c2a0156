package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/lineitem"
)

// Expiry discount tiers, in days until expiration.
const (
	tierNearDays = 60
	tierMidDays  = 120
	tierFarDays  = 180
)

// DiscountPercentage returns the whole-number discount a stock item earns as
// it approaches its expiration date. Expired stock gets the deepest tier.
func DiscountPercentage(expiration, today time.Time) int {
	days := daysBetween(today, expiration)
	switch {
	case days <= tierNearDays:
		return 35
	case days <= tierMidDays:
		return 25
	case days <= tierFarDays:
		return 15
	default:
		return 0
	}
}

func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// DiscountedPrice applies pct to selling and rounds to cents.
func DiscountedPrice(selling, pct decimal.Decimal) decimal.Decimal {
	return lineitem.Round2(selling.Mul(decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))))
}

// Item describes a sale line used for pricing calculation.
type Item struct {
	StockItemID        string
	Qty                int
	SellingPrice       decimal.Decimal
	DiscountPercentage decimal.Decimal
}

// Line is a priced sale line.
type Line struct {
	StockItemID        string
	Qty                int
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	LineTotal          decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Lines    []Line
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
}

// Compute prices items line by line the way the order form does. The stored
// sale must agree with its own lines, so Final is the sum of line totals and
// Discount is whatever separates it from Gross. Items with a non-positive
// quantity are skipped.
func Compute(items []Item) Summary {
	lines := make([]Line, 0, len(items))
	gross := decimal.Zero
	final := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		single := lineitem.NewCatalog(map[string]lineitem.Entry{it.StockItemID: {
			AvailableQuantity:  it.Qty,
			SellingPrice:       it.SellingPrice,
			DiscountPercentage: it.DiscountPercentage,
		}})
		derived, ok := lineitem.RecomputeRow(single, it.StockItemID, it.Qty)
		if !ok {
			continue
		}
		qty := decimal.NewFromInt(int64(it.Qty))
		gross = gross.Add(it.SellingPrice.Mul(qty))
		final = final.Add(derived.LineTotal)
		lines = append(lines, Line{
			StockItemID:        it.StockItemID,
			Qty:                it.Qty,
			UnitPrice:          derived.UnitPrice,
			DiscountPercentage: derived.DiscountPercentage,
			LineTotal:          derived.LineTotal,
		})
	}
	gross = lineitem.Round2(gross)
	final = lineitem.Round2(final)
	return Summary{
		Lines:    lines,
		Gross:    gross,
		Discount: gross.Sub(final),
		Final:    final,
	}
}

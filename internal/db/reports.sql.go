package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const countCustomersSince = `-- name: CountCustomersSince :one
SELECT COUNT(DISTINCT customer_email)
FROM sales
WHERE created_at >= $1
`

func (q *Queries) CountCustomersSince(ctx context.Context, since pgtype.Timestamptz) (int64, error) {
	row := q.db.QueryRow(ctx, countCustomersSince, since)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const monthlyRevenue = `-- name: MonthlyRevenue :many
SELECT date_trunc('month', created_at AT TIME ZONE $2::text)::timestamp AS month,
       COALESCE(SUM(final_amount), 0)::numeric AS total_revenue
FROM sales
WHERE created_at >= $1
GROUP BY 1
ORDER BY 1
`

type MonthlyRevenueParams struct {
	Since    pgtype.Timestamptz `json:"since"`
	TimeZone string             `json:"time_zone"`
}

type MonthlyRevenueRow struct {
	Month        pgtype.Timestamp `json:"month"`
	TotalRevenue decimal.Decimal  `json:"total_revenue"`
}

func (q *Queries) MonthlyRevenue(ctx context.Context, arg MonthlyRevenueParams) ([]MonthlyRevenueRow, error) {
	rows, err := q.db.Query(ctx, monthlyRevenue, arg.Since, arg.TimeZone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MonthlyRevenueRow{}
	for rows.Next() {
		var i MonthlyRevenueRow
		if err := rows.Scan(&i.Month, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const saleItemsRevenueSince = `-- name: SaleItemsRevenueSince :one
SELECT COALESCE(SUM(si.total_price), 0)::numeric
FROM sale_items si
JOIN sales sa ON sa.id = si.sale_id
WHERE sa.created_at >= $1
`

func (q *Queries) SaleItemsRevenueSince(ctx context.Context, since pgtype.Timestamptz) (decimal.Decimal, error) {
	row := q.db.QueryRow(ctx, saleItemsRevenueSince, since)
	var total decimal.Decimal
	err := row.Scan(&total)
	return total, err
}

const topProductsByRevenue = `-- name: TopProductsByRevenue :many
SELECT p.name, COALESCE(SUM(si.total_price), 0)::numeric AS total_revenue
FROM sale_items si
JOIN sales sa ON sa.id = si.sale_id
JOIN stock_items s ON s.id = si.stock_item_id
JOIN products p ON p.id = s.product_id
WHERE sa.created_at >= $1
GROUP BY p.name
ORDER BY total_revenue DESC, p.name
LIMIT $2
`

type TopProductsParams struct {
	Since      pgtype.Timestamptz `json:"since"`
	LimitValue int32              `json:"limit_value"`
}

type TopProductsByRevenueRow struct {
	Name         string          `json:"name"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

func (q *Queries) TopProductsByRevenue(ctx context.Context, arg TopProductsParams) ([]TopProductsByRevenueRow, error) {
	rows, err := q.db.Query(ctx, topProductsByRevenue, arg.Since, arg.LimitValue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TopProductsByRevenueRow{}
	for rows.Next() {
		var i TopProductsByRevenueRow
		if err := rows.Scan(&i.Name, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const topProductsByQuantity = `-- name: TopProductsByQuantity :many
SELECT p.name, COALESCE(SUM(si.quantity), 0)::bigint AS total_quantity
FROM sale_items si
JOIN sales sa ON sa.id = si.sale_id
JOIN stock_items s ON s.id = si.stock_item_id
JOIN products p ON p.id = s.product_id
WHERE sa.created_at >= $1
GROUP BY p.name
ORDER BY total_quantity DESC, p.name
LIMIT $2
`

type TopProductsByQuantityRow struct {
	Name          string `json:"name"`
	TotalQuantity int64  `json:"total_quantity"`
}

func (q *Queries) TopProductsByQuantity(ctx context.Context, arg TopProductsParams) ([]TopProductsByQuantityRow, error) {
	rows, err := q.db.Query(ctx, topProductsByQuantity, arg.Since, arg.LimitValue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TopProductsByQuantityRow{}
	for rows.Next() {
		var i TopProductsByQuantityRow
		if err := rows.Scan(&i.Name, &i.TotalQuantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const inventorySummary = `-- name: InventorySummary :one
SELECT COUNT(*)::bigint AS total_products,
       COALESCE(SUM(quantity), 0)::bigint AS total_quantity,
       COUNT(*) FILTER (WHERE quantity <= $1)::bigint AS low_stock_items,
       COUNT(*) FILTER (WHERE expiration_date >= $2 AND expiration_date <= $3)::bigint AS expiring_items
FROM stock_items
`

type InventorySummaryParams struct {
	Threshold int32       `json:"threshold"`
	FromDate  pgtype.Date `json:"from_date"`
	ToDate    pgtype.Date `json:"to_date"`
}

type InventorySummaryRow struct {
	TotalProducts int64 `json:"total_products"`
	TotalQuantity int64 `json:"total_quantity"`
	LowStockItems int64 `json:"low_stock_items"`
	ExpiringItems int64 `json:"expiring_items"`
}

func (q *Queries) InventorySummary(ctx context.Context, arg InventorySummaryParams) (InventorySummaryRow, error) {
	row := q.db.QueryRow(ctx, inventorySummary, arg.Threshold, arg.FromDate, arg.ToDate)
	var i InventorySummaryRow
	err := row.Scan(&i.TotalProducts, &i.TotalQuantity, &i.LowStockItems, &i.ExpiringItems)
	return i, err
}

const inventoryValue = `-- name: InventoryValue :one
SELECT COALESCE(SUM(cost_price * quantity), 0)::numeric AS total_cost_value,
       COALESCE(SUM(selling_price * quantity), 0)::numeric AS total_selling_value
FROM stock_items
`

type InventoryValueRow struct {
	TotalCostValue    decimal.Decimal `json:"total_cost_value"`
	TotalSellingValue decimal.Decimal `json:"total_selling_value"`
}

func (q *Queries) InventoryValue(ctx context.Context) (InventoryValueRow, error) {
	row := q.db.QueryRow(ctx, inventoryValue)
	var i InventoryValueRow
	err := row.Scan(&i.TotalCostValue, &i.TotalSellingValue)
	return i, err
}

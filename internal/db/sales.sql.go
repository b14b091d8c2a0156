package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const lockStockItem = `-- name: LockStockItem :one
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE s.id = $1
FOR UPDATE OF s
`

// LockStockItem reads a stock item and holds a row lock until the surrounding transaction ends.
func (q *Queries) LockStockItem(ctx context.Context, id int64) (StockItemRow, error) {
	return scanStockItemRow(q.db.QueryRow(ctx, lockStockItem, id))
}

const decrementStock = `-- name: DecrementStock :execrows
UPDATE stock_items
SET quantity = quantity - $2, updated_at = now()
WHERE id = $1 AND quantity >= $2
`

type DecrementStockParams struct {
	ID       int64 `json:"id"`
	Quantity int32 `json:"quantity"`
}

func (q *Queries) DecrementStock(ctx context.Context, arg DecrementStockParams) (int64, error) {
	result, err := q.db.Exec(ctx, decrementStock, arg.ID, arg.Quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const saleColumns = `id, customer_name, customer_email, customer_phone, total_amount, discount_amount, final_amount, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (Sale, error) {
	var i Sale
	err := row.Scan(
		&i.ID,
		&i.CustomerName,
		&i.CustomerEmail,
		&i.CustomerPhone,
		&i.TotalAmount,
		&i.DiscountAmount,
		&i.FinalAmount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertSale = `-- name: InsertSale :one
INSERT INTO sales (customer_name, customer_email, customer_phone, total_amount, discount_amount, final_amount)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric)
RETURNING ` + saleColumns + `
`

type InsertSaleParams struct {
	CustomerName   string          `json:"customer_name"`
	CustomerEmail  string          `json:"customer_email"`
	CustomerPhone  string          `json:"customer_phone"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

func (q *Queries) InsertSale(ctx context.Context, arg InsertSaleParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, insertSale,
		arg.CustomerName,
		arg.CustomerEmail,
		arg.CustomerPhone,
		arg.TotalAmount.String(),
		arg.DiscountAmount.String(),
		arg.FinalAmount.String(),
	))
}

const insertSaleItem = `-- name: InsertSaleItem :one
INSERT INTO sale_items (sale_id, stock_item_id, quantity, unit_price, discount_percentage, total_price)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric)
RETURNING id, sale_id, stock_item_id, quantity, unit_price, discount_percentage, total_price
`

type InsertSaleItemParams struct {
	SaleID             int64           `json:"sale_id"`
	StockItemID        int64           `json:"stock_item_id"`
	Quantity           int32           `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TotalPrice         decimal.Decimal `json:"total_price"`
}

func (q *Queries) InsertSaleItem(ctx context.Context, arg InsertSaleItemParams) (SaleItem, error) {
	row := q.db.QueryRow(ctx, insertSaleItem,
		arg.SaleID,
		arg.StockItemID,
		arg.Quantity,
		arg.UnitPrice.String(),
		arg.DiscountPercentage.String(),
		arg.TotalPrice.String(),
	)
	var i SaleItem
	err := row.Scan(
		&i.ID,
		&i.SaleID,
		&i.StockItemID,
		&i.Quantity,
		&i.UnitPrice,
		&i.DiscountPercentage,
		&i.TotalPrice,
	)
	return i, err
}

const getSale = `-- name: GetSale :one
SELECT ` + saleColumns + `
FROM sales
WHERE id = $1
`

func (q *Queries) GetSale(ctx context.Context, id int64) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, getSale, id))
}

const countSales = `-- name: CountSales :one
SELECT COUNT(*)
FROM sales
WHERE ($1::text IS NULL
       OR customer_name ILIKE '%' || $1 || '%'
       OR customer_email ILIKE '%' || $1 || '%'
       OR customer_phone ILIKE '%' || $1 || '%')
`

func (q *Queries) CountSales(ctx context.Context, search interface{}) (int64, error) {
	row := q.db.QueryRow(ctx, countSales, search)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listSales = `-- name: ListSales :many
SELECT ` + saleColumns + `
FROM sales
WHERE ($1::text IS NULL
       OR customer_name ILIKE '%' || $1 || '%'
       OR customer_email ILIKE '%' || $1 || '%'
       OR customer_phone ILIKE '%' || $1 || '%')
ORDER BY
  CASE WHEN $2::text = 'created_at' THEN created_at END ASC,
  CASE WHEN $2::text = 'final_amount' THEN final_amount END ASC,
  CASE WHEN $2::text = '-final_amount' THEN final_amount END DESC,
  created_at DESC,
  id DESC
LIMIT $4 OFFSET $3
`

type ListSalesParams struct {
	Search      interface{} `json:"search"`
	Ordering    string      `json:"ordering"`
	OffsetValue int32       `json:"offset_value"`
	LimitValue  int32       `json:"limit_value"`
}

func (q *Queries) ListSales(ctx context.Context, arg ListSalesParams) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listSales, arg.Search, arg.Ordering, arg.OffsetValue, arg.LimitValue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Sale{}
	for rows.Next() {
		i, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSaleItems = `-- name: ListSaleItems :many
SELECT si.id, si.sale_id, si.stock_item_id, p.name AS product_name, s.batch_number,
       si.quantity, si.unit_price, si.discount_percentage, si.total_price
FROM sale_items si
JOIN stock_items s ON s.id = si.stock_item_id
JOIN products p ON p.id = s.product_id
WHERE si.sale_id = $1
ORDER BY si.id
`

type ListSaleItemsRow struct {
	ID                 int64           `json:"id"`
	SaleID             int64           `json:"sale_id"`
	StockItemID        int64           `json:"stock_item_id"`
	ProductName        string          `json:"product_name"`
	BatchNumber        string          `json:"batch_number"`
	Quantity           int32           `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TotalPrice         decimal.Decimal `json:"total_price"`
}

func (q *Queries) ListSaleItems(ctx context.Context, saleID int64) ([]ListSaleItemsRow, error) {
	rows, err := q.db.Query(ctx, listSaleItems, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListSaleItemsRow{}
	for rows.Next() {
		var i ListSaleItemsRow
		if err := rows.Scan(
			&i.ID,
			&i.SaleID,
			&i.StockItemID,
			&i.ProductName,
			&i.BatchNumber,
			&i.Quantity,
			&i.UnitPrice,
			&i.DiscountPercentage,
			&i.TotalPrice,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const salesTotals = `-- name: SalesTotals :one
SELECT COUNT(*)::bigint AS total_sales,
       COALESCE(SUM(final_amount), 0)::numeric AS total_revenue
FROM sales
WHERE ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at < $2)
`

type SalesTotalsParams struct {
	FromTime pgtype.Timestamptz `json:"from_time"`
	ToTime   pgtype.Timestamptz `json:"to_time"`
}

type SalesTotalsRow struct {
	TotalSales   int64           `json:"total_sales"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// SalesTotals counts sales and sums their final amounts in [from, to). Invalid bounds are open.
func (q *Queries) SalesTotals(ctx context.Context, arg SalesTotalsParams) (SalesTotalsRow, error) {
	row := q.db.QueryRow(ctx, salesTotals, arg.FromTime, arg.ToTime)
	var i SalesTotalsRow
	err := row.Scan(&i.TotalSales, &i.TotalRevenue)
	return i, err
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const listBrands = `-- name: ListBrands :many
SELECT id, name, description, created_at, updated_at
FROM brands
ORDER BY name
`

func (q *Queries) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := q.db.Query(ctx, listBrands)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Brand{}
	for rows.Next() {
		var i Brand
		if err := rows.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createBrand = `-- name: CreateBrand :one
INSERT INTO brands (name, description)
VALUES ($1, $2)
RETURNING id, name, description, created_at, updated_at
`

type CreateBrandParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (q *Queries) CreateBrand(ctx context.Context, arg CreateBrandParams) (Brand, error) {
	row := q.db.QueryRow(ctx, createBrand, arg.Name, arg.Description)
	var i Brand
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, description, created_at, updated_at
FROM categories
ORDER BY name
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (name, description)
VALUES ($1, $2)
RETURNING id, name, description, created_at, updated_at
`

type CreateCategoryParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, createCategory, arg.Name, arg.Description)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const countProducts = `-- name: CountProducts :one
SELECT COUNT(*)
FROM products p
WHERE ($1::text IS NULL OR p.name ILIKE '%' || $1 || '%' OR p.sku ILIKE '%' || $1 || '%')
  AND ($2::bigint IS NULL OR p.brand_id = $2)
  AND ($3::bigint IS NULL OR p.category_id = $3)
`

type CountProductsParams struct {
	Q          interface{} `json:"q"`
	BrandID    interface{} `json:"brand_id"`
	CategoryID interface{} `json:"category_id"`
}

func (q *Queries) CountProducts(ctx context.Context, arg CountProductsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countProducts, arg.Q, arg.BrandID, arg.CategoryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listProducts = `-- name: ListProducts :many
SELECT p.id, p.name, p.description, p.sku, p.brand_id, b.name AS brand_name,
       p.category_id, c.name AS category_name, p.created_at
FROM products p
JOIN brands b ON b.id = p.brand_id
JOIN categories c ON c.id = p.category_id
WHERE ($1::text IS NULL OR p.name ILIKE '%' || $1 || '%' OR p.sku ILIKE '%' || $1 || '%')
  AND ($2::bigint IS NULL OR p.brand_id = $2)
  AND ($3::bigint IS NULL OR p.category_id = $3)
ORDER BY p.name, p.id
LIMIT $5 OFFSET $4
`

type ListProductsParams struct {
	Q           interface{} `json:"q"`
	BrandID     interface{} `json:"brand_id"`
	CategoryID  interface{} `json:"category_id"`
	OffsetValue int32       `json:"offset_value"`
	LimitValue  int32       `json:"limit_value"`
}

type ListProductsRow struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Sku          string             `json:"sku"`
	BrandID      int64              `json:"brand_id"`
	BrandName    string             `json:"brand_name"`
	CategoryID   int64              `json:"category_id"`
	CategoryName string             `json:"category_name"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]ListProductsRow, error) {
	rows, err := q.db.Query(ctx, listProducts, arg.Q, arg.BrandID, arg.CategoryID, arg.OffsetValue, arg.LimitValue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListProductsRow{}
	for rows.Next() {
		var i ListProductsRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Description,
			&i.Sku,
			&i.BrandID,
			&i.BrandName,
			&i.CategoryID,
			&i.CategoryName,
			&i.CreatedAt,
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

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, description, brand_id, category_id, sku)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, description, brand_id, category_id, sku, created_at, updated_at
`

type CreateProductParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BrandID     int64  `json:"brand_id"`
	CategoryID  int64  `json:"category_id"`
	Sku         string `json:"sku"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct, arg.Name, arg.Description, arg.BrandID, arg.CategoryID, arg.Sku)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.BrandID,
		&i.CategoryID,
		&i.Sku,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// StockItemRow is a stock item joined with its product.
type StockItemRow struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Sku            string          `json:"sku"`
	BatchNumber    string          `json:"batch_number"`
	Quantity       int32           `json:"quantity"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	ExpirationDate pgtype.Date     `json:"expiration_date"`
}

const stockItemColumns = `s.id, s.product_id, p.name, p.sku, s.batch_number, s.quantity,
       s.cost_price, s.selling_price, s.expiration_date`

func scanStockItemRow(row interface{ Scan(...any) error }) (StockItemRow, error) {
	var i StockItemRow
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.ProductName,
		&i.Sku,
		&i.BatchNumber,
		&i.Quantity,
		&i.CostPrice,
		&i.SellingPrice,
		&i.ExpirationDate,
	)
	return i, err
}

func collectStockItemRows(ctx context.Context, q *Queries, query string, args ...interface{}) ([]StockItemRow, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockItemRow{}
	for rows.Next() {
		i, err := scanStockItemRow(rows)
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

const countStockItems = `-- name: CountStockItems :one
SELECT COUNT(*)
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE ($1::text IS NULL OR p.name ILIKE '%' || $1 || '%' OR s.batch_number ILIKE '%' || $1 || '%')
  AND ($2::bigint IS NULL OR s.product_id = $2)
`

type CountStockItemsParams struct {
	Q         interface{} `json:"q"`
	ProductID interface{} `json:"product_id"`
}

func (q *Queries) CountStockItems(ctx context.Context, arg CountStockItemsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countStockItems, arg.Q, arg.ProductID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listStockItems = `-- name: ListStockItems :many
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE ($1::text IS NULL OR p.name ILIKE '%' || $1 || '%' OR s.batch_number ILIKE '%' || $1 || '%')
  AND ($2::bigint IS NULL OR s.product_id = $2)
ORDER BY
  CASE WHEN $3::text = 'expiration_date:desc' THEN s.expiration_date END DESC,
  CASE WHEN $3::text = 'quantity:asc' THEN s.quantity END ASC,
  CASE WHEN $3::text = 'quantity:desc' THEN s.quantity END DESC,
  s.expiration_date ASC,
  s.id ASC
LIMIT $5 OFFSET $4
`

type ListStockItemsParams struct {
	Q           interface{} `json:"q"`
	ProductID   interface{} `json:"product_id"`
	Sort        string      `json:"sort"`
	OffsetValue int32       `json:"offset_value"`
	LimitValue  int32       `json:"limit_value"`
}

func (q *Queries) ListStockItems(ctx context.Context, arg ListStockItemsParams) ([]StockItemRow, error) {
	return collectStockItemRows(ctx, q, listStockItems, arg.Q, arg.ProductID, arg.Sort, arg.OffsetValue, arg.LimitValue)
}

const getStockItem = `-- name: GetStockItem :one
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE s.id = $1
`

func (q *Queries) GetStockItem(ctx context.Context, id int64) (StockItemRow, error) {
	return scanStockItemRow(q.db.QueryRow(ctx, getStockItem, id))
}

const createStockItem = `-- name: CreateStockItem :one
INSERT INTO stock_items (product_id, batch_number, quantity, cost_price, selling_price, expiration_date)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
RETURNING id, product_id, batch_number, quantity, cost_price, selling_price, expiration_date, created_at, updated_at
`

type CreateStockItemParams struct {
	ProductID      int64           `json:"product_id"`
	BatchNumber    string          `json:"batch_number"`
	Quantity       int32           `json:"quantity"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	ExpirationDate pgtype.Date     `json:"expiration_date"`
}

func (q *Queries) CreateStockItem(ctx context.Context, arg CreateStockItemParams) (StockItem, error) {
	row := q.db.QueryRow(ctx, createStockItem,
		arg.ProductID,
		arg.BatchNumber,
		arg.Quantity,
		arg.CostPrice.String(),
		arg.SellingPrice.String(),
		arg.ExpirationDate,
	)
	var i StockItem
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.BatchNumber,
		&i.Quantity,
		&i.CostPrice,
		&i.SellingPrice,
		&i.ExpirationDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listAllStockItems = `-- name: ListAllStockItems :many
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
ORDER BY s.id
`

func (q *Queries) ListAllStockItems(ctx context.Context) ([]StockItemRow, error) {
	return collectStockItemRows(ctx, q, listAllStockItems)
}

const listExpiringStockItems = `-- name: ListExpiringStockItems :many
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE s.expiration_date >= $1 AND s.expiration_date <= $2
ORDER BY s.expiration_date, s.id
`

type ListExpiringStockItemsParams struct {
	FromDate pgtype.Date `json:"from_date"`
	ToDate   pgtype.Date `json:"to_date"`
}

func (q *Queries) ListExpiringStockItems(ctx context.Context, arg ListExpiringStockItemsParams) ([]StockItemRow, error) {
	return collectStockItemRows(ctx, q, listExpiringStockItems, arg.FromDate, arg.ToDate)
}

const listLowStockItems = `-- name: ListLowStockItems :many
SELECT ` + stockItemColumns + `
FROM stock_items s
JOIN products p ON p.id = s.product_id
WHERE s.quantity <= $1
ORDER BY s.quantity, s.id
`

func (q *Queries) ListLowStockItems(ctx context.Context, threshold int32) ([]StockItemRow, error) {
	return collectStockItemRows(ctx, q, listLowStockItems, threshold)
}

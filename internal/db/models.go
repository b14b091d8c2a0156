package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Brand struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}

type Category struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}

type Product struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	BrandID     int64              `json:"brand_id"`
	CategoryID  int64              `json:"category_id"`
	Sku         string             `json:"sku"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}

type StockItem struct {
	ID             int64              `json:"id"`
	ProductID      int64              `json:"product_id"`
	BatchNumber    string             `json:"batch_number"`
	Quantity       int32              `json:"quantity"`
	CostPrice      decimal.Decimal    `json:"cost_price"`
	SellingPrice   decimal.Decimal    `json:"selling_price"`
	ExpirationDate pgtype.Date        `json:"expiration_date"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

type Sale struct {
	ID             int64              `json:"id"`
	CustomerName   string             `json:"customer_name"`
	CustomerEmail  string             `json:"customer_email"`
	CustomerPhone  string             `json:"customer_phone"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	FinalAmount    decimal.Decimal    `json:"final_amount"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

type SaleItem struct {
	ID                 int64           `json:"id"`
	SaleID             int64           `json:"sale_id"`
	StockItemID        int64           `json:"stock_item_id"`
	Quantity           int32           `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TotalPrice         decimal.Decimal `json:"total_price"`
}

type DomainEvent struct {
	ID          pgtype.UUID        `json:"id"`
	Topic       string             `json:"topic"`
	AggregateID string             `json:"aggregate_id"`
	Payload     []byte             `json:"payload"`
	OccurredAt  pgtype.Timestamptz `json:"occurred_at"`
}

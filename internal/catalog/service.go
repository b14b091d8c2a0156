package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/lineitem"
	"github.com/noah-isme/apotek-admin/internal/pricing"
)

const dateLayout = "2006-01-02"

type queryProvider interface {
	ListBrands(ctx context.Context) ([]db.Brand, error)
	CreateBrand(ctx context.Context, arg db.CreateBrandParams) (db.Brand, error)
	ListCategories(ctx context.Context) ([]db.Category, error)
	CreateCategory(ctx context.Context, arg db.CreateCategoryParams) (db.Category, error)
	CountProducts(ctx context.Context, arg db.CountProductsParams) (int64, error)
	ListProducts(ctx context.Context, arg db.ListProductsParams) ([]db.ListProductsRow, error)
	CreateProduct(ctx context.Context, arg db.CreateProductParams) (db.Product, error)
	CountStockItems(ctx context.Context, arg db.CountStockItemsParams) (int64, error)
	ListStockItems(ctx context.Context, arg db.ListStockItemsParams) ([]db.StockItemRow, error)
	GetStockItem(ctx context.Context, id int64) (db.StockItemRow, error)
	CreateStockItem(ctx context.Context, arg db.CreateStockItemParams) (db.StockItem, error)
	ListAllStockItems(ctx context.Context) ([]db.StockItemRow, error)
	ListExpiringStockItems(ctx context.Context, arg db.ListExpiringStockItemsParams) ([]db.StockItemRow, error)
	ListLowStockItems(ctx context.Context, threshold int32) ([]db.StockItemRow, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries           queryProvider
	cache             *Cache
	defaultLimit      int
	maxLimit          int
	lowStockThreshold int
	expiringDays      int
	now               func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries           queryProvider
	Cache             *Cache
	DefaultLimit      int
	MaxLimit          int
	LowStockThreshold int
	ExpiringDays      int
	Now               func() time.Time
}

// ListParams captures filters for product and stock listings.
type ListParams struct {
	Query      string
	BrandID    *int64
	CategoryID *int64
	ProductID  *int64
	Sort       string
	Page       int
	Limit      int
}

// Brand represents the brand payload.
type Brand struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Category represents the category payload.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Product represents a product with its brand and category names.
type Product struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SKU          string `json:"sku"`
	BrandID      int64  `json:"brand_id"`
	BrandName    string `json:"brand_name,omitempty"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name,omitempty"`
}

// StockItem is a batch of a product with its pricing as of today.
type StockItem struct {
	ID                 int64  `json:"id"`
	ProductID          int64  `json:"product_id"`
	ProductName        string `json:"product_name"`
	SKU                string `json:"sku"`
	BatchNumber        string `json:"batch_number"`
	Quantity           int    `json:"quantity"`
	CostPrice          string `json:"cost_price"`
	SellingPrice       string `json:"selling_price"`
	DiscountPercentage int    `json:"discount_percentage"`
	DiscountedPrice    string `json:"discounted_price"`
	ExpirationDate     string `json:"expiration_date"`
}

// ListResult contains list data and pagination metadata.
type ListResult[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	threshold := cfg.LowStockThreshold
	if threshold < 1 {
		threshold = 10
	}
	days := cfg.ExpiringDays
	if days < 1 {
		days = 30
	}
	return &Service{
		queries:           cfg.Queries,
		cache:             cfg.Cache,
		defaultLimit:      defaultLimit,
		maxLimit:          maxLimit,
		lowStockThreshold: threshold,
		expiringDays:      days,
		now:               cfg.Now,
	}, nil
}

func (s *Service) today() time.Time {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	page, err := common.ParsePage(values, s.defaultLimit, s.maxLimit)
	if err != nil {
		return ListParams{}, err
	}
	params := ListParams{Page: page.Page, Limit: page.Limit}
	params.Query = strings.TrimSpace(values.Get("q"))

	if params.BrandID, err = optionalID(values, "brand"); err != nil {
		return params, err
	}
	if params.CategoryID, err = optionalID(values, "category"); err != nil {
		return params, err
	}
	if params.ProductID, err = optionalID(values, "product"); err != nil {
		return params, err
	}

	params.Sort = normalizeSort(values.Get("ordering"))
	return params, nil
}

func optionalID(values url.Values, field string) (*int64, error) {
	v := strings.TrimSpace(values.Get(field))
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return nil, common.BadRequest(field, field+" must be a positive integer id", err)
	}
	return &id, nil
}

// ListBrands returns the list of brands sorted by name.
func (s *Service) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := s.queries.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	result := make([]Brand, 0, len(rows))
	for _, row := range rows {
		result = append(result, Brand{ID: row.ID, Name: row.Name, Description: row.Description})
	}
	return result, nil
}

// ListCategories returns the list of categories sorted by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	result := make([]Category, 0, len(rows))
	for _, row := range rows {
		result = append(result, Category{ID: row.ID, Name: row.Name, Description: row.Description})
	}
	return result, nil
}

// ListProducts returns filtered products with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ListResult[Product], error) {
	countParams := db.CountProductsParams{
		Q:          optionalStringValue(params.Query),
		BrandID:    optionalInt64(params.BrandID),
		CategoryID: optionalInt64(params.CategoryID),
	}
	total, err := s.queries.CountProducts(ctx, countParams)
	if err != nil {
		return ListResult[Product]{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.queries.ListProducts(ctx, db.ListProductsParams{
		Q:           countParams.Q,
		BrandID:     countParams.BrandID,
		CategoryID:  countParams.CategoryID,
		OffsetValue: offset(params),
		LimitValue:  int32(params.Limit),
	})
	if err != nil {
		return ListResult[Product]{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, Product{
			ID:           row.ID,
			Name:         row.Name,
			Description:  row.Description,
			SKU:          row.Sku,
			BrandID:      row.BrandID,
			BrandName:    row.BrandName,
			CategoryID:   row.CategoryID,
			CategoryName: row.CategoryName,
		})
	}
	return ListResult[Product]{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// ListStockItems returns stock batches, soonest expiry first unless ordered otherwise.
func (s *Service) ListStockItems(ctx context.Context, params ListParams) (ListResult[StockItem], error) {
	countParams := db.CountStockItemsParams{
		Q:         optionalStringValue(params.Query),
		ProductID: optionalInt64(params.ProductID),
	}
	total, err := s.queries.CountStockItems(ctx, countParams)
	if err != nil {
		return ListResult[StockItem]{}, fmt.Errorf("count stock items: %w", err)
	}
	rows, err := s.queries.ListStockItems(ctx, db.ListStockItemsParams{
		Q:           countParams.Q,
		ProductID:   countParams.ProductID,
		Sort:        params.Sort,
		OffsetValue: offset(params),
		LimitValue:  int32(params.Limit),
	})
	if err != nil {
		return ListResult[StockItem]{}, fmt.Errorf("list stock items: %w", err)
	}
	return ListResult[StockItem]{Items: s.stockItems(rows), Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// GetStockItem returns a single stock batch.
func (s *Service) GetStockItem(ctx context.Context, id int64) (StockItem, error) {
	row, err := s.queries.GetStockItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, common.NotFound("stock item not found", err)
		}
		return StockItem{}, fmt.Errorf("get stock item: %w", err)
	}
	return s.stockItem(row), nil
}

// ExpiringStock returns batches expiring between today and today+days.
func (s *Service) ExpiringStock(ctx context.Context, days int) ([]StockItem, error) {
	if days < 1 {
		days = s.expiringDays
	}
	today := s.today()
	rows, err := s.queries.ListExpiringStockItems(ctx, db.ListExpiringStockItemsParams{
		FromDate: pgtype.Date{Time: today, Valid: true},
		ToDate:   pgtype.Date{Time: today.AddDate(0, 0, days), Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("list expiring stock: %w", err)
	}
	return s.stockItems(rows), nil
}

// LowStock returns batches at or below threshold units.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]StockItem, error) {
	if threshold < 1 {
		threshold = s.lowStockThreshold
	}
	rows, err := s.queries.ListLowStockItems(ctx, int32(threshold))
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return s.stockItems(rows), nil
}

// Snapshot returns the order form catalog: every stock item keyed by id with
// its available quantity, selling price and today's expiry discount. The
// encoded payload is cached until the TTL passes or stock changes.
func (s *Service) Snapshot(ctx context.Context) (lineitem.Catalog, []byte, error) {
	if data, ok, err := s.cache.GetBytes(ctx, SnapshotKey); err == nil && ok {
		cat, perr := lineitem.ParseCatalog(data)
		if perr == nil {
			return cat, data, nil
		}
	}
	rows, err := s.queries.ListAllStockItems(ctx)
	if err != nil {
		return lineitem.Catalog{}, nil, fmt.Errorf("list stock for snapshot: %w", err)
	}
	today := s.today()
	entries := make(map[string]lineitem.Entry, len(rows))
	for _, row := range rows {
		pct := 0
		if row.ExpirationDate.Valid {
			pct = pricing.DiscountPercentage(row.ExpirationDate.Time, today)
		}
		entries[strconv.FormatInt(row.ID, 10)] = lineitem.Entry{
			AvailableQuantity:  int(row.Quantity),
			SellingPrice:       row.SellingPrice,
			DiscountPercentage: decimal.NewFromInt(int64(pct)),
		}
	}
	cat := lineitem.NewCatalog(entries)
	data, err := encodeSnapshot(cat)
	if err != nil {
		return lineitem.Catalog{}, nil, err
	}
	_ = s.cache.SetBytes(ctx, SnapshotKey, data)
	return cat, data, nil
}

func encodeSnapshot(cat lineitem.Catalog) ([]byte, error) {
	data, err := json.Marshal(cat)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// InvalidateSnapshot drops the cached catalog payload.
func (s *Service) InvalidateSnapshot(ctx context.Context) error {
	return s.cache.Delete(ctx, SnapshotKey)
}

// CreateBrandInput is the body of POST /brands.
type CreateBrandInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

// CreateBrand inserts a brand.
func (s *Service) CreateBrand(ctx context.Context, in CreateBrandInput) (Brand, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Brand{}, err
	}
	row, err := s.queries.CreateBrand(ctx, db.CreateBrandParams{Name: strings.TrimSpace(in.Name), Description: in.Description})
	if err != nil {
		return Brand{}, mapWriteError("brand", err)
	}
	return Brand{ID: row.ID, Name: row.Name, Description: row.Description}, nil
}

// CreateCategoryInput is the body of POST /categories.
type CreateCategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

// CreateCategory inserts a category.
func (s *Service) CreateCategory(ctx context.Context, in CreateCategoryInput) (Category, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Category{}, err
	}
	row, err := s.queries.CreateCategory(ctx, db.CreateCategoryParams{Name: strings.TrimSpace(in.Name), Description: in.Description})
	if err != nil {
		return Category{}, mapWriteError("category", err)
	}
	return Category{ID: row.ID, Name: row.Name, Description: row.Description}, nil
}

// CreateProductInput is the body of POST /products.
type CreateProductInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	BrandID     int64  `json:"brand_id" validate:"required,gt=0"`
	CategoryID  int64  `json:"category_id" validate:"required,gt=0"`
	SKU         string `json:"sku" validate:"required,max=50"`
}

// CreateProduct inserts a product.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	row, err := s.queries.CreateProduct(ctx, db.CreateProductParams{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		BrandID:     in.BrandID,
		CategoryID:  in.CategoryID,
		Sku:         strings.TrimSpace(in.SKU),
	})
	if err != nil {
		return Product{}, mapWriteError("product", err)
	}
	return Product{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		SKU:         row.Sku,
		BrandID:     row.BrandID,
		CategoryID:  row.CategoryID,
	}, nil
}

// CreateStockItemInput is the body of POST /stock-items.
type CreateStockItemInput struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	BatchNumber    string          `json:"batch_number" validate:"required,max=50"`
	Quantity       int             `json:"quantity" validate:"gte=0"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	ExpirationDate string          `json:"expiration_date" validate:"required,datetime=2006-01-02"`
}

// CreateStockItem inserts a stock batch and drops the cached order form catalog.
func (s *Service) CreateStockItem(ctx context.Context, in CreateStockItemInput) (StockItem, error) {
	if err := common.ValidateStruct(in); err != nil {
		return StockItem{}, err
	}
	if in.SellingPrice.IsNegative() || in.SellingPrice.IsZero() {
		return StockItem{}, common.BadRequest("selling_price", "selling_price must be positive", nil)
	}
	if in.CostPrice.IsNegative() {
		return StockItem{}, common.BadRequest("cost_price", "cost_price must not be negative", nil)
	}
	expiration, err := time.Parse(dateLayout, in.ExpirationDate)
	if err != nil {
		return StockItem{}, common.BadRequest("expiration_date", "expiration_date must be YYYY-MM-DD", err)
	}
	created, err := s.queries.CreateStockItem(ctx, db.CreateStockItemParams{
		ProductID:      in.ProductID,
		BatchNumber:    strings.TrimSpace(in.BatchNumber),
		Quantity:       int32(in.Quantity),
		CostPrice:      lineitem.Round2(in.CostPrice),
		SellingPrice:   lineitem.Round2(in.SellingPrice),
		ExpirationDate: pgtype.Date{Time: expiration, Valid: true},
	})
	if err != nil {
		return StockItem{}, mapWriteError("stock item", err)
	}
	_ = s.InvalidateSnapshot(ctx)
	return s.GetStockItem(ctx, created.ID)
}

func (s *Service) stockItems(rows []db.StockItemRow) []StockItem {
	out := make([]StockItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.stockItem(row))
	}
	return out
}

func (s *Service) stockItem(row db.StockItemRow) StockItem {
	item := StockItem{
		ID:           row.ID,
		ProductID:    row.ProductID,
		ProductName:  row.ProductName,
		SKU:          row.Sku,
		BatchNumber:  row.BatchNumber,
		Quantity:     int(row.Quantity),
		CostPrice:    row.CostPrice.StringFixed(2),
		SellingPrice: row.SellingPrice.StringFixed(2),
	}
	if row.ExpirationDate.Valid {
		item.ExpirationDate = row.ExpirationDate.Time.Format(dateLayout)
		item.DiscountPercentage = pricing.DiscountPercentage(row.ExpirationDate.Time, s.today())
	}
	item.DiscountedPrice = pricing.DiscountedPrice(row.SellingPrice, decimal.NewFromInt(int64(item.DiscountPercentage))).StringFixed(2)
	return item
}

func mapWriteError(entity string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &common.AppError{Code: "CONFLICT", Message: entity + " already exists", HTTPStatus: http.StatusConflict, Err: err}
		case "23503":
			return &common.AppError{Code: "BAD_REQUEST", Message: entity + " references a missing record", HTTPStatus: http.StatusBadRequest, Err: err}
		}
	}
	return fmt.Errorf("create %s: %w", entity, err)
}

func offset(params ListParams) int32 {
	off := int32((params.Page - 1) * params.Limit)
	if off < 0 {
		return 0
	}
	return off
}

func optionalStringValue(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func optionalInt64(ptr *int64) any {
	if ptr == nil {
		return nil
	}
	return *ptr
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "expiration_date:desc", "quantity:asc", "quantity:desc":
		return s
	default:
		return ""
	}
}

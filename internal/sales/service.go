package sales

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/draft"
	"github.com/noah-isme/apotek-admin/internal/events"
	"github.com/noah-isme/apotek-admin/internal/lineitem"
	"github.com/noah-isme/apotek-admin/internal/obs"
	"github.com/noah-isme/apotek-admin/internal/pricing"
)

var (
	// ErrStockNotFound is wrapped when a sale references an unknown stock item.
	ErrStockNotFound = errors.New("stock item not found")
	// ErrInsufficientStock is wrapped when a sale asks for more units than are on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound indicates the sale does not exist.
	ErrNotFound = errors.New("sale not found")
)

// TxQuerier is the subset of queries used inside the sale transaction.
type TxQuerier interface {
	LockStockItem(ctx context.Context, id int64) (db.StockItemRow, error)
	DecrementStock(ctx context.Context, arg db.DecrementStockParams) (int64, error)
	InsertSale(ctx context.Context, arg db.InsertSaleParams) (db.Sale, error)
	InsertSaleItem(ctx context.Context, arg db.InsertSaleItemParams) (db.SaleItem, error)
}

// TxFunc runs fn inside a database transaction.
type TxFunc func(ctx context.Context, fn func(TxQuerier) error) error

// StoreTx adapts a db.Store to TxFunc.
func StoreTx(store *db.Store) TxFunc {
	return func(ctx context.Context, fn func(TxQuerier) error) error {
		return store.InTx(ctx, func(q *db.Queries) error { return fn(q) })
	}
}

// Reader is the read side of sales.
type Reader interface {
	GetSale(ctx context.Context, id int64) (db.Sale, error)
	CountSales(ctx context.Context, search interface{}) (int64, error)
	ListSales(ctx context.Context, arg db.ListSalesParams) ([]db.Sale, error)
	ListSaleItems(ctx context.Context, saleID int64) ([]db.ListSaleItemsRow, error)
	SalesTotals(ctx context.Context, arg db.SalesTotalsParams) (db.SalesTotalsRow, error)
}

// Drafts loads and discards order form drafts.
type Drafts interface {
	Get(ctx context.Context, id string) (draft.Draft, error)
	Discard(ctx context.Context, id string) error
}

// Service records sales against stock.
type Service struct {
	Tx     TxFunc
	Q      Reader
	Drafts Drafts
	Events events.Emitter
	Now    func() time.Time
}

// ItemInput is one requested line of a sale.
type ItemInput struct {
	StockItemID int64 `json:"stock_item_id" validate:"required,gt=0"`
	Quantity    int   `json:"quantity" validate:"required,gt=0"`
}

// Customer identifies the buyer.
type Customer struct {
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email,max=254"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=20"`
}

// Input is the body of POST /api/v1/sales.
type Input struct {
	Customer
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemView is a rendered sale item.
type ItemView struct {
	ID                 int64  `json:"id"`
	StockItemID        int64  `json:"stock_item_id"`
	ProductName        string `json:"product_name,omitempty"`
	BatchNumber        string `json:"batch_number,omitempty"`
	Quantity           int    `json:"quantity"`
	UnitPrice          string `json:"unit_price"`
	DiscountPercentage string `json:"discount_percentage"`
	TotalPrice         string `json:"total_price"`
}

// View is a rendered sale.
type View struct {
	ID             int64      `json:"id"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	CustomerPhone  string     `json:"customer_phone"`
	TotalAmount    string     `json:"total_amount"`
	DiscountAmount string     `json:"discount_amount"`
	FinalAmount    string     `json:"final_amount"`
	CreatedAt      string     `json:"created_at"`
	Items          []ItemView `json:"items,omitempty"`
}

// Report summarises sales in a period.
type Report struct {
	TotalSales       int64  `json:"total_sales"`
	TotalRevenue     string `json:"total_revenue"`
	AverageSaleValue string `json:"average_sale_value"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create records a sale: every stock row is locked, checked and decremented
// inside one transaction, and line prices use the expiry discount of the day.
func (s *Service) Create(ctx context.Context, in Input) (View, error) {
	return s.create(ctx, in, "api")
}

func (s *Service) create(ctx context.Context, in Input, source string) (View, error) {
	if s == nil || s.Tx == nil {
		return View{}, errors.New("sales service not configured")
	}
	if err := common.ValidateStruct(in); err != nil {
		obs.IncSale(source, "invalid")
		return View{}, err
	}
	today := s.now()
	var (
		sale  db.Sale
		items []ItemView
	)
	err := s.Tx(ctx, func(q TxQuerier) error {
		requested := make(map[int64]int, len(in.Items))
		rows := make(map[int64]db.StockItemRow, len(in.Items))
		priced := make([]pricing.Item, 0, len(in.Items))
		for _, it := range in.Items {
			row, ok := rows[it.StockItemID]
			if !ok {
				var err error
				row, err = q.LockStockItem(ctx, it.StockItemID)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return stockNotFound(it.StockItemID)
					}
					return fmt.Errorf("lock stock item %d: %w", it.StockItemID, err)
				}
				rows[it.StockItemID] = row
			}
			requested[it.StockItemID] += it.Quantity
			if requested[it.StockItemID] > int(row.Quantity) {
				return insufficientStock(row, requested[it.StockItemID])
			}
			pct := 0
			if row.ExpirationDate.Valid {
				pct = pricing.DiscountPercentage(row.ExpirationDate.Time, today)
			}
			priced = append(priced, pricing.Item{
				StockItemID:        strconv.FormatInt(row.ID, 10),
				Qty:                it.Quantity,
				SellingPrice:       row.SellingPrice,
				DiscountPercentage: decimal.NewFromInt(int64(pct)),
			})
		}

		summary := pricing.Compute(priced)
		var err error
		sale, err = q.InsertSale(ctx, db.InsertSaleParams{
			CustomerName:   strings.TrimSpace(in.CustomerName),
			CustomerEmail:  strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
			CustomerPhone:  strings.TrimSpace(in.CustomerPhone),
			TotalAmount:    summary.Gross,
			DiscountAmount: summary.Discount,
			FinalAmount:    summary.Final,
		})
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		items = make([]ItemView, 0, len(summary.Lines))
		for i, line := range summary.Lines {
			stockID := in.Items[i].StockItemID
			created, err := q.InsertSaleItem(ctx, db.InsertSaleItemParams{
				SaleID:             sale.ID,
				StockItemID:        stockID,
				Quantity:           int32(line.Qty),
				UnitPrice:          line.UnitPrice,
				DiscountPercentage: line.DiscountPercentage,
				TotalPrice:         line.LineTotal,
			})
			if err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
			affected, err := q.DecrementStock(ctx, db.DecrementStockParams{ID: stockID, Quantity: int32(line.Qty)})
			if err != nil {
				return fmt.Errorf("decrement stock %d: %w", stockID, err)
			}
			if affected == 0 {
				return insufficientStock(rows[stockID], requested[stockID])
			}
			items = append(items, ItemView{
				ID:                 created.ID,
				StockItemID:        stockID,
				ProductName:        rows[stockID].ProductName,
				BatchNumber:        rows[stockID].BatchNumber,
				Quantity:           line.Qty,
				UnitPrice:          line.UnitPrice.StringFixed(2),
				DiscountPercentage: line.DiscountPercentage.StringFixed(2),
				TotalPrice:         line.LineTotal.StringFixed(2),
			})
		}
		return nil
	})
	if err != nil {
		obs.IncSale(source, "rejected")
		return View{}, err
	}

	obs.IncSale(source, "created")
	final, _ := sale.FinalAmount.Float64()
	obs.ObserveSaleAmount(final)
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicSaleCreated, strconv.FormatInt(sale.ID, 10), map[string]any{
			"sale_id":      sale.ID,
			"final_amount": sale.FinalAmount.StringFixed(2),
			"items":        len(items),
		})
	}
	view := renderSale(sale)
	view.Items = items
	return view, nil
}

// SubmitDraft turns a draft's selected rows into a sale and discards the
// draft. Prices and stock are taken from the database, not from the draft.
func (s *Service) SubmitDraft(ctx context.Context, draftID string, customer Customer) (View, error) {
	if s == nil || s.Drafts == nil {
		return View{}, errors.New("sales drafts not configured")
	}
	d, err := s.Drafts.Get(ctx, draftID)
	if err != nil {
		return View{}, err
	}
	items, err := draftItems(d.Form.Rows())
	if err != nil {
		return View{}, err
	}
	if len(items) == 0 {
		return View{}, &common.AppError{Code: "EMPTY_SALE", Message: "draft has no priced rows", HTTPStatus: http.StatusBadRequest}
	}
	view, err := s.create(ctx, Input{Customer: customer, Items: items}, "draft")
	if err != nil {
		return View{}, err
	}
	_ = s.Drafts.Discard(ctx, draftID)
	return view, nil
}

func draftItems(rows []lineitem.Row) ([]ItemInput, error) {
	out := make([]ItemInput, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.ItemID) == "" || row.Quantity <= 0 {
			continue
		}
		id, err := strconv.ParseInt(row.ItemID, 10, 64)
		if err != nil || id < 1 {
			return nil, &common.AppError{
				Code:       "STOCK_NOT_FOUND",
				Message:    "stock item " + row.ItemID + " not found",
				HTTPStatus: http.StatusBadRequest,
				Err:        ErrStockNotFound,
				Details:    map[string]any{"row_id": row.ID},
			}
		}
		out = append(out, ItemInput{StockItemID: id, Quantity: row.Quantity})
	}
	return out, nil
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("sales service not configured")
	}
	sale, err := s.Q.GetSale(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, common.NotFound("sale not found", ErrNotFound)
		}
		return View{}, fmt.Errorf("get sale: %w", err)
	}
	rows, err := s.Q.ListSaleItems(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("list sale items: %w", err)
	}
	view := renderSale(sale)
	view.Items = make([]ItemView, 0, len(rows))
	for _, row := range rows {
		view.Items = append(view.Items, ItemView{
			ID:                 row.ID,
			StockItemID:        row.StockItemID,
			ProductName:        row.ProductName,
			BatchNumber:        row.BatchNumber,
			Quantity:           int(row.Quantity),
			UnitPrice:          row.UnitPrice.StringFixed(2),
			DiscountPercentage: row.DiscountPercentage.StringFixed(2),
			TotalPrice:         row.TotalPrice.StringFixed(2),
		})
	}
	return view, nil
}

// ListParams filters the sales list.
type ListParams struct {
	Search   string
	Ordering string
	Page     int
	Limit    int
}

// List returns sales, newest first unless ordered otherwise.
func (s *Service) List(ctx context.Context, p ListParams) ([]View, int64, error) {
	if s == nil || s.Q == nil {
		return nil, 0, errors.New("sales service not configured")
	}
	var search interface{}
	if q := strings.TrimSpace(p.Search); q != "" {
		search = q
	}
	total, err := s.Q.CountSales(ctx, search)
	if err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}
	offset := (p.Page - 1) * p.Limit
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Q.ListSales(ctx, db.ListSalesParams{
		Search:      search,
		Ordering:    normalizeOrdering(p.Ordering),
		OffsetValue: int32(offset),
		LimitValue:  int32(p.Limit),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	out := make([]View, 0, len(rows))
	for _, row := range rows {
		out = append(out, renderSale(row))
	}
	return out, total, nil
}

// Report aggregates sales created in [from, to). Zero times leave the bound open.
func (s *Service) Report(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Q == nil {
		return Report{}, errors.New("sales service not configured")
	}
	row, err := s.Q.SalesTotals(ctx, db.SalesTotalsParams{
		FromTime: timestamptz(from),
		ToTime:   timestamptz(to),
	})
	if err != nil {
		return Report{}, fmt.Errorf("sales totals: %w", err)
	}
	avg := decimal.Zero
	if row.TotalSales > 0 {
		avg = row.TotalRevenue.Div(decimal.NewFromInt(row.TotalSales))
	}
	return Report{
		TotalSales:       row.TotalSales,
		TotalRevenue:     row.TotalRevenue.StringFixed(2),
		AverageSaleValue: lineitem.Round2(avg).StringFixed(2),
	}, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func normalizeOrdering(o string) string {
	switch strings.TrimSpace(o) {
	case "created_at", "final_amount", "-final_amount":
		return strings.TrimSpace(o)
	default:
		return "-created_at"
	}
}

func renderSale(sale db.Sale) View {
	view := View{
		ID:             sale.ID,
		CustomerName:   sale.CustomerName,
		CustomerEmail:  sale.CustomerEmail,
		CustomerPhone:  sale.CustomerPhone,
		TotalAmount:    sale.TotalAmount.StringFixed(2),
		DiscountAmount: sale.DiscountAmount.StringFixed(2),
		FinalAmount:    sale.FinalAmount.StringFixed(2),
	}
	if sale.CreatedAt.Valid {
		view.CreatedAt = sale.CreatedAt.Time.UTC().Format(time.RFC3339)
	}
	return view
}

func stockNotFound(id int64) error {
	return &common.AppError{
		Code:       "STOCK_NOT_FOUND",
		Message:    "stock item " + strconv.FormatInt(id, 10) + " not found",
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrStockNotFound,
		Details:    map[string]any{"stock_item_id": id},
	}
}

func insufficientStock(row db.StockItemRow, requested int) error {
	return &common.AppError{
		Code:       "INSUFFICIENT_STOCK",
		Message:    "insufficient stock for " + row.ProductName,
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrInsufficientStock,
		Details: map[string]any{
			"stock_item_id": row.ID,
			"available":     row.Quantity,
			"requested":     requested,
		},
	}
}

package catalog

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/apotek-admin/internal/common"
)

// Handler exposes catalog and stock endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

// Brands handles GET /api/v1/brands.
func (h *Handler) Brands(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListBrands(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// CreateBrand handles POST /api/v1/brands.
func (h *Handler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateBrandInput
	if err := common.DecodeAndValidate(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateBrand(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListCategories(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// CreateCategory handles POST /api/v1/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateCategoryInput
	if err := common.DecodeAndValidate(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateCategory(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Products handles GET /api/v1/products with filters and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.List(w, result.Items, common.PageParams{Page: result.Page, Limit: result.Limit}, result.Total)
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateProductInput
	if err := common.DecodeAndValidate(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// StockItems handles GET /api/v1/stock-items.
func (h *Handler) StockItems(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.ListStockItems(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.List(w, result.Items, common.PageParams{Page: result.Page, Limit: result.Limit}, result.Total)
}

// StockItem handles GET /api/v1/stock-items/{id}.
func (h *Handler) StockItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		common.WriteError(w, common.BadRequest("id", "invalid stock item id", err))
		return
	}
	item, err := h.service.GetStockItem(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, item)
}

// CreateStockItem handles POST /api/v1/stock-items.
func (h *Handler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateStockItemInput
	if err := common.DecodeAndValidate(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateStockItem(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Expiring handles GET /api/v1/stock-items/expiring?days=.
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	days, ok := positiveQuery(w, r, "days")
	if !ok {
		return
	}
	items, err := h.service.ExpiringStock(r.Context(), days)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// LowStock handles GET /api/v1/stock-items/low-stock?threshold=.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	threshold, ok := positiveQuery(w, r, "threshold")
	if !ok {
		return
	}
	items, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// StockCatalog handles GET /api/v1/stock-catalog. The body is the JSON object
// the order form embeds: stock item id to quantity, selling price and discount.
func (h *Handler) StockCatalog(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	_, data, err := h.service.Snapshot(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// positiveQuery reads an optional positive integer; zero means "use the default".
func positiveQuery(w http.ResponseWriter, r *http.Request, field string) (int, bool) {
	v, err := common.QueryInt(r.URL.Query(), field, 0, 1, math.MaxInt32)
	if err != nil {
		common.WriteError(w, err)
		return 0, false
	}
	return v, true
}

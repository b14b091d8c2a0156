package draft

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/lineitem"
)

// Handler wires draft services to HTTP.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// RowView is a rendered form row. Derived fields are empty strings while blank.
type RowView struct {
	ID                 string `json:"id"`
	ItemID             string `json:"item_id"`
	Quantity           int    `json:"quantity"`
	UnitPrice          string `json:"unit_price"`
	DiscountPercentage string `json:"discount_percentage"`
	LineTotal          string `json:"line_total"`
	OverStock          bool   `json:"over_stock"`
}

// AggregateView renders the order totals.
type AggregateView struct {
	GrossTotal     string `json:"gross_total"`
	DiscountAmount string `json:"discount_amount"`
	FinalAmount    string `json:"final_amount"`
}

// Warning flags a soft problem on a row; the draft can still be submitted.
type Warning struct {
	RowID   string `json:"row_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// View is the JSON representation of a draft.
type View struct {
	ID        string        `json:"id"`
	Rows      []RowView     `json:"rows"`
	Aggregate AggregateView `json:"aggregate"`
	Warnings  []Warning     `json:"warnings"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// Render converts a loaded draft into its response shape.
func Render(d Draft) View {
	view := View{
		ID:        d.ID,
		Rows:      []RowView{},
		Warnings:  []Warning{},
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if d.Form == nil {
		return view
	}
	cat := d.Form.Catalog()
	for _, row := range d.Form.Rows() {
		view.Rows = append(view.Rows, RowView{
			ID:                 row.ID,
			ItemID:             row.ItemID,
			Quantity:           row.Quantity,
			UnitPrice:          money(row.UnitPrice),
			DiscountPercentage: money(row.DiscountPercentage),
			LineTotal:          money(row.LineTotal),
			OverStock:          row.OverStock,
		})
		if row.OverStock {
			entry, _ := cat.Lookup(row.ItemID)
			view.Warnings = append(view.Warnings, Warning{
				RowID:   row.ID,
				Code:    "OVER_STOCK",
				Message: "quantity exceeds available stock of " + strconv.Itoa(entry.AvailableQuantity),
			})
		}
	}
	agg := d.Form.Aggregate()
	view.Aggregate = AggregateView{
		GrossTotal:     agg.GrossTotal.StringFixed(2),
		DiscountAmount: agg.DiscountAmount.StringFixed(2),
		FinalAmount:    agg.FinalAmount.StringFixed(2),
	}
	return view
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

// Create handles POST /api/v1/sales/drafts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	var payload struct {
		Rows []RowInput `json:"rows" validate:"dive"`
	}
	if r.ContentLength != 0 {
		if err := common.DecodeAndValidate(r, &payload); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	d, err := h.Svc.Create(r.Context(), payload.Rows)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logSoftStates(d, "")
	common.Data(w, http.StatusCreated, Render(d))
}

// Get handles GET /api/v1/sales/drafts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	d, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, Render(d))
}

// AddRow handles POST /api/v1/sales/drafts/{id}/rows.
func (h *Handler) AddRow(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	var in RowInput
	if r.ContentLength != 0 {
		if err := common.DecodeAndValidate(r, &in); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	d, rowID, err := h.Svc.AddRow(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logSoftStates(d, rowID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": Render(d), "row_id": rowID})
}

// UpdateRow handles PATCH /api/v1/sales/drafts/{id}/rows/{rowId}.
func (h *Handler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	var patch RowPatch
	if err := common.DecodeAndValidate(r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	rowID := chi.URLParam(r, "rowId")
	d, err := h.Svc.UpdateRow(r.Context(), chi.URLParam(r, "id"), rowID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logSoftStates(d, rowID)
	common.Data(w, http.StatusOK, Render(d))
}

// RemoveRow handles DELETE /api/v1/sales/drafts/{id}/rows/{rowId}.
func (h *Handler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	d, err := h.Svc.RemoveRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rowId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, Render(d))
}

// Discard handles DELETE /api/v1/sales/drafts/{id}.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "draft service not configured", nil)
		return
	}
	if err := h.Svc.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logSoftStates records catalog misses and overstock rows at debug level.
func (h *Handler) logSoftStates(d Draft, rowID string) {
	if d.Form == nil {
		return
	}
	for _, row := range d.Form.Rows() {
		if rowID != "" && row.ID != rowID {
			continue
		}
		switch {
		case strings.TrimSpace(row.ItemID) != "" && row.Blank():
			h.Logger.Debug().Str("draft_id", d.ID).Str("row_id", row.ID).Str("item_id", row.ItemID).Msg("draft_item_not_in_catalog")
		case row.OverStock:
			h.Logger.Debug().Str("draft_id", d.ID).Str("row_id", row.ID).Int("quantity", row.Quantity).Msg("draft_row_over_stock")
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "draft not found", nil)
	case errors.Is(err, lineitem.ErrRowNotFound):
		common.JSONError(w, http.StatusNotFound, "ROW_NOT_FOUND", "row not found", nil)
	case errors.Is(err, lineitem.ErrDuplicateRow):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_ROW", "row id already used", nil)
	default:
		h.Logger.Error().Err(err).Msg("draft_request_failed")
		common.WriteError(w, err)
	}
}

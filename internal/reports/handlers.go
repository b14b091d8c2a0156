package reports

import (
	"net/http"

	"github.com/noah-isme/apotek-admin/internal/common"
)

// Handler exposes report read endpoints.
type Handler struct {
	Svc *Service
}

// Dashboard handles GET /api/v1/reports/dashboard-data/.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_NOT_CONFIGURED", "reports service not configured", nil)
		return
	}
	out, err := h.Svc.Dashboard(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// InventorySummary handles GET /api/v1/reports/inventory/summary/.
func (h *Handler) InventorySummary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_NOT_CONFIGURED", "reports service not configured", nil)
		return
	}
	out, err := h.Svc.InventorySummary(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

// InventoryValue handles GET /api/v1/reports/inventory/value/.
func (h *Handler) InventoryValue(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_NOT_CONFIGURED", "reports service not configured", nil)
		return
	}
	out, err := h.Svc.InventoryValue(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

// SalesSummary handles GET /api/v1/reports/sales/summary/?days=30.
func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_NOT_CONFIGURED", "reports service not configured", nil)
		return
	}
	days, err := common.QueryInt(r.URL.Query(), "days", 30, 1, 3650)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.SalesSummary(r.Context(), days)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

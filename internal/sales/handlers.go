package sales

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/draft"
)

const dateLayout = "2006-01-02"

// Handler exposes sale endpoints.
type Handler struct {
	Svc          *Service
	DefaultLimit int
	MaxLimit     int
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sales service not configured", nil)
		return false
	}
	return true
}

// Create handles POST /api/v1/sales.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in Input
	if err := common.DecodeAndValidate(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// SubmitDraft handles POST /api/v1/sales/drafts/{id}/submit.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var customer Customer
	if err := common.DecodeAndValidate(r, &customer); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.SubmitDraft(r.Context(), chi.URLParam(r, "id"), customer)
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "draft not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// List handles GET /api/v1/sales?search=&ordering=&page=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page, err := common.ParsePage(r.URL.Query(), h.DefaultLimit, h.MaxLimit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	items, total, err := h.Svc.List(r.Context(), ListParams{
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
		Page:     page.Page,
		Limit:    page.Limit,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.List(w, items, page, total)
}

// Get handles GET /api/v1/sales/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		common.WriteError(w, common.BadRequest("id", "invalid sale id", err))
		return
	}
	out, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

// Report handles GET /api/v1/sales/report?start_date=&end_date=. Both dates are
// inclusive calendar days; omitted bounds are open.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	from, err := parseDate(r.URL.Query().Get("start_date"))
	if err != nil {
		common.WriteError(w, common.BadRequest("start_date", "start_date must be YYYY-MM-DD", err))
		return
	}
	to, err := parseDate(r.URL.Query().Get("end_date"))
	if err != nil {
		common.WriteError(w, common.BadRequest("end_date", "end_date must be YYYY-MM-DD", err))
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	out, err := h.Svc.Report(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

package common

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the "error" member of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps v in the {"data": v} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// List writes one page of items with its pagination block and mirrors the
// total in X-Total-Count.
func List(w http.ResponseWriter, items any, page PageParams, total int64) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	JSON(w, http.StatusOK, map[string]any{
		"data": items,
		"pagination": Pagination{
			Page:       page.Page,
			PerPage:    page.Limit,
			TotalItems: int(total),
		},
	})
}

// JSONError writes {"error": {...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]ErrorBody{
		"error": {Code: code, Message: message, Details: details},
	})
}

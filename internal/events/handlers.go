package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/db"
)

// Lister reads recent events for a topic.
type Lister interface {
	ListDomainEventsByTopic(ctx context.Context, arg db.ListDomainEventsByTopicParams) ([]db.DomainEvent, error)
}

// Handler exposes recent domain events, e.g. the latest expiring stock alerts.
type Handler struct {
	Q Lister
}

type eventView struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  string          `json:"occurred_at"`
}

// List handles GET /api/v1/events?topic=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "events not configured", nil)
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if !KnownTopic(topic) {
		common.WriteError(w, common.BadRequest("topic", "unknown topic", nil))
		return
	}
	limit, err := common.QueryInt(r.URL.Query(), "limit", 20, 1, 100)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Q.ListDomainEventsByTopic(r.Context(), db.ListDomainEventsByTopicParams{Topic: topic, LimitValue: int32(limit)})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		view := eventView{
			Topic:       row.Topic,
			AggregateID: row.AggregateID,
			Payload:     safeJSON(row.Payload),
		}
		if row.ID.Valid {
			view.ID = uuid.UUID(row.ID.Bytes).String()
		}
		if row.OccurredAt.Valid {
			view.OccurredAt = row.OccurredAt.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, view)
	}
	common.Data(w, http.StatusOK, out)
}

package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/apotek-admin/internal/lineitem"
	"github.com/noah-isme/apotek-admin/internal/lock"
	"github.com/noah-isme/apotek-admin/internal/obs"
)

// ErrNotFound indicates the draft expired or never existed.
var ErrNotFound = errors.New("draft not found")

const keyPrefix = "sales:draft:"

// CatalogSource supplies the order form catalog a new draft is pinned to.
type CatalogSource interface {
	Snapshot(ctx context.Context) (lineitem.Catalog, []byte, error)
}

// Service keeps sale drafts in Redis. A draft stores only the editable row
// fields plus the catalog it was opened against; derived fields are
// recomputed by the line item engine on every load.
type Service struct {
	R       *redis.Client
	Catalog CatalogSource
	Locker  lock.Locker
	TTL     time.Duration
	LockTTL time.Duration
	Now     func() time.Time
}

type storedRow struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity"`
}

type state struct {
	ID        string          `json:"id"`
	Catalog   json.RawMessage `json:"catalog"`
	Rows      []storedRow     `json:"rows"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RowInput seeds a new row. Every field is optional.
type RowInput struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// RowPatch edits an existing row. A nil field is left unchanged.
type RowPatch struct {
	ItemID   *string `json:"item_id"`
	Quantity *int    `json:"quantity" validate:"omitempty,gte=0"`
}

// Draft is a loaded draft with its priced rows.
type Draft struct {
	ID        string
	Form      *lineitem.Form
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) check() error {
	if s == nil || s.R == nil || s.Locker.R == nil {
		return errors.New("draft service not configured")
	}
	return nil
}

func key(id string) string {
	return keyPrefix + id
}

// Create opens a draft pinned to the current catalog snapshot.
func (s *Service) Create(ctx context.Context, rows []RowInput) (Draft, error) {
	if err := s.check(); err != nil {
		return Draft{}, err
	}
	if s.Catalog == nil {
		return Draft{}, errors.New("draft catalog source not configured")
	}
	cat, raw, err := s.Catalog.Snapshot(ctx)
	if err != nil {
		return Draft{}, fmt.Errorf("load catalog: %w", err)
	}
	form, err := lineitem.NewForm(cat)
	if err != nil {
		return Draft{}, err
	}
	for _, in := range rows {
		if err := addRow(form, newRow(in)); err != nil {
			return Draft{}, err
		}
	}
	now := s.now().UTC()
	st := state{
		ID:        uuid.NewString(),
		Catalog:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, &st, form); err != nil {
		return Draft{}, err
	}
	obs.IncDraftRecalculation("created")
	obs.AddOverstockWarnings(len(form.OverStockRows()))
	return Draft{ID: st.ID, Form: form, CreatedAt: st.CreatedAt, UpdatedAt: st.UpdatedAt}, nil
}

// Get loads a draft and reprices its rows.
func (s *Service) Get(ctx context.Context, id string) (Draft, error) {
	if err := s.check(); err != nil {
		return Draft{}, err
	}
	st, form, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	return Draft{ID: st.ID, Form: form, CreatedAt: st.CreatedAt, UpdatedAt: st.UpdatedAt}, nil
}

// AddRow appends a row to the draft.
func (s *Service) AddRow(ctx context.Context, id string, in RowInput) (Draft, string, error) {
	row := newRow(in)
	d, err := s.mutate(ctx, id, row.ID, func(f *lineitem.Form) error {
		return addRow(f, row)
	}, lineitem.EventRowAdded)
	return d, row.ID, err
}

// UpdateRow applies an item selection and/or a quantity change, in that order.
func (s *Service) UpdateRow(ctx context.Context, id, rowID string, patch RowPatch) (Draft, error) {
	kind := lineitem.EventQuantityChanged
	if patch.ItemID != nil {
		kind = lineitem.EventItemSelected
	}
	return s.mutate(ctx, id, rowID, func(f *lineitem.Form) error {
		if patch.ItemID != nil {
			if err := f.Apply(lineitem.Event{Kind: lineitem.EventItemSelected, RowID: rowID, ItemID: *patch.ItemID}); err != nil {
				return err
			}
		}
		if patch.Quantity != nil {
			if err := f.Apply(lineitem.Event{Kind: lineitem.EventQuantityChanged, RowID: rowID, Quantity: *patch.Quantity}); err != nil {
				return err
			}
		}
		if patch.ItemID == nil && patch.Quantity == nil {
			if _, ok := f.Row(rowID); !ok {
				return lineitem.ErrRowNotFound
			}
		}
		return nil
	}, kind)
}

// RemoveRow detaches a row from the draft.
func (s *Service) RemoveRow(ctx context.Context, id, rowID string) (Draft, error) {
	return s.mutate(ctx, id, "", func(f *lineitem.Form) error {
		return f.Apply(lineitem.Event{Kind: lineitem.EventRowRemoved, RowID: rowID})
	}, lineitem.EventRowRemoved)
}

// Discard deletes a draft, typically after it was submitted as a sale.
func (s *Service) Discard(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.R.Del(ctx, key(id)).Err()
}

func (s *Service) mutate(ctx context.Context, id, rowID string, fn func(*lineitem.Form) error, kind lineitem.EventKind) (Draft, error) {
	if err := s.check(); err != nil {
		return Draft{}, err
	}
	var out Draft
	err := s.Locker.WithLock(ctx, lock.DraftKey(id), s.lockTTL(), func(ctx context.Context) error {
		st, form, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(form); err != nil {
			return err
		}
		st.UpdatedAt = s.now().UTC()
		if err := s.save(ctx, &st, form); err != nil {
			return err
		}
		obs.IncDraftRecalculation(string(kind))
		if row, ok := form.Row(rowID); ok && row.OverStock {
			obs.AddOverstockWarnings(1)
		}
		out = Draft{ID: st.ID, Form: form, CreatedAt: st.CreatedAt, UpdatedAt: st.UpdatedAt}
		return nil
	})
	return out, err
}

func (s *Service) load(ctx context.Context, id string) (state, *lineitem.Form, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return state{}, nil, ErrNotFound
	}
	data, err := s.R.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state{}, nil, ErrNotFound
		}
		return state{}, nil, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return state{}, nil, fmt.Errorf("decode draft: %w", err)
	}
	cat, err := lineitem.ParseCatalog(st.Catalog)
	if err != nil {
		return state{}, nil, err
	}
	rows := make([]lineitem.Row, 0, len(st.Rows))
	for _, r := range st.Rows {
		rows = append(rows, lineitem.Row{ID: r.ID, ItemID: r.ItemID, Quantity: r.Quantity})
	}
	form, err := lineitem.NewForm(cat, rows...)
	if err != nil {
		return state{}, nil, fmt.Errorf("rebuild draft: %w", err)
	}
	return st, form, nil
}

func (s *Service) save(ctx context.Context, st *state, form *lineitem.Form) error {
	rows := form.Rows()
	st.Rows = make([]storedRow, 0, len(rows))
	for _, r := range rows {
		st.Rows = append(st.Rows, storedRow{ID: r.ID, ItemID: r.ItemID, Quantity: r.Quantity})
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.R.Set(ctx, key(st.ID), data, s.ttl()).Err()
}

// addRow replays what a user does on a fresh row: add it, pick the item, then
// type the quantity. Picking a known item defaults the quantity to 1.
func addRow(f *lineitem.Form, row lineitem.Row) error {
	if err := f.Apply(lineitem.Event{Kind: lineitem.EventRowAdded, RowID: row.ID}); err != nil {
		return err
	}
	if row.ItemID != "" {
		if err := f.Apply(lineitem.Event{Kind: lineitem.EventItemSelected, RowID: row.ID, ItemID: row.ItemID}); err != nil {
			return err
		}
	}
	if row.Quantity > 0 {
		return f.Apply(lineitem.Event{Kind: lineitem.EventQuantityChanged, RowID: row.ID, Quantity: row.Quantity})
	}
	return nil
}

func newRow(in RowInput) lineitem.Row {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return lineitem.Row{ID: id, ItemID: strings.TrimSpace(in.ItemID), Quantity: in.Quantity}
}

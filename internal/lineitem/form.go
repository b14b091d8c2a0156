package lineitem

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrRowNotFound is returned when an operation targets a row that is not part of the form.
	ErrRowNotFound = errors.New("lineitem: row not found")
	// ErrDuplicateRow is returned when a row id is added twice.
	ErrDuplicateRow = errors.New("lineitem: duplicate row id")
)

// Row is a single line of the order form. Only ItemID and Quantity are
// editable; the remaining fields are derived and nil when blank.
type Row struct {
	ID                 string
	ItemID             string
	Quantity           int
	UnitPrice          *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	LineTotal          *decimal.Decimal
	OverStock          bool
}

// Blank reports whether the derived fields are empty.
func (r Row) Blank() bool {
	return r.UnitPrice == nil
}

func (r *Row) apply(d Derived, ok bool) {
	if !ok {
		r.UnitPrice = nil
		r.DiscountPercentage = nil
		r.LineTotal = nil
		r.OverStock = false
		return
	}
	unit := d.UnitPrice
	pct := d.DiscountPercentage
	total := d.LineTotal
	r.UnitPrice = &unit
	r.DiscountPercentage = &pct
	r.LineTotal = &total
	r.OverStock = d.OverStock
}

// EventKind names a row-set change.
type EventKind string

const (
	EventRowAdded        EventKind = "row_added"
	EventRowRemoved      EventKind = "row_removed"
	EventItemSelected    EventKind = "item_selected"
	EventQuantityChanged EventKind = "quantity_changed"
)

// Event is an explicit change to the row set or to a row's editable fields.
type Event struct {
	Kind     EventKind
	RowID    string
	ItemID   string
	Quantity int
}

// Form owns the ordered row set of an order and its aggregate. The catalog is
// fixed at construction.
type Form struct {
	catalog   Catalog
	rows      []*Row
	index     map[string]*Row
	aggregate Aggregate
}

// NewForm builds a form over cat and attaches rows in order.
func NewForm(cat Catalog, rows ...Row) (*Form, error) {
	f := &Form{
		catalog: cat,
		index:   make(map[string]*Row, len(rows)),
	}
	for _, row := range rows {
		if err := f.AddRow(row); err != nil {
			return nil, err
		}
	}
	f.recomputeAggregate()
	return f, nil
}

// Catalog returns the catalog the form prices against.
func (f *Form) Catalog() Catalog {
	return f.catalog
}

// AddRow attaches a new row. A row that already carries a selection is priced
// immediately.
func (f *Form) AddRow(row Row) error {
	row.ID = strings.TrimSpace(row.ID)
	if row.ID == "" {
		return ErrRowNotFound
	}
	if _, exists := f.index[row.ID]; exists {
		return ErrDuplicateRow
	}
	stored := row
	if strings.TrimSpace(stored.ItemID) != "" {
		stored.apply(RecomputeRow(f.catalog, stored.ItemID, stored.Quantity))
	} else {
		stored.apply(Derived{}, false)
	}
	f.rows = append(f.rows, &stored)
	f.index[stored.ID] = &stored
	f.recomputeAggregate()
	return nil
}

// RemoveRow detaches a row.
func (f *Form) RemoveRow(id string) error {
	if _, ok := f.index[id]; !ok {
		return ErrRowNotFound
	}
	delete(f.index, id)
	for i, row := range f.rows {
		if row.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	f.recomputeAggregate()
	return nil
}

// SelectItem sets the row's item. When the quantity is unset and the item is
// sellable it defaults to 1. An empty item id clears the selection.
func (f *Form) SelectItem(id, itemID string) error {
	row, ok := f.index[id]
	if !ok {
		return ErrRowNotFound
	}
	row.ItemID = strings.TrimSpace(itemID)
	if _, known := f.catalog.Lookup(row.ItemID); known && row.Quantity <= 0 {
		row.Quantity = 1
	}
	row.apply(RecomputeRow(f.catalog, row.ItemID, row.Quantity))
	f.recomputeAggregate()
	return nil
}

// SetQuantity updates the row's quantity.
func (f *Form) SetQuantity(id string, qty int) error {
	row, ok := f.index[id]
	if !ok {
		return ErrRowNotFound
	}
	row.Quantity = qty
	row.apply(RecomputeRow(f.catalog, row.ItemID, row.Quantity))
	f.recomputeAggregate()
	return nil
}

// Apply dispatches a row-set event.
func (f *Form) Apply(ev Event) error {
	switch ev.Kind {
	case EventRowAdded:
		return f.AddRow(Row{ID: ev.RowID, ItemID: ev.ItemID, Quantity: ev.Quantity})
	case EventRowRemoved:
		return f.RemoveRow(ev.RowID)
	case EventItemSelected:
		return f.SelectItem(ev.RowID, ev.ItemID)
	case EventQuantityChanged:
		return f.SetQuantity(ev.RowID, ev.Quantity)
	default:
		return errors.New("lineitem: unknown event kind " + string(ev.Kind))
	}
}

// Row returns a copy of the row with the given id.
func (f *Form) Row(id string) (Row, bool) {
	row, ok := f.index[id]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Rows returns copies of all rows in insertion order.
func (f *Form) Rows() []Row {
	out := make([]Row, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, *row)
	}
	return out
}

// Aggregate returns the current order totals.
func (f *Form) Aggregate() Aggregate {
	return f.aggregate
}

// OverStockRows returns the ids of rows whose quantity exceeds available stock.
func (f *Form) OverStockRows() []string {
	var ids []string
	for _, row := range f.rows {
		if row.OverStock {
			ids = append(ids, row.ID)
		}
	}
	return ids
}

func (f *Form) recomputeAggregate() {
	rows := make([]Row, 0, len(f.rows))
	for _, row := range f.rows {
		rows = append(rows, *row)
	}
	f.aggregate = RecomputeAggregate(f.catalog, rows)
}

package lineitem

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Entry describes the pricing and stock data of a single stock item.
type Entry struct {
	AvailableQuantity  int             `json:"quantity"`
	SellingPrice       decimal.Decimal `json:"selling_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// Catalog is a read-only table of sellable stock items keyed by stock item id.
// The zero value is an empty catalog.
type Catalog struct {
	entries map[string]Entry
}

// NewCatalog copies entries into a new Catalog.
func NewCatalog(entries map[string]Entry) Catalog {
	copied := make(map[string]Entry, len(entries))
	for id, entry := range entries {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		copied[id] = entry
	}
	return Catalog{entries: copied}
}

// ParseCatalog decodes the embedded catalog payload: a JSON object keyed by
// stock item id. Prices may be encoded as strings or numbers.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(raw), nil
}

// Lookup returns the entry for the stock item id.
func (c Catalog) Lookup(id string) (Entry, bool) {
	id = strings.TrimSpace(id)
	if id == "" || c.entries == nil {
		return Entry{}, false
	}
	entry, ok := c.entries[id]
	return entry, ok
}

// Len reports the number of stock items in the catalog.
func (c Catalog) Len() int {
	return len(c.entries)
}

// IDs returns the stock item ids in lexical order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type wireEntry struct {
	Quantity           int    `json:"quantity"`
	SellingPrice       string `json:"selling_price"`
	DiscountPercentage string `json:"discount_percentage"`
}

// MarshalJSON renders the catalog in the same shape ParseCatalog accepts,
// with prices as 2dp strings.
func (c Catalog) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireEntry, len(c.entries))
	for id, entry := range c.entries {
		out[id] = wireEntry{
			Quantity:           entry.AvailableQuantity,
			SellingPrice:       entry.SellingPrice.StringFixed(2),
			DiscountPercentage: entry.DiscountPercentage.StringFixed(2),
		}
	}
	return json.Marshal(out)
}

package lineitem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleCatalog() Catalog {
	return NewCatalog(map[string]Entry{
		"1": {AvailableQuantity: 3, SellingPrice: dec("100"), DiscountPercentage: dec("10")},
		"2": {AvailableQuantity: 50, SellingPrice: dec("20"), DiscountPercentage: dec("50")},
	})
}

func TestFormSelectItemDefaultsQuantity(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "row-0"})
	require.NoError(t, err)

	require.NoError(t, form.SelectItem("row-0", "1"))
	row, ok := form.Row("row-0")
	require.True(t, ok)
	require.Equal(t, 1, row.Quantity)
	require.Equal(t, "90.00", row.UnitPrice.StringFixed(2))
	require.Equal(t, "10.00", row.DiscountPercentage.StringFixed(2))
	require.Equal(t, "90.00", row.LineTotal.StringFixed(2))
	require.Equal(t, "100.00", form.Aggregate().GrossTotal.StringFixed(2))
	require.Equal(t, "90.00", form.Aggregate().FinalAmount.StringFixed(2))
}

func TestFormSelectItemKeepsExistingQuantity(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "row-0", Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, form.SelectItem("row-0", "1"))
	row, _ := form.Row("row-0")
	require.Equal(t, 3, row.Quantity)
	require.Equal(t, "270.00", row.LineTotal.StringFixed(2))
}

func TestFormClearingSelectionBlanksRow(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "row-0", ItemID: "1", Quantity: 2})
	require.NoError(t, err)
	row, _ := form.Row("row-0")
	require.False(t, row.Blank())

	require.NoError(t, form.SelectItem("row-0", ""))
	row, _ = form.Row("row-0")
	require.True(t, row.Blank())
	require.Nil(t, row.DiscountPercentage)
	require.Nil(t, row.LineTotal)
	require.True(t, form.Aggregate().GrossTotal.IsZero())
}

func TestFormUnknownItemBlanksRow(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "row-0", ItemID: "1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, form.SelectItem("row-0", "404"))
	row, _ := form.Row("row-0")
	require.True(t, row.Blank())
	require.True(t, form.Aggregate().FinalAmount.IsZero())
}

func TestFormAddRowThenSelect(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "row-0", ItemID: "1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, form.Apply(Event{Kind: EventRowAdded, RowID: "row-1"}))
	row, _ := form.Row("row-1")
	require.True(t, row.Blank())

	require.NoError(t, form.Apply(Event{Kind: EventItemSelected, RowID: "row-1", ItemID: "2"}))
	row, _ = form.Row("row-1")
	require.Equal(t, "10.00", row.UnitPrice.StringFixed(2))

	agg := form.Aggregate()
	require.Equal(t, "120.00", agg.GrossTotal.StringFixed(2))
	require.Equal(t, "20.00", agg.DiscountAmount.StringFixed(2))
	require.Equal(t, "100.00", agg.FinalAmount.StringFixed(2))
}

func TestFormClonedRowIsPricedOnAdd(t *testing.T) {
	form, err := NewForm(sampleCatalog())
	require.NoError(t, err)

	require.NoError(t, form.AddRow(Row{ID: "clone", ItemID: "2", Quantity: 4}))
	row, _ := form.Row("clone")
	require.Equal(t, "40.00", row.LineTotal.StringFixed(2))
	require.Equal(t, "40.00", form.Aggregate().FinalAmount.StringFixed(2))
}

func TestFormRemoveRowUpdatesAggregate(t *testing.T) {
	form, err := NewForm(sampleCatalog(),
		Row{ID: "a", ItemID: "1", Quantity: 1},
		Row{ID: "b", ItemID: "2", Quantity: 1},
	)
	require.NoError(t, err)

	require.NoError(t, form.Apply(Event{Kind: EventRowRemoved, RowID: "a"}))
	require.Len(t, form.Rows(), 1)
	require.Equal(t, "20.00", form.Aggregate().GrossTotal.StringFixed(2))
}

func TestFormOverStockIsSoftWarning(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "a", ItemID: "1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, form.Apply(Event{Kind: EventQuantityChanged, RowID: "a", Quantity: 5}))
	row, _ := form.Row("a")
	require.True(t, row.OverStock)
	require.Equal(t, "450.00", row.LineTotal.StringFixed(2))
	require.Equal(t, []string{"a"}, form.OverStockRows())

	require.NoError(t, form.SetQuantity("a", 3))
	require.Empty(t, form.OverStockRows())
}

func TestFormMissingRow(t *testing.T) {
	form, err := NewForm(sampleCatalog())
	require.NoError(t, err)

	require.True(t, errors.Is(form.SelectItem("ghost", "1"), ErrRowNotFound))
	require.True(t, errors.Is(form.SetQuantity("ghost", 1), ErrRowNotFound))
	require.True(t, errors.Is(form.RemoveRow("ghost"), ErrRowNotFound))

	require.NoError(t, form.AddRow(Row{ID: "x"}))
	require.ErrorIs(t, form.AddRow(Row{ID: "x"}), ErrDuplicateRow)
}

func TestFormRecomputeIsStable(t *testing.T) {
	form, err := NewForm(sampleCatalog(), Row{ID: "a", ItemID: "2", Quantity: 3})
	require.NoError(t, err)

	before, _ := form.Row("a")
	require.NoError(t, form.SetQuantity("a", 3))
	require.NoError(t, form.SetQuantity("a", 3))
	after, _ := form.Row("a")
	require.True(t, before.LineTotal.Equal(*after.LineTotal))
	require.True(t, before.UnitPrice.Equal(*after.UnitPrice))
}

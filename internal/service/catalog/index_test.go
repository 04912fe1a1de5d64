package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

func TestSystemStockSumsAcrossCase(t *testing.T) {
	idx := NewIndex([]models.MasterItem{
		{SKU: "abc", SystemStock: 5, BatchNumber: "B1"},
		{SKU: "ABC", SystemStock: 3, BatchNumber: "B2"},
		{SKU: "other", SystemStock: 100},
	})

	assert.Equal(t, 8, idx.SystemStockForSKU("abc"))
	assert.Equal(t, 8, idx.SystemStockForSKU("Abc"))
	assert.Equal(t, 100, idx.SystemStockForSKU("OTHER"))
	assert.Equal(t, 0, idx.SystemStockForSKU("ab"))
}

func TestRowsForSKUKeepsInsertionOrder(t *testing.T) {
	idx := NewIndex([]models.MasterItem{
		{SKU: "X1", BatchNumber: "first", Name: "Bolt"},
		{SKU: "y", BatchNumber: "noise"},
		{SKU: "x1", BatchNumber: "second", Name: "Bolt (old)"},
	})

	rows := idx.RowsForSKU("X1")
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0].BatchNumber)
	assert.Equal(t, "second", rows[1].BatchNumber)

	info, ok := idx.DisplayInfoForSKU("x1")
	require.True(t, ok)
	assert.Equal(t, "Bolt", info.Name)
	assert.Equal(t, "first", info.BatchNumber)
	assert.Equal(t, models.DefaultUnit, info.Unit)
}

func TestNoPartialMatching(t *testing.T) {
	idx := NewIndex([]models.MasterItem{{SKU: "SKU-100", SystemStock: 4}})

	assert.Empty(t, idx.RowsForSKU("SKU-10"))
	assert.Equal(t, 0, idx.SystemStockForSKU("SKU-1000"))
}

func TestEmptyCatalog(t *testing.T) {
	for _, idx := range []*Index{NewIndex(nil), nil} {
		assert.Equal(t, 0, idx.SystemStockForSKU("anything"))
		assert.Empty(t, idx.RowsForSKU("anything"))
		_, ok := idx.DisplayInfoForSKU("anything")
		assert.False(t, ok)
		assert.Equal(t, models.DefaultUnit, idx.Unit("anything"))
		assert.Equal(t, 0, idx.Len())
	}
}

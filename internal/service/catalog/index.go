// Package catalog indexes master-item rows by SKU.
package catalog

import (
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// Index is a read-only lookup from SKU to every catalog row carrying it.
// Matching is case-insensitive exact equality.
type Index struct {
	rows map[string][]models.MasterItem
	size int
}

// NewIndex builds an index over items. Row order is preserved per SKU so the
// first row is deterministic.
func NewIndex(items []models.MasterItem) *Index {
	idx := &Index{rows: make(map[string][]models.MasterItem, len(items)), size: len(items)}
	for _, item := range items {
		key := normalize(item.SKU)
		idx.rows[key] = append(idx.rows[key], item)
	}
	return idx
}

// RowsForSKU returns the rows matching sku in insertion order.
func (i *Index) RowsForSKU(sku string) []models.MasterItem {
	if i == nil {
		return nil
	}
	return i.rows[normalize(sku)]
}

// SystemStockForSKU sums SystemStock over every matching row. Unknown SKUs
// have zero stock.
func (i *Index) SystemStockForSKU(sku string) int {
	total := 0
	for _, row := range i.RowsForSKU(sku) {
		total += row.SystemStock
	}
	return total
}

// DisplayInfoForSKU returns entry defaults drawn from the first matching row.
func (i *Index) DisplayInfoForSKU(sku string) (models.DisplayInfo, bool) {
	rows := i.RowsForSKU(sku)
	if len(rows) == 0 {
		return models.DisplayInfo{}, false
	}

	first := rows[0]
	return models.DisplayInfo{
		Name:        first.Name,
		BatchNumber: first.BatchNumber,
		ExpiryDate:  first.ExpiryDate,
		Unit:        unitOrDefault(first.Unit),
	}, true
}

// Unit returns the catalog unit for sku, or models.DefaultUnit.
func (i *Index) Unit(sku string) string {
	rows := i.RowsForSKU(sku)
	if len(rows) == 0 {
		return models.DefaultUnit
	}
	return unitOrDefault(rows[0].Unit)
}

// Len is the number of rows indexed.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return i.size
}

// Key is the case-insensitive form SKUs are matched on.
func Key(sku string) string {
	return normalize(sku)
}

func normalize(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

func unitOrDefault(unit string) string {
	if strings.TrimSpace(unit) == "" {
		return models.DefaultUnit
	}
	return unit
}

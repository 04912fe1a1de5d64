// Package importer turns spreadsheet rows into catalog and location records.
// The first row is the header; columns are matched by normalized name so
// exports from different tools import without remapping.
package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// Report summarizes an import run.
type Report struct {
	Imported int `json:"imported"`
	// Skipped counts rows with no SKU (or no location name).
	Skipped int `json:"skipped"`
	// Defaulted counts rows whose quantity was not numeric and became 0.
	Defaulted int `json:"defaulted"`
}

const (
	fieldSKU      = "sku"
	fieldName     = "name"
	fieldUnit     = "unit"
	fieldCategory = "category"
	fieldBatch    = "batch"
	fieldExpiry   = "expiry"
	fieldStock    = "stock"

	fieldLocation = "location"
	fieldZone     = "zone"
	fieldID       = "id"
)

var catalogAliases = map[string]string{
	"sku": fieldSKU, "itemcode": fieldSKU, "code": fieldSKU, "kode": fieldSKU,
	"kodebarang": fieldSKU, "itemno": fieldSKU, "article": fieldSKU, "barcode": fieldSKU,
	"name": fieldName, "itemname": fieldName, "description": fieldName,
	"namabarang": fieldName, "productname": fieldName,
	"unit": fieldUnit, "uom": fieldUnit, "satuan": fieldUnit,
	"category": fieldCategory, "kategori": fieldCategory, "group": fieldCategory,
	"batch": fieldBatch, "batchnumber": fieldBatch, "batchno": fieldBatch, "lot": fieldBatch, "lotnumber": fieldBatch,
	"expiry": fieldExpiry, "expirydate": fieldExpiry, "exp": fieldExpiry, "expdate": fieldExpiry, "ed": fieldExpiry,
	"systemstock": fieldStock, "stock": fieldStock, "qty": fieldStock, "quantity": fieldStock,
	"systemqty": fieldStock, "onhand": fieldStock, "stok": fieldStock,
}

var locationAliases = map[string]string{
	"location": fieldLocation, "name": fieldLocation, "locationname": fieldLocation,
	"bin": fieldLocation, "rack": fieldLocation, "lokasi": fieldLocation,
	"zone": fieldZone, "area": fieldZone, "zona": fieldZone,
	"id": fieldID, "locationid": fieldID, "code": fieldID,
}

// NormalizeHeader lowercases a header and drops everything but letters and
// digits, so "Item Code", "item_code" and "ITEM-CODE" compare equal.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func columnIndex(header []interface{}, aliases map[string]string) map[string]int {
	idx := make(map[string]int)
	for i, cell := range header {
		field, ok := aliases[NormalizeHeader(cellString(cell))]
		if !ok {
			continue
		}
		if _, seen := idx[field]; !seen {
			idx[field] = i
		}
	}
	return idx
}

// ParseCatalog converts rows into master items. order is the digit order of
// packed expiry dates.
func ParseCatalog(rows [][]interface{}, order models.DateOrder) ([]models.MasterItem, Report, error) {
	var report Report
	if len(rows) == 0 {
		return nil, report, nil
	}

	cols := columnIndex(rows[0], catalogAliases)
	if _, ok := cols[fieldSKU]; !ok {
		return nil, report, fmt.Errorf("catalog header has no SKU column")
	}

	items := make([]models.MasterItem, 0, len(rows)-1)
	for _, row := range rows[1:] {
		sku := strings.TrimSpace(cellString(cellAt(row, cols, fieldSKU)))
		if sku == "" {
			report.Skipped++
			continue
		}

		qty, ok := CoerceQuantity(cellAt(row, cols, fieldStock))
		if !ok {
			report.Defaulted++
		}

		unit := strings.TrimSpace(cellString(cellAt(row, cols, fieldUnit)))
		if unit == "" {
			unit = models.DefaultUnit
		}
		batch := strings.TrimSpace(cellString(cellAt(row, cols, fieldBatch)))
		if batch == "" {
			batch = models.ExpiryNone
		}

		items = append(items, models.MasterItem{
			SKU:         sku,
			Name:        strings.TrimSpace(cellString(cellAt(row, cols, fieldName))),
			Unit:        unit,
			Category:    strings.TrimSpace(cellString(cellAt(row, cols, fieldCategory))),
			BatchNumber: batch,
			ExpiryDate:  CoerceDate(cellAt(row, cols, fieldExpiry), order),
			SystemStock: qty,
		})
		report.Imported++
	}
	return items, report, nil
}

// ParseLocations converts rows into master locations. A sheet with a single
// unlabeled column is read as a plain list of names.
func ParseLocations(rows [][]interface{}) ([]models.MasterLocation, Report, error) {
	var report Report
	if len(rows) == 0 {
		return nil, report, nil
	}

	cols := columnIndex(rows[0], locationAliases)
	body := rows[1:]
	if _, ok := cols[fieldLocation]; !ok {
		if len(cols) > 0 {
			return nil, report, fmt.Errorf("location header has no name column")
		}
		cols = map[string]int{fieldLocation: 0}
		body = rows
	}

	out := make([]models.MasterLocation, 0, len(body))
	for _, row := range body {
		name := strings.Join(strings.Fields(cellString(cellAt(row, cols, fieldLocation))), " ")
		if name == "" {
			report.Skipped++
			continue
		}
		id := strings.TrimSpace(cellString(cellAt(row, cols, fieldID)))
		if id == "" {
			id = name
		}
		out = append(out, models.MasterLocation{
			ID:   id,
			Name: name,
			Zone: strings.TrimSpace(cellString(cellAt(row, cols, fieldZone))),
		})
		report.Imported++
	}
	return out, report, nil
}

// CoerceQuantity reads a numeric cell. Blank and non-numeric values yield
// 0 and false. Fractions are rounded; negatives are kept as given.
func CoerceQuantity(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" {
			return 0, false
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(math.Round(f)), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// sheetsEpoch is day zero of spreadsheet serial dates.
var sheetsEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// CoerceDate normalizes an expiry cell to YYYY-MM-DD where it can be read as
// a date. Blank cells become "-", the N/A sentinel is kept, and anything
// unrecognized passes through trimmed.
func CoerceDate(v interface{}, order models.DateOrder) string {
	switch d := v.(type) {
	case nil:
		return models.ExpiryNone
	case time.Time:
		return d.Format("2006-01-02")
	case float64:
		return serialDate(d)
	case int:
		return serialDate(float64(d))
	case int64:
		return serialDate(float64(d))
	}

	s := strings.TrimSpace(cellString(v))
	switch strings.ToUpper(s) {
	case "", models.ExpiryNone:
		return models.ExpiryNone
	case models.ExpiryNA, "NA":
		return models.ExpiryNA
	}

	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(s) == 8 {
		return models.NormalizePackedDate(s, order)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f < 200000 {
		return serialDate(f)
	}
	return s
}

func serialDate(days float64) string {
	if days <= 0 {
		return models.ExpiryNone
	}
	return sheetsEpoch.AddDate(0, 0, int(days)).Format("2006-01-02")
}

func cellAt(row []interface{}, cols map[string]int, field string) interface{} {
	i, ok := cols[field]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

func cellString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

package models

import "strings"

// DefaultUnit is used whenever the catalog carries no unit for a SKU.
const DefaultUnit = "Pcs"

// Sentinel values accepted in the expiry column when a row has no expiry date.
const (
	ExpiryNone = "-"
	ExpiryNA   = "N/A"
)

// MasterItem is one catalog row. A SKU may appear on several rows (one per
// batch or warehouse); SystemStock is this row's share of the SKU's total.
type MasterItem struct {
	SKU         string `bson:"sku" json:"sku"`
	Name        string `bson:"name" json:"name"`
	Unit        string `bson:"unit" json:"unit"`
	Category    string `bson:"category" json:"category"`
	BatchNumber string `bson:"batch_number" json:"batch_number"`
	ExpiryDate  string `bson:"expiry_date" json:"expiry_date"`
	SystemStock int    `bson:"system_stock" json:"system_stock"`
}

// Key returns the bulk-upsert identity of the row: SKU + batch + expiry.
// Re-importing a SKU under another batch or expiry yields a new key.
func (m MasterItem) Key() string {
	parts := []string{m.SKU, m.BatchNumber, m.ExpiryDate}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = ExpiryNone
		}
		parts[i] = strings.NewReplacer("/", "-", ".", "-", "$", "-").Replace(p)
	}
	return strings.Join(parts, "_")
}

// MasterLocation is a declared physical slot. Name is the natural key used to
// match free-text or scanned location strings.
type MasterLocation struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
	Zone string `bson:"zone" json:"zone"`
}

// DisplayInfo carries the defaults pre-populated into a count entry.
type DisplayInfo struct {
	Name        string `json:"name"`
	BatchNumber string `json:"batch_number"`
	ExpiryDate  string `json:"expiry_date"`
	Unit        string `json:"unit"`
}

// ItemDefaults is the resolved view of a scanned or typed code.
type ItemDefaults struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	BatchNumber string `json:"batch_number"`
	ExpiryDate  string `json:"expiry_date"`
	Unit        string `json:"unit"`
	SystemStock int    `json:"system_stock"`
	Known       bool   `json:"known"`
}

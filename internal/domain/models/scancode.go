package models

import (
	"fmt"
	"strings"
)

// DateOrder is the digit order of a packed 8-digit expiry date.
type DateOrder string

const (
	// DateOrderYMD reads "20250131" as 2025-01-31.
	DateOrderYMD DateOrder = "YMD"
	// DateOrderDMY reads "31012025" as 2025-01-31.
	DateOrderDMY DateOrder = "DMY"
)

// ParseDateOrder validates a configured date order. Blank means YMD.
func ParseDateOrder(raw string) (DateOrder, error) {
	switch DateOrder(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", DateOrderYMD:
		return DateOrderYMD, nil
	case DateOrderDMY:
		return DateOrderDMY, nil
	default:
		return DateOrderYMD, fmt.Errorf("unknown scan date order %q", raw)
	}
}

// ScanCode is a decoded scanned or typed code. Batch and Expiry are nil when
// the code carries no override for them.
type ScanCode struct {
	SKU    string  `json:"sku"`
	Batch  *string `json:"batch,omitempty"`
	Expiry *string `json:"expiry,omitempty"`
}

// HasOverrides reports whether the code was delimited.
func (c ScanCode) HasOverrides() bool {
	return c.Batch != nil || c.Expiry != nil
}

// DecodeScanCode splits "SKU,BATCH,EXPIRY" codes. Input without a comma is
// the SKU alone.
func DecodeScanCode(raw string, order DateOrder) ScanCode {
	if !strings.Contains(raw, ",") {
		return ScanCode{SKU: strings.TrimSpace(raw)}
	}

	segments := strings.Split(raw, ",")
	code := ScanCode{SKU: strings.TrimSpace(segments[0])}

	if len(segments) > 1 {
		batch := strings.TrimSpace(segments[1])
		code.Batch = &batch
	}
	if len(segments) > 2 {
		expiry := NormalizePackedDate(strings.TrimSpace(segments[2]), order)
		code.Expiry = &expiry
	}

	return code
}

// NormalizePackedDate rewrites an 8-digit packed date as YYYY-MM-DD. Any
// other value, including 8 characters that are not all digits, is returned
// unchanged.
func NormalizePackedDate(value string, order DateOrder) string {
	if len(value) != 8 || strings.Contains(value, "-") || !allDigits(value) {
		return value
	}

	switch order {
	case DateOrderDMY:
		return value[4:8] + "-" + value[2:4] + "-" + value[0:2]
	default:
		return value[0:4] + "-" + value[4:6] + "-" + value[6:8]
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CatalogLookup resolves display defaults for a SKU.
type CatalogLookup interface {
	DisplayInfoForSKU(sku string) (DisplayInfo, bool)
}

// EntryDraft is the in-progress state of a count form. Explicit scan
// overrides win over catalog auto-fill until the SKU changes again.
type EntryDraft struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	BatchNumber string `json:"batch_number"`
	ExpiryDate  string `json:"expiry_date"`
	Overridden  bool   `json:"overridden"`
}

// ScanRequest carries a scanned code and the form it is scanned into.
type ScanRequest struct {
	Code  string     `json:"code" binding:"required"`
	Draft EntryDraft `json:"draft"`
}

// ApplyScan feeds a raw code into the draft.
func (d *EntryDraft) ApplyScan(raw string, catalog CatalogLookup, order DateOrder) {
	code := DecodeScanCode(raw, order)
	skuChanged := !strings.EqualFold(code.SKU, d.SKU)

	if skuChanged || (!code.HasOverrides() && !d.Overridden) {
		d.SKU = code.SKU
		d.Name, d.Unit, d.BatchNumber, d.ExpiryDate = "", DefaultUnit, "", ""
		d.Overridden = false
		if info, ok := catalog.DisplayInfoForSKU(code.SKU); ok {
			d.Name = info.Name
			d.Unit = info.Unit
			d.BatchNumber = info.BatchNumber
			d.ExpiryDate = info.ExpiryDate
		}
	}

	if code.Batch != nil {
		d.BatchNumber = *code.Batch
		d.Overridden = true
	}
	if code.Expiry != nil {
		d.ExpiryDate = *code.Expiry
		d.Overridden = true
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScanCodeSingleField(t *testing.T) {
	code := DecodeScanCode("SKU1", DateOrderYMD)

	assert.Equal(t, "SKU1", code.SKU)
	assert.Nil(t, code.Batch)
	assert.Nil(t, code.Expiry)
	assert.False(t, code.HasOverrides())
}

func TestDecodeScanCodeBatchOnly(t *testing.T) {
	code := DecodeScanCode("SKU1,BATCH9", DateOrderYMD)

	assert.Equal(t, "SKU1", code.SKU)
	require.NotNil(t, code.Batch)
	assert.Equal(t, "BATCH9", *code.Batch)
	assert.Nil(t, code.Expiry)
}

func TestDecodeScanCodeTrimsSegments(t *testing.T) {
	code := DecodeScanCode("  SKU1 , B-7 ,  2025-03-01 ", DateOrderYMD)

	assert.Equal(t, "SKU1", code.SKU)
	require.NotNil(t, code.Batch)
	require.NotNil(t, code.Expiry)
	assert.Equal(t, "B-7", *code.Batch)
	assert.Equal(t, "2025-03-01", *code.Expiry)
}

// Fixtures taken from labels printed by the two scanner profiles in use.
func TestDecodeScanCodePackedDate(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		order DateOrder
		want  string
	}{
		{name: "ymd label", raw: "MILK-1L,L24,20250131", order: DateOrderYMD, want: "2025-01-31"},
		{name: "dmy label", raw: "MILK-1L,L24,31012025", order: DateOrderDMY, want: "2025-01-31"},
		{name: "already iso", raw: "MILK-1L,L24,2025-01-31", order: DateOrderDMY, want: "2025-01-31"},
		{name: "short value", raw: "MILK-1L,L24,250131", order: DateOrderYMD, want: "250131"},
		{name: "not digits", raw: "MILK-1L,L24,JAN2025X", order: DateOrderYMD, want: "JAN2025X"},
		{name: "sentinel", raw: "MILK-1L,L24,N/A", order: DateOrderYMD, want: "N/A"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := DecodeScanCode(tc.raw, tc.order)
			require.NotNil(t, code.Expiry)
			assert.Equal(t, tc.want, *code.Expiry)
		})
	}
}

func TestParseDateOrder(t *testing.T) {
	order, err := ParseDateOrder("")
	require.NoError(t, err)
	assert.Equal(t, DateOrderYMD, order)

	order, err = ParseDateOrder("dmy")
	require.NoError(t, err)
	assert.Equal(t, DateOrderDMY, order)

	_, err = ParseDateOrder("MDY")
	assert.Error(t, err)
}

type fakeCatalog map[string]DisplayInfo

func (f fakeCatalog) DisplayInfoForSKU(sku string) (DisplayInfo, bool) {
	info, ok := f[sku]
	return info, ok
}

func TestEntryDraftOverridesWinUntilSKUChanges(t *testing.T) {
	catalog := fakeCatalog{
		"SKU1": {Name: "Widget", BatchNumber: "CAT-B", ExpiryDate: "2026-01-01", Unit: "Box"},
		"SKU2": {Name: "Gadget", BatchNumber: "CAT-C", ExpiryDate: "-", Unit: "Pcs"},
	}
	var draft EntryDraft

	draft.ApplyScan("SKU1", catalog, DateOrderYMD)
	assert.Equal(t, "CAT-B", draft.BatchNumber)
	assert.False(t, draft.Overridden)

	draft.ApplyScan("SKU1,SCAN-B,20270202", catalog, DateOrderYMD)
	assert.Equal(t, "SCAN-B", draft.BatchNumber)
	assert.Equal(t, "2027-02-02", draft.ExpiryDate)
	assert.Equal(t, "Widget", draft.Name)
	assert.True(t, draft.Overridden)

	// Re-entering the same SKU keeps the explicit scan.
	draft.ApplyScan("SKU1", catalog, DateOrderYMD)
	assert.Equal(t, "SCAN-B", draft.BatchNumber)

	// A new SKU without delimiters reverts to catalog auto-fill.
	draft.ApplyScan("SKU2", catalog, DateOrderYMD)
	assert.Equal(t, "CAT-C", draft.BatchNumber)
	assert.Equal(t, "-", draft.ExpiryDate)
	assert.False(t, draft.Overridden)
}

func TestEntryDraftUnknownSKU(t *testing.T) {
	var draft EntryDraft
	draft.ApplyScan("NEW-ITEM", fakeCatalog{}, DateOrderYMD)

	assert.Equal(t, "NEW-ITEM", draft.SKU)
	assert.Empty(t, draft.Name)
	assert.Equal(t, DefaultUnit, draft.Unit)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("/COUNT SKU1,B9 Rack-A1 12")
	assert.Equal(t, CommandCount, cmd.Type)
	assert.Equal(t, []string{"SKU1,B9", "Rack-A1", "12"}, cmd.Args)

	assert.Equal(t, CommandStatus, ParseCommand("status").Type)
	assert.Equal(t, CommandUnknown, ParseCommand("   ").Type)
	assert.Equal(t, CommandUnknown, ParseCommand("/eggs 12").Type)
}

func TestParseLocationStatus(t *testing.T) {
	status, err := ParseLocationStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)

	status, err = ParseLocationStatus(" Damaged ")
	require.NoError(t, err)
	assert.Equal(t, StatusDamaged, status)

	_, err = ParseLocationStatus("lost")
	assert.Error(t, err)
}

func TestLocationStatusBuckets(t *testing.T) {
	assert.True(t, StatusPending.NeedsAttention())
	assert.True(t, StatusDamaged.NeedsAttention())
	assert.True(t, StatusAudited.Completed())
	assert.True(t, StatusEmpty.Completed())
	assert.False(t, StatusDamaged.Completed())
}

func TestMasterItemKeyDistinguishesBatchAndExpiry(t *testing.T) {
	a := MasterItem{SKU: "SKU1", BatchNumber: "B1", ExpiryDate: "2025-01-01"}
	b := MasterItem{SKU: "SKU1", BatchNumber: "B2", ExpiryDate: "2025-01-01"}
	c := MasterItem{SKU: "SKU1", BatchNumber: "B1", ExpiryDate: "N/A"}

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "SKU1_B1_2025-01-01", a.Key())
	assert.Equal(t, "SKU1_-_-", MasterItem{SKU: "SKU1"}.Key())
	assert.NotContains(t, c.Key(), "/")
}

func TestClassifyVariance(t *testing.T) {
	assert.Equal(t, ClassShortage, ClassifyVariance(-1))
	assert.Equal(t, ClassSurplus, ClassifyVariance(3))
	assert.Equal(t, ClassMatched, ClassifyVariance(0))
}

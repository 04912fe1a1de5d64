package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

func TestExistingTotalExactMatch(t *testing.T) {
	records := []models.AuditRecord{
		{SKU: "SKU1", PhysicalQty: 4, Location: "A1"},
		{SKU: "SKU1", PhysicalQty: 6, Location: "B2"},
		{SKU: "sku1", PhysicalQty: 50},
		{SKU: "SKU2", PhysicalQty: 9},
	}

	assert.Equal(t, 10, ExistingTotal(records, "SKU1"))
	assert.Equal(t, 50, ExistingTotal(records, "sku1"))
	assert.Equal(t, 0, ExistingTotal(records, "SKU3"))
	assert.Equal(t, 0, ExistingTotal(nil, "SKU1"))
	assert.Equal(t, 13, GlobalTotal(records, "SKU1", 3))
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name        string
		global      int
		system      int
		variance    int
		percent     int
		significant bool
	}{
		{name: "surplus over threshold", global: 120, system: 100, variance: 20, percent: 20, significant: true},
		{name: "small surplus", global: 105, system: 100, variance: 5, percent: 5},
		{name: "exactly ten percent", global: 90, system: 100, variance: -10, percent: 10},
		{name: "shortage", global: 50, system: 100, variance: -50, percent: 50, significant: true},
		{name: "zero stock with count", global: 100, system: 0, variance: 100},
		{name: "all zero", global: 0, system: 0},
		{name: "rounding", global: 3, system: 7, variance: -4, percent: 57, significant: true},
		{name: "rounds half up", global: 1, system: 8, variance: -7, percent: 88, significant: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := Evaluate(tc.global, tc.system)
			assert.Equal(t, tc.variance, eval.Variance)
			assert.Equal(t, tc.percent, eval.PercentDiff)
			assert.Equal(t, tc.significant, eval.Significant)
		})
	}
}

func TestEvaluateVarianceIsDifference(t *testing.T) {
	for global := -3; global <= 3; global++ {
		for system := 0; system <= 3; system++ {
			assert.Equal(t, global-system, Evaluate(global, system).Variance)
		}
	}
}

func TestCheckEvidence(t *testing.T) {
	significant := Evaluate(150, 100)
	minor := Evaluate(101, 100)

	assert.NoError(t, CheckEvidence(EvidencePhoto, minor, nil, ""))
	assert.ErrorIs(t, CheckEvidence(EvidencePhoto, significant, nil, "counted twice"), ErrPhotoRequired)
	assert.ErrorIs(t, CheckEvidence(EvidencePhoto, significant, []string{" "}, ""), ErrPhotoRequired)
	assert.NoError(t, CheckEvidence(EvidencePhoto, significant, []string{"data:image/jpeg;base64,AAA"}, ""))

	assert.ErrorIs(t, CheckEvidence(EvidenceNotes, significant, []string{"photo"}, "  "), ErrNotesRequired)
	assert.NoError(t, CheckEvidence(EvidenceNotes, significant, nil, "pallet split across racks"))
}

func TestParseEvidencePolicy(t *testing.T) {
	policy, err := ParseEvidencePolicy("")
	require.NoError(t, err)
	assert.Equal(t, EvidencePhoto, policy)

	policy, err = ParseEvidencePolicy("NOTES")
	require.NoError(t, err)
	assert.Equal(t, EvidenceNotes, policy)

	_, err = ParseEvidencePolicy("video")
	assert.Error(t, err)
}

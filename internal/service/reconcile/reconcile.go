// Package reconcile accumulates physical counts per SKU and evaluates them
// against system stock.
package reconcile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// SignificantPercent is the fixed deviation above which a discrepancy is
// significant. Exactly this value is not significant.
const SignificantPercent = 10

// ExistingTotal sums PhysicalQty over records whose SKU equals sku exactly.
// Matching is case-sensitive, unlike the catalog lookup.
func ExistingTotal(records []models.AuditRecord, sku string) int {
	total := 0
	for _, r := range records {
		if r.SKU == sku {
			total += r.PhysicalQty
		}
	}
	return total
}

// GlobalTotal is what has been counted elsewhere plus the entry in progress.
func GlobalTotal(records []models.AuditRecord, sku string, currentQty int) int {
	return ExistingTotal(records, sku) + currentQty
}

// Evaluation is the variance verdict for one SKU.
type Evaluation struct {
	Variance    int  `json:"variance"`
	PercentDiff int  `json:"percent_diff"`
	Significant bool `json:"significant"`
}

// Evaluate computes variance and significance. With zero system stock the
// percent deviation is 0 and nothing is significant.
func Evaluate(globalTotal, systemStock int) Evaluation {
	variance := globalTotal - systemStock

	percent := 0
	if systemStock > 0 {
		abs := math.Abs(float64(variance))
		percent = int(math.Round(abs / float64(systemStock) * 100))
	}

	return Evaluation{
		Variance:    variance,
		PercentDiff: percent,
		Significant: systemStock > 0 && percent > SignificantPercent,
	}
}

// EvidencePolicy selects what a significant discrepancy requires.
type EvidencePolicy string

const (
	// EvidencePhoto requires at least one evidence photo.
	EvidencePhoto EvidencePolicy = "photo"
	// EvidenceNotes requires a written justification.
	EvidenceNotes EvidencePolicy = "notes"
)

// ParseEvidencePolicy validates a configured policy. Blank means photo.
func ParseEvidencePolicy(raw string) (EvidencePolicy, error) {
	switch EvidencePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", EvidencePhoto:
		return EvidencePhoto, nil
	case EvidenceNotes:
		return EvidenceNotes, nil
	default:
		return EvidencePhoto, fmt.Errorf("unknown evidence policy %q", raw)
	}
}

var (
	// ErrPhotoRequired is returned when a significant discrepancy has no photo.
	ErrPhotoRequired = errors.New("evidence photo required for significant discrepancy")
	// ErrNotesRequired is returned when a significant discrepancy has no notes.
	ErrNotesRequired = errors.New("notes required for significant discrepancy")
)

// CheckEvidence enforces the policy for an evaluated entry.
func CheckEvidence(policy EvidencePolicy, eval Evaluation, photos []string, notes string) error {
	if !eval.Significant {
		return nil
	}

	switch policy {
	case EvidenceNotes:
		if strings.TrimSpace(notes) == "" {
			return ErrNotesRequired
		}
	default:
		for _, p := range photos {
			if strings.TrimSpace(p) != "" {
				return nil
			}
		}
		return ErrPhotoRequired
	}
	return nil
}

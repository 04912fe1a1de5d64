// Package reporting aggregates audit entries into the dashboard rollup.
package reporting

import (
	"math"
	"sort"
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/catalog"
	"github.com/mamadbah2/stockcount/internal/service/locations"
)

// Input is the latest snapshot of every collection the rollup reads. Nil
// collections are treated as empty.
type Input struct {
	Items     []models.MasterItem
	Records   []models.AuditRecord
	States    []models.LocationState
	Locations []models.MasterLocation
}

// MergeRecords reconciles a locally cached record set with a remote one.
// Records are keyed by ID and the remote copy wins; local-only records are
// kept so nothing created offline is dropped. Records without an ID cannot
// be matched and are all kept.
func MergeRecords(local, remote []models.AuditRecord) []models.AuditRecord {
	merged := make([]models.AuditRecord, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(remote))

	for _, r := range remote {
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		merged = append(merged, r)
	}

	for _, r := range local {
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		merged = append(merged, r)
	}

	return merged
}

// Rollup groups records by SKU and computes portfolio statistics. It is pure:
// the same input always yields the same dashboard.
func Rollup(in Input) models.Dashboard {
	idx := catalog.NewIndex(in.Items)

	// SKUs group the way the catalog matches them; the first spelling seen
	// is the one displayed.
	bySKU := make(map[string][]models.AuditRecord)
	display := make(map[string]string)
	for _, r := range in.Records {
		if strings.TrimSpace(r.SKU) == "" {
			continue
		}
		key := catalog.Key(r.SKU)
		if _, ok := display[key]; !ok {
			display[key] = strings.TrimSpace(r.SKU)
		}
		bySKU[key] = append(bySKU[key], r)
	}

	keys := make([]string, 0, len(bySKU))
	for key := range bySKU {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dash := models.Dashboard{Groups: make([]models.SKUGroup, 0, len(keys))}
	matched := 0

	for _, key := range keys {
		group := buildGroup(display[key], bySKU[key], idx)
		dash.Groups = append(dash.Groups, group)

		dash.Stats.TotalAudited += group.TotalPhysical
		dash.Stats.RecordCount += len(group.Records)
		switch group.Classification {
		case models.ClassMatched:
			matched++
		case models.ClassShortage:
			dash.Stats.Critical++
		}
	}

	dash.Stats.SKUCount = len(dash.Groups)
	if len(dash.Groups) > 0 {
		dash.Stats.Accuracy = int(math.Round(float64(matched) / float64(len(dash.Groups)) * 100))
	}
	dash.Stats.Locations = locations.NewTracker(in.States, in.Locations).Counts()

	return dash
}

func buildGroup(sku string, records []models.AuditRecord, idx *catalog.Index) models.SKUGroup {
	sorted := make([]models.AuditRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	group := models.SKUGroup{
		SKU:         sku,
		Unit:        idx.Unit(sku),
		Records:     sorted,
		TotalSystem: idx.SystemStockForSKU(sku),
	}

	locs := make(map[string]struct{})
	for _, r := range sorted {
		group.TotalPhysical += r.PhysicalQty
		if r.ItemName != "" {
			group.ItemName = r.ItemName
		}
		if key := locations.Key(r.Location); key != "" {
			locs[key] = struct{}{}
		}
	}
	if group.ItemName == "" {
		if info, ok := idx.DisplayInfoForSKU(sku); ok {
			group.ItemName = info.Name
		}
	}

	group.LocationsCount = len(locs)
	group.Variance = group.TotalPhysical - group.TotalSystem
	group.Classification = models.ClassifyVariance(group.Variance)

	return group
}

package reporting

import (
	"fmt"
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// ExportRows flattens the dashboard into one row per audit record, in group
// order.
func ExportRows(dash models.Dashboard) []models.ExportRow {
	rows := make([]models.ExportRow, 0, dash.Stats.RecordCount)
	for _, g := range dash.Groups {
		for _, r := range g.Records {
			name := r.ItemName
			if name == "" {
				name = g.ItemName
			}
			rows = append(rows, models.ExportRow{
				ItemCode:    g.SKU,
				ItemName:    name,
				PhysicalQty: r.PhysicalQty,
				Unit:        g.Unit,
				Location:    r.Location,
				Batch:       r.BatchNumber,
				Expiry:      r.ExpiryDate,
				Team:        r.TeamMember,
			})
		}
	}
	return rows
}

// ProgressSummary renders a short plain-text status for chat notifications.
func ProgressSummary(dash models.Dashboard) string {
	loc := dash.Stats.Locations
	total := loc.Pending + loc.Audited + loc.Empty + loc.Damaged

	var b strings.Builder
	fmt.Fprintf(&b, "Cycle count progress: %d/%d locations done", loc.Audited+loc.Empty, total)
	if loc.Damaged > 0 {
		fmt.Fprintf(&b, ", %d damaged", loc.Damaged)
	}
	b.WriteString(".\n")

	if dash.Stats.SKUCount == 0 {
		b.WriteString("No items counted yet.")
		return b.String()
	}

	fmt.Fprintf(&b, "%d items counted (%d units), accuracy %d%%, %d shortages.",
		dash.Stats.SKUCount, dash.Stats.TotalAudited, dash.Stats.Accuracy, dash.Stats.Critical)
	if dash.Restricted {
		b.WriteString("\nRunning in restricted mode on cached data.")
	}
	return b.String()
}

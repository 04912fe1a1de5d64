package models

// Classification describes the direction of a SKU group's variance.
type Classification string

const (
	ClassMatched  Classification = "matched"
	ClassShortage Classification = "shortage"
	ClassSurplus  Classification = "surplus"
)

// ClassifyVariance maps a signed variance onto its classification.
func ClassifyVariance(variance int) Classification {
	switch {
	case variance < 0:
		return ClassShortage
	case variance > 0:
		return ClassSurplus
	default:
		return ClassMatched
	}
}

// SKUGroup aggregates every audit record of one SKU across all locations.
type SKUGroup struct {
	SKU            string         `json:"sku"`
	ItemName       string         `json:"item_name"`
	Unit           string         `json:"unit"`
	Records        []AuditRecord  `json:"records"`
	TotalSystem    int            `json:"total_system"`
	TotalPhysical  int            `json:"total_physical"`
	Variance       int            `json:"variance"`
	Classification Classification `json:"classification"`
	LocationsCount int            `json:"locations_count"`
}

// StatusCounts counts locations per lifecycle status.
type StatusCounts struct {
	Pending int `json:"pending"`
	Audited int `json:"audited"`
	Empty   int `json:"empty"`
	Damaged int `json:"damaged"`
}

// DashboardStats are the portfolio-level figures of the rollup.
type DashboardStats struct {
	TotalAudited int          `json:"total_audited"`
	Locations    StatusCounts `json:"locations"`
	Accuracy     int          `json:"accuracy"`
	Critical     int          `json:"critical"`
	SKUCount     int          `json:"sku_count"`
	RecordCount  int          `json:"record_count"`
}

// Dashboard is the full reporting rollup.
type Dashboard struct {
	Groups     []SKUGroup     `json:"groups"`
	Stats      DashboardStats `json:"stats"`
	Restricted bool           `json:"restricted"`
}

// ExportColumns is the fixed header of the tabular export. Order and naming
// are kept stable for compatibility with previously exported files.
var ExportColumns = []string{"Item Code", "Item Name", "Physical Qty", "Unit", "Location", "Batch", "Expiry", "Team"}

// ExportRow is one audit record joined with its SKU group.
type ExportRow struct {
	ItemCode    string
	ItemName    string
	PhysicalQty int
	Unit        string
	Location    string
	Batch       string
	Expiry      string
	Team        string
}

// Values returns the row in ExportColumns order.
func (r ExportRow) Values() []interface{} {
	return []interface{}{r.ItemCode, r.ItemName, r.PhysicalQty, r.Unit, r.Location, r.Batch, r.Expiry, r.Team}
}

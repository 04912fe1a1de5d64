// Package export renders count results as an .xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
)

const (
	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	countsSheet  = "Counts"
	summarySheet = "Summary"
)

var summaryColumns = []string{"Item Code", "Item Name", "Unit", "System Qty", "Physical Qty", "Variance", "Status", "Locations"}

// WriteWorkbook writes the dashboard as a workbook with a per-record
// "Counts" sheet in the fixed export layout and a per-SKU "Summary" sheet.
func WriteWorkbook(w io.Writer, dash models.Dashboard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), countsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rows := reporting.ExportRows(dash)
	if err := writeRow(f, countsSheet, 1, toCells(models.ExportColumns)); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, countsSheet, i+2, r.Values()); err != nil {
			return err
		}
	}

	if err := writeRow(f, summarySheet, 1, toCells(summaryColumns)); err != nil {
		return err
	}
	for i, g := range dash.Groups {
		values := []interface{}{g.SKU, g.ItemName, g.Unit, g.TotalSystem, g.TotalPhysical, g.Variance, string(g.Classification), g.LocationsCount}
		if err := writeRow(f, summarySheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SetPanes(countsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName returns the attachment name for an export generated at stamp.
func FileName(stamp string) string {
	return fmt.Sprintf("cycle-count-%s.xlsx", stamp)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(header []string) []interface{} {
	out := make([]interface{}, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

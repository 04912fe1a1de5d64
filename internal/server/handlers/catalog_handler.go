package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/sheets"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/export"
	"github.com/mamadbah2/stockcount/internal/service/importer"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
)

// CatalogService is the workflow surface used by master-data maintenance.
type CatalogService interface {
	ImportCatalog(ctx context.Context, items []models.MasterItem, mode counting.ImportMode) (int, error)
	ImportLocations(ctx context.Context, locs []models.MasterLocation, mode counting.ImportMode) (int, error)
	ResetCatalog(ctx context.Context) error
	ResetLocationStates(ctx context.Context) error
	Dashboard() models.Dashboard
}

// CatalogOptions configures a CatalogHandler.
type CatalogOptions struct {
	Sheets         config.SheetsConfig
	DateOrder      models.DateOrder
	MaxUploadBytes int64
	Clock          func() time.Time
}

// CatalogHandler serves imports, resets and exports.
type CatalogHandler struct {
	svc    CatalogService
	sheets sheets.Repository
	opts   CatalogOptions
	logger *zap.Logger
}

// NewCatalogHandler constructs the handler. sheetRepo may be nil, in which
// case the sheet endpoints answer 503.
func NewCatalogHandler(svc CatalogService, sheetRepo sheets.Repository, opts CatalogOptions, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DateOrder == "" {
		opts.DateOrder = models.DateOrderYMD
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &CatalogHandler{svc: svc, sheets: sheetRepo, opts: opts, logger: logger}
}

type importResponse struct {
	Mode counting.ImportMode `json:"mode"`
	importer.Report
	Written int `json:"written"`
}

// ImportCatalog replaces or merges the master catalog from a JSON array.
func (h *CatalogHandler) ImportCatalog(c *gin.Context) {
	mode, ok := h.mode(c)
	if !ok {
		return
	}
	var items []models.MasterItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.storeCatalog(c, mode, items, importer.Report{Imported: len(items)})
}

// ImportCatalogXLSX imports the catalog from an uploaded workbook's first
// sheet, or the one named by ?sheet=.
func (h *CatalogHandler) ImportCatalogXLSX(c *gin.Context) {
	mode, ok := h.mode(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read upload"})
		return
	}
	defer file.Close()

	rows, err := importer.ReadXLSX(file, c.Query("sheet"))
	if err != nil {
		h.logger.Warn("unreadable workbook", zap.String("filename", header.Filename), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	items, report, err := importer.ParseCatalog(rows, h.opts.DateOrder)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.storeCatalog(c, mode, items, report)
}

// ImportCatalogSheet imports the catalog from the configured spreadsheet range.
func (h *CatalogHandler) ImportCatalogSheet(c *gin.Context) {
	mode, ok := h.mode(c)
	if !ok {
		return
	}
	rows, err := h.readSheet(c.Request.Context(), h.opts.Sheets.CatalogRange)
	if err != nil {
		respondError(c, h.logger, "unable to read catalog sheet", err)
		return
	}
	items, report, err := importer.ParseCatalog(rows, h.opts.DateOrder)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.storeCatalog(c, mode, items, report)
}

func (h *CatalogHandler) storeCatalog(c *gin.Context, mode counting.ImportMode, items []models.MasterItem, report importer.Report) {
	written, err := h.svc.ImportCatalog(c.Request.Context(), items, mode)
	if err != nil {
		respondError(c, h.logger, "unable to import catalog", err)
		return
	}
	h.logger.Info("catalog imported", zap.String("mode", string(mode)), zap.Int("written", written), zap.Int("skipped", report.Skipped))
	c.JSON(http.StatusOK, importResponse{Mode: mode, Report: report, Written: written})
}

// ImportLocations replaces or merges the master location list from a JSON array.
func (h *CatalogHandler) ImportLocations(c *gin.Context) {
	mode, ok := h.mode(c)
	if !ok {
		return
	}
	var locs []models.MasterLocation
	if err := c.ShouldBindJSON(&locs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.storeLocations(c, mode, locs, importer.Report{Imported: len(locs)})
}

// ImportLocationsSheet imports master locations from the configured spreadsheet range.
func (h *CatalogHandler) ImportLocationsSheet(c *gin.Context) {
	mode, ok := h.mode(c)
	if !ok {
		return
	}
	rows, err := h.readSheet(c.Request.Context(), h.opts.Sheets.LocationsRange)
	if err != nil {
		respondError(c, h.logger, "unable to read locations sheet", err)
		return
	}
	locs, report, err := importer.ParseLocations(rows)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.storeLocations(c, mode, locs, report)
}

func (h *CatalogHandler) storeLocations(c *gin.Context, mode counting.ImportMode, locs []models.MasterLocation, report importer.Report) {
	written, err := h.svc.ImportLocations(c.Request.Context(), locs, mode)
	if err != nil {
		respondError(c, h.logger, "unable to import locations", err)
		return
	}
	h.logger.Info("locations imported", zap.String("mode", string(mode)), zap.Int("written", written))
	c.JSON(http.StatusOK, importResponse{Mode: mode, Report: report, Written: written})
}

// ResetCatalog deletes every master item.
func (h *CatalogHandler) ResetCatalog(c *gin.Context) {
	if err := h.svc.ResetCatalog(c.Request.Context()); err != nil {
		respondError(c, h.logger, "unable to reset catalog", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetLocationStates sets every location back to pending.
func (h *CatalogHandler) ResetLocationStates(c *gin.Context) {
	if err := h.svc.ResetLocationStates(c.Request.Context()); err != nil {
		respondError(c, h.logger, "unable to reset location states", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportXLSX streams the dashboard as a workbook.
func (h *CatalogHandler) ExportXLSX(c *gin.Context) {
	name := export.FileName(h.opts.Clock().Format("20060102-1504"))
	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	if err := export.WriteWorkbook(c.Writer, h.svc.Dashboard()); err != nil {
		h.logger.Error("failed to write workbook", zap.Error(err))
	}
}

// ExportSheet overwrites the configured export range with the current rows.
func (h *CatalogHandler) ExportSheet(c *gin.Context) {
	if h.sheets == nil {
		respondError(c, h.logger, "sheet export unavailable", errSheetsDisabled)
		return
	}
	header := make([]interface{}, len(models.ExportColumns))
	for i, col := range models.ExportColumns {
		header[i] = col
	}
	exportRows := reporting.ExportRows(h.svc.Dashboard())
	rows := make([][]interface{}, len(exportRows))
	for i, r := range exportRows {
		rows[i] = r.Values()
	}

	if err := sheets.ReplaceRange(c.Request.Context(), h.sheets, h.opts.Sheets.ExportRange, header, rows); err != nil {
		h.logger.Error("sheet export failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to write export sheet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": len(rows), "range": h.opts.Sheets.ExportRange})
}

func (h *CatalogHandler) mode(c *gin.Context) (counting.ImportMode, bool) {
	mode, err := counting.ParseImportMode(c.Query("mode"))
	if err != nil {
		respondError(c, h.logger, "invalid import mode", err)
		return "", false
	}
	return mode, true
}

func (h *CatalogHandler) readSheet(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if h.sheets == nil {
		return nil, errSheetsDisabled
	}
	rows, err := h.sheets.ReadRange(ctx, sheetRange)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetRange, err)
	}
	return rows, nil
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/memory"
	"github.com/mamadbah2/stockcount/internal/repository/sheets"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/export"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeSheets struct {
	rows    map[string][][]interface{}
	written [][]interface{}
	cleared []string
}

func (f *fakeSheets) ReadRange(_ context.Context, sheetRange string) ([][]interface{}, error) {
	rows, ok := f.rows[sheetRange]
	if !ok {
		return nil, fmt.Errorf("no range %s", sheetRange)
	}
	return rows, nil
}

func (f *fakeSheets) WriteRow(_ context.Context, _ string, values []interface{}) error {
	f.written = append(f.written, values)
	return nil
}

func (f *fakeSheets) WriteRows(_ context.Context, _ string, rows [][]interface{}) error {
	f.written = append(f.written, rows...)
	return nil
}

func (f *fakeSheets) ClearRange(_ context.Context, sheetRange string) error {
	f.cleared = append(f.cleared, sheetRange)
	return nil
}

type testServer struct {
	engine *gin.Engine
	svc    *counting.Service
	remote *memory.Store
}

func newTestServer(t *testing.T, sheetRepo *fakeSheets) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := memory.New()
	ctx := context.Background()
	gauze := models.MasterItem{SKU: "B200", Name: "Gauze", Unit: "Roll", BatchNumber: "-", ExpiryDate: "-", SystemStock: 100}
	doc, err := store.Encode(gauze)
	require.NoError(t, err)
	require.NoError(t, remote.BatchWrite(ctx, store.CollectionMasterItems, map[string]store.Document{gauze.Key(): doc}))

	var seq atomic.Int64
	svc := counting.NewService(remote, memory.New(), counting.Options{
		Metrics: counting.NewMetrics(prometheus.NewRegistry()),
		Clock:   func() time.Time { return testNow },
		NewID:   func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	}, nil)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Close)

	var repo sheets.Repository
	if sheetRepo != nil {
		repo = sheetRepo
	}

	counts := NewCountingHandler(svc, nil)
	catalog := NewCatalogHandler(svc, repo, CatalogOptions{
		Sheets: config.SheetsConfig{CatalogRange: "Master!A1:G", LocationsRange: "Locations!A1:C", ExportRange: "Export!A1:H"},
		Clock:  func() time.Time { return testNow },
	}, nil)

	r := gin.New()
	r.GET("/healthz", counts.Health)
	api := r.Group("/api")
	api.GET("/items/resolve", counts.ResolveItem)
	api.POST("/items/scan", counts.Scan)
	api.POST("/entries/evaluate", counts.Evaluate)
	api.POST("/entries", counts.Submit)
	api.PATCH("/entries/:id", counts.Edit)
	api.DELETE("/entries/:id", counts.Delete)
	api.GET("/entries", counts.Entries)
	api.GET("/dashboard", counts.Dashboard)
	api.GET("/damage", counts.DamageReports)
	api.POST("/sync", counts.Sync)
	api.DELETE("/locations/states", catalog.ResetLocationStates)
	api.GET("/locations/checklist", counts.Checklist)
	api.POST("/locations/:name/empty", counts.MarkEmpty)
	api.POST("/locations/:name/damage", counts.MarkDamaged)
	api.POST("/catalog/import", catalog.ImportCatalog)
	api.POST("/catalog/import/xlsx", catalog.ImportCatalogXLSX)
	api.POST("/catalog/import/sheet", catalog.ImportCatalogSheet)
	api.POST("/locations/import/sheet", catalog.ImportLocationsSheet)
	api.DELETE("/catalog", catalog.ResetCatalog)
	api.GET("/export.xlsx", catalog.ExportXLSX)
	api.POST("/export/sheet", catalog.ExportSheet)

	return &testServer{engine: r, svc: svc, remote: remote}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TeamMemberHeader, "Dina")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestResolveAndEvaluate(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/items/resolve?code=B200", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var item models.ItemDefaults
	decode(t, w, &item)
	assert.True(t, item.Known)
	assert.Equal(t, 100, item.SystemStock)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/items/resolve", nil).Code)

	w = s.do(t, http.MethodPost, "/api/entries/evaluate", models.EvaluateRequest{SKU: "B200", Location: "Dock", PhysicalQty: 80})
	require.Equal(t, http.StatusOK, w.Code)
	var eval models.EntryEvaluation
	decode(t, w, &eval)
	assert.Equal(t, -20, eval.Variance)
	assert.True(t, eval.Significant)
}

func TestScanKeepsOverridesAcrossRescans(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/items/scan", models.ScanRequest{Code: "B200,LOT-7,20280115"})
	require.Equal(t, http.StatusOK, w.Code)
	var draft models.EntryDraft
	decode(t, w, &draft)
	assert.Equal(t, "Gauze", draft.Name)
	assert.Equal(t, "LOT-7", draft.BatchNumber)
	assert.Equal(t, "2028-01-15", draft.ExpiryDate)
	assert.True(t, draft.Overridden)

	w = s.do(t, http.MethodPost, "/api/items/scan", models.ScanRequest{Code: "B200", Draft: draft})
	require.Equal(t, http.StatusOK, w.Code)
	var rescanned models.EntryDraft
	decode(t, w, &rescanned)
	assert.Equal(t, "LOT-7", rescanned.BatchNumber)
	assert.Equal(t, "Roll", rescanned.Unit)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/items/scan", map[string]string{}).Code)
}

func TestSubmitEntry(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100})
	require.Equal(t, http.StatusCreated, w.Code)
	var res models.SubmitResult
	decode(t, w, &res)
	assert.Equal(t, "Dina", res.Record.TeamMember)
	assert.False(t, res.SavedLocally)

	w = s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Shelf", PhysicalQty: 50})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "photos", body["field"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/entries", map[string]interface{}{"sku": "B200"}).Code)
}

func TestSubmitEntrySavedLocally(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.FailWith(store.ErrPermissionDenied)

	w := s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100})
	require.Equal(t, http.StatusAccepted, w.Code)
	var res models.SubmitResult
	decode(t, w, &res)
	assert.True(t, res.SavedLocally)

	w = s.do(t, http.MethodGet, "/healthz", nil)
	var health map[string]interface{}
	decode(t, w, &health)
	assert.Equal(t, true, health["restricted"])
}

func TestSubmitEntryHardStoreError(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.FailWith(errors.New("write conflict"))

	w := s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestEditAndDeleteEntry(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100})
	require.Equal(t, http.StatusCreated, w.Code)
	var res models.SubmitResult
	decode(t, w, &res)

	qty := 95
	w = s.do(t, http.MethodPatch, "/api/entries/"+res.Record.ID, models.EntryEdit{PhysicalQty: &qty, Recompute: true})
	require.Equal(t, http.StatusOK, w.Code)
	var edited models.SubmitResult
	decode(t, w, &edited)
	assert.Equal(t, 95, edited.Record.PhysicalQty)
	assert.Equal(t, -5, edited.Record.Variance)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPatch, "/api/entries/missing", models.EntryEdit{PhysicalQty: &qty}).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/entries/"+res.Record.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/entries/"+res.Record.ID, nil).Code)
}

func TestLocationStatusEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/locations/Rak A-1/damage", models.StatusChange{Description: "bent upright"})
	require.Equal(t, http.StatusOK, w.Code)
	var res counting.StatusResult
	decode(t, w, &res)
	assert.Equal(t, models.StatusDamaged, res.State.Status)
	assert.Equal(t, "Dina", res.State.ReportedBy)
	require.NotNil(t, res.Damage)

	w = s.do(t, http.MethodPost, "/api/locations/Rak A-1/damage", models.StatusChange{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/locations/Dock/empty", nil).Code)

	w = s.do(t, http.MethodGet, "/api/locations/checklist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var checklist models.Checklist
	decode(t, w, &checklist)
	assert.Len(t, checklist.NeedsAttention, 1)
	assert.Len(t, checklist.Completed, 1)
}

func TestImportCatalogJSON(t *testing.T) {
	s := newTestServer(t, nil)

	items := []models.MasterItem{{SKU: "C300", Name: "Tape", SystemStock: 4}}
	w := s.do(t, http.MethodPost, "/api/catalog/import?mode=merge", items)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.svc.ResolveItem("C300").Known)
	assert.True(t, s.svc.ResolveItem("B200").Known)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/api/catalog/import?mode=append", items).Code)

	s.remote.FailWith(store.ErrUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, "/api/catalog/import", items).Code)
}

func TestImportCatalogSheet(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable,
		newTestServer(t, nil).do(t, http.MethodPost, "/api/catalog/import/sheet", nil).Code)

	repo := &fakeSheets{rows: map[string][][]interface{}{
		"Master!A1:G": {
			{"Item Code", "Item Name", "System Stock", "Exp Date"},
			{"D400", "Iodine", "12", "31/12/2027"},
			{"", "no code", "1", ""},
		},
		"Locations!A1:C": {{"Location", "Zone"}, {"Rak C-3", "Dry"}},
	}}
	s := newTestServer(t, repo)

	w := s.do(t, http.MethodPost, "/api/catalog/import/sheet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "replace", body["mode"])
	assert.Equal(t, 1.0, body["imported"])
	assert.Equal(t, 1.0, body["skipped"])

	got := s.svc.ResolveItem("D400")
	assert.True(t, got.Known)
	assert.Equal(t, "2027-12-31", got.ExpiryDate)
	assert.False(t, s.svc.ResolveItem("B200").Known)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/locations/import/sheet", nil).Code)
	assert.Equal(t, "Rak C-3", s.svc.Checklist().NeedsAttention[0].Location)
}

func TestImportCatalogXLSX(t *testing.T) {
	s := newTestServer(t, nil)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"SKU", "Name", "Qty"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"E500", "Swab", 30}))
	var workbook bytes.Buffer
	require.NoError(t, f.Write(&workbook))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "master.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import/xlsx?mode=merge", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := s.svc.ResolveItem("E500")
	assert.True(t, got.Known)
	assert.Equal(t, 30, got.SystemStock)

	req = httptest.NewRequest(http.MethodPost, "/api/catalog/import/xlsx", nil)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetCatalog(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/catalog", nil).Code)
	assert.False(t, s.svc.ResolveItem("B200").Known)
}

func TestExports(t *testing.T) {
	repo := &fakeSheets{}
	s := newTestServer(t, repo)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100}).Code)

	w := s.do(t, http.MethodGet, "/api/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cycle-count-20260302-1000.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := wb.GetRows("Counts")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B200", rows[1][0])

	w = s.do(t, http.MethodPost, "/api/export/sheet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Export!A1:H"}, repo.cleared)
	require.Len(t, repo.written, 2)
	assert.Equal(t, "Item Code", repo.written[0][0])
	assert.Equal(t, "Dina", repo.written[1][7])
}

func TestSyncAndResets(t *testing.T) {
	s := newTestServer(t, nil)
	s.remote.FailWith(store.ErrPermissionDenied)

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/entries", models.EntryRequest{SKU: "B200", Location: "Dock", PhysicalQty: 100}).Code)
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/locations/Dock/damage", models.StatusChange{Description: "leak"}).Code)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, "/api/sync", nil).Code)

	s.remote.FailWith(nil)
	w := s.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report counting.SyncReport
	decode(t, w, &report)
	assert.Zero(t, report.Pending)
	assert.Positive(t, report.Synced)

	var entries map[string][]models.AuditRecord
	decode(t, s.do(t, http.MethodGet, "/api/entries", nil), &entries)
	assert.Len(t, entries["records"], 1)

	var damage map[string][]models.DamageReport
	decode(t, s.do(t, http.MethodGet, "/api/damage", nil), &damage)
	require.Len(t, damage["reports"], 1)
	assert.Equal(t, "leak", damage["reports"][0].Description)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/locations/states", nil).Code)
	checklist := s.svc.Checklist()
	assert.Empty(t, checklist.NeedsAttention, "Dock was only known through its state")
	assert.Empty(t, checklist.Completed)
}

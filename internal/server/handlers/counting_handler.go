package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/counting"
)

// CountingService is the workflow surface used by the count form.
type CountingService interface {
	ResolveItem(code string) models.ItemDefaults
	ScanIntoDraft(code string, draft models.EntryDraft) models.EntryDraft
	EvaluateEntry(sku, location string, qty int) models.EntryEvaluation
	SubmitEntry(ctx context.Context, req models.EntryRequest, teamMember string) (models.SubmitResult, error)
	EditEntry(ctx context.Context, id string, edit models.EntryEdit, teamMember string) (models.SubmitResult, error)
	DeleteEntry(ctx context.Context, id string) (bool, error)
	Records() []models.AuditRecord
	SetLocationStatus(ctx context.Context, location string, status models.LocationStatus, change models.StatusChange) (counting.StatusResult, error)
	Checklist() models.Checklist
	Dashboard() models.Dashboard
	DamageReports() []models.DamageReport
	SyncPending(ctx context.Context) (counting.SyncReport, error)
	Restricted() bool
}

// CountingHandler serves the count form and dashboard endpoints.
type CountingHandler struct {
	svc    CountingService
	logger *zap.Logger
}

// NewCountingHandler constructs the HTTP handler adapter.
func NewCountingHandler(svc CountingService, logger *zap.Logger) *CountingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountingHandler{svc: svc, logger: logger}
}

// ResolveItem decodes a scanned or typed code into form defaults.
func (h *CountingHandler) ResolveItem(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	c.JSON(http.StatusOK, h.svc.ResolveItem(code))
}

// Scan applies a scanned code to the form draft the client is holding.
func (h *CountingHandler) Scan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	c.JSON(http.StatusOK, h.svc.ScanIntoDraft(req.Code, req.Draft))
}

// Evaluate previews the variance a quantity would produce without saving it.
func (h *CountingHandler) Evaluate(c *gin.Context) {
	var req models.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	c.JSON(http.StatusOK, h.svc.EvaluateEntry(req.SKU, req.Location, req.PhysicalQty))
}

// Submit saves a count entry.
func (h *CountingHandler) Submit(c *gin.Context) {
	var req models.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("invalid entry payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.svc.SubmitEntry(c.Request.Context(), req, c.GetHeader(TeamMemberHeader))
	if err != nil {
		respondError(c, h.logger, "unable to save entry", err)
		return
	}
	c.JSON(savedStatus(res.SavedLocally, http.StatusCreated), res)
}

// Edit corrects a saved entry.
func (h *CountingHandler) Edit(c *gin.Context) {
	var edit models.EntryEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.svc.EditEntry(c.Request.Context(), c.Param("id"), edit, c.GetHeader(TeamMemberHeader))
	if err != nil {
		respondError(c, h.logger, "unable to update entry", err)
		return
	}
	c.JSON(savedStatus(res.SavedLocally, http.StatusOK), res)
}

// Delete removes a saved entry.
func (h *CountingHandler) Delete(c *gin.Context) {
	savedLocally, err := h.svc.DeleteEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "unable to delete entry", err)
		return
	}
	c.JSON(savedStatus(savedLocally, http.StatusOK), gin.H{"deleted": c.Param("id"), "saved_locally": savedLocally})
}

// Entries lists every audit record.
func (h *CountingHandler) Entries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"records": h.svc.Records()})
}

// Dashboard returns the per-SKU rollup and stats.
func (h *CountingHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Dashboard())
}

// Checklist returns the location checklist.
func (h *CountingHandler) Checklist(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Checklist())
}

// DamageReports returns the damage log.
func (h *CountingHandler) DamageReports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": h.svc.DamageReports()})
}

// MarkEmpty flags a location as empty.
func (h *CountingHandler) MarkEmpty(c *gin.Context) {
	h.setStatus(c, models.StatusEmpty, models.StatusChange{ReportedBy: c.GetHeader(TeamMemberHeader)})
}

// MarkDamaged records damage at a location.
func (h *CountingHandler) MarkDamaged(c *gin.Context) {
	var change models.StatusChange
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if change.ReportedBy == "" {
		change.ReportedBy = c.GetHeader(TeamMemberHeader)
	}
	h.setStatus(c, models.StatusDamaged, change)
}

func (h *CountingHandler) setStatus(c *gin.Context, status models.LocationStatus, change models.StatusChange) {
	res, err := h.svc.SetLocationStatus(c.Request.Context(), c.Param("name"), status, change)
	if err != nil {
		respondError(c, h.logger, "unable to update location", err)
		return
	}
	c.JSON(savedStatus(res.SavedLocally, http.StatusOK), res)
}

// Sync replays writes queued while the primary store was unavailable.
func (h *CountingHandler) Sync(c *gin.Context) {
	report, err := h.svc.SyncPending(c.Request.Context())
	switch {
	case store.Recoverable(err):
		h.logger.Warn("pending sync incomplete", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "primary store still unavailable", "report": report})
		return
	case err != nil:
		// Rejected writes were dropped; the report carries the count.
		h.logger.Error("queued writes dropped during sync", zap.Error(err))
	}
	c.JSON(http.StatusOK, report)
}

// Health reports liveness and whether the service runs on cached data.
func (h *CountingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "restricted": h.svc.Restricted()})
}

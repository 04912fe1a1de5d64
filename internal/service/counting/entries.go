package counting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/evidence"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/locations"
	"github.com/mamadbah2/stockcount/internal/service/reconcile"
)

// ResolveItem decodes a scanned or typed code and fills in catalog
// defaults. Batch and expiry overrides carried by the code win over the
// catalog values.
func (s *Service) ResolveItem(code string) models.ItemDefaults {
	view := s.View()
	scan := models.DecodeScanCode(code, s.opts.DateOrder)

	out := models.ItemDefaults{
		SKU:         scan.SKU,
		Unit:        view.Index.Unit(scan.SKU),
		SystemStock: view.Index.SystemStockForSKU(scan.SKU),
	}
	if info, ok := view.Index.DisplayInfoForSKU(scan.SKU); ok {
		out.Known = true
		out.Name = info.Name
		out.BatchNumber = info.BatchNumber
		out.ExpiryDate = info.ExpiryDate
		out.Unit = info.Unit
	}
	if scan.Batch != nil {
		out.BatchNumber = *scan.Batch
	}
	if scan.Expiry != nil {
		out.ExpiryDate = *scan.Expiry
	}
	return out
}

// ScanIntoDraft applies a scan to an in-progress form. Batch and expiry
// typed by the scan survive rescans of the same SKU.
func (s *Service) ScanIntoDraft(code string, draft models.EntryDraft) models.EntryDraft {
	draft.ApplyScan(code, s.View().Index, s.opts.DateOrder)
	return draft
}

// EvaluateEntry computes the live feedback for an entry being typed: what
// has been counted elsewhere and whether the combined total deviates
// significantly from system stock.
func (s *Service) EvaluateEntry(sku, location string, qty int) models.EntryEvaluation {
	return evaluate(s.View(), strings.TrimSpace(sku), location, qty)
}

func evaluate(view View, sku, location string, qty int) models.EntryEvaluation {
	systemStock := view.Index.SystemStockForSKU(sku)
	existing := reconcile.ExistingTotal(view.Records, sku)
	global := existing + qty
	eval := reconcile.Evaluate(global, systemStock)

	return models.EntryEvaluation{
		SKU:            sku,
		Location:       strings.TrimSpace(location),
		SystemStock:    systemStock,
		ExistingTotal:  existing,
		GlobalTotal:    global,
		Variance:       eval.Variance,
		PercentDiff:    eval.PercentDiff,
		Significant:    eval.Significant,
		EvidenceNeeded: eval.Significant,
	}
}

// SubmitEntry validates and saves a count, then marks its location audited.
// When the primary store refuses the write the entry is kept locally and
// the result reports SavedLocally.
func (s *Service) SubmitEntry(ctx context.Context, req models.EntryRequest, teamMember string) (models.SubmitResult, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return models.SubmitResult{}, invalid("sku", "item code is required")
	}
	if strings.TrimSpace(req.Location) == "" {
		return models.SubmitResult{}, invalidErr("location", locations.ErrLocationRequired)
	}
	if req.PhysicalQty < 0 {
		return models.SubmitResult{}, invalid("physical_qty", "quantity must not be negative")
	}

	view := s.View()
	eval := evaluate(view, sku, req.Location, req.PhysicalQty)
	verdict := reconcile.Evaluation{Variance: eval.Variance, PercentDiff: eval.PercentDiff, Significant: eval.Significant}
	if err := reconcile.CheckEvidence(s.opts.EvidencePolicy, verdict, req.Photos, req.Notes); err != nil {
		field := "photos"
		if errors.Is(err, reconcile.ErrNotesRequired) {
			field = "notes"
		}
		return models.SubmitResult{}, invalidErr(field, err)
	}

	now := s.opts.Clock().UTC()
	id := s.opts.NewID()
	team := s.TeamMember(teamMember)

	photos, err := s.uploadPhotos(ctx, id, req.Photos)
	if err != nil {
		return models.SubmitResult{}, err
	}

	tracker := locations.NewTracker(view.States, view.Locations)
	info, _ := view.Index.DisplayInfoForSKU(sku)
	record := models.AuditRecord{
		ID:          id,
		SKU:         sku,
		ItemName:    firstNonBlank(req.ItemName, info.Name),
		Location:    tracker.Canonical(req.Location),
		BatchNumber: firstNonBlank(req.BatchNumber, info.BatchNumber, models.ExpiryNone),
		ExpiryDate:  firstNonBlank(req.ExpiryDate, info.ExpiryDate, models.ExpiryNone),
		SystemQty:   eval.SystemStock,
		PhysicalQty: req.PhysicalQty,
		Variance:    eval.Variance,
		Timestamp:   now,
		TeamMember:  team,
		Notes:       strings.TrimSpace(req.Notes),
		Photos:      photos,
	}

	doc, err := store.Encode(record)
	if err != nil {
		return models.SubmitResult{}, err
	}
	savedLocally, err := s.persist(ctx, store.CollectionAuditLogs, record.ID, doc)
	if err != nil {
		return models.SubmitResult{}, err
	}

	state, err := tracker.Audit(record.Location, team, now)
	if err != nil {
		return models.SubmitResult{}, err
	}
	// The record is stored at this point, so a failed state write is reported
	// on the result instead of failing the submission and inviting a retry.
	var warning string
	if local, err := s.writeState(ctx, state); err != nil {
		s.logger.Error("entry saved but location state was not", zap.String("location", state.Location), zap.Error(err))
		warning = fmt.Sprintf("entry saved, but %s could not be marked audited", state.Location)
	} else if local {
		savedLocally = true
	}

	destination := "primary"
	if savedLocally {
		destination = "local"
	}
	s.opts.Metrics.Submissions.WithLabelValues(destination).Inc()
	s.opts.Metrics.StatusChanges.WithLabelValues(string(models.StatusAudited)).Inc()

	s.logger.Info("audit entry saved",
		zap.String("id", record.ID),
		zap.String("sku", record.SKU),
		zap.String("location", record.Location),
		zap.Int("physical_qty", record.PhysicalQty),
		zap.Int("variance", eval.Variance),
		zap.Bool("saved_locally", savedLocally))

	if eval.Significant {
		s.opts.Metrics.Discrepancies.Inc()
		if err := s.opts.Notifier.NotifyDiscrepancy(ctx, record, eval); err != nil {
			s.logger.Warn("discrepancy notification failed", zap.String("id", record.ID), zap.Error(err))
		}
	}

	return models.SubmitResult{Record: record, Evaluation: eval, SavedLocally: savedLocally, Warning: warning}, nil
}

// EditEntry applies an operator correction to a saved record. SystemQty and
// Variance keep their submission-time values unless Recompute is set.
func (s *Service) EditEntry(ctx context.Context, id string, edit models.EntryEdit, teamMember string) (models.SubmitResult, error) {
	view := s.View()
	record, ok := findRecord(view.Records, id)
	if !ok {
		return models.SubmitResult{}, ErrEntryNotFound
	}

	if edit.PhysicalQty != nil {
		if *edit.PhysicalQty < 0 {
			return models.SubmitResult{}, invalid("physical_qty", "quantity must not be negative")
		}
		record.PhysicalQty = *edit.PhysicalQty
	}
	tracker := locations.NewTracker(view.States, view.Locations)
	movedTo := ""
	if edit.Location != nil {
		if strings.TrimSpace(*edit.Location) == "" {
			return models.SubmitResult{}, invalidErr("location", locations.ErrLocationRequired)
		}
		loc := tracker.Canonical(*edit.Location)
		if locations.Key(loc) != locations.Key(record.Location) {
			movedTo = loc
		}
		record.Location = loc
	}
	if edit.BatchNumber != nil {
		record.BatchNumber = firstNonBlank(*edit.BatchNumber, models.ExpiryNone)
	}
	if edit.ExpiryDate != nil {
		record.ExpiryDate = firstNonBlank(*edit.ExpiryDate, models.ExpiryNone)
	}
	if edit.Notes != nil {
		record.Notes = strings.TrimSpace(*edit.Notes)
	}

	others := make([]models.AuditRecord, 0, len(view.Records))
	for _, r := range view.Records {
		if r.ID != record.ID {
			others = append(others, r)
		}
	}
	eval := evaluate(View{Records: others, Index: view.Index}, record.SKU, record.Location, record.PhysicalQty)
	if edit.Recompute {
		record.SystemQty = eval.SystemStock
		record.Variance = eval.Variance
	}

	doc, err := store.Encode(record)
	if err != nil {
		return models.SubmitResult{}, err
	}
	savedLocally, err := s.persist(ctx, store.CollectionAuditLogs, record.ID, doc)
	if err != nil {
		return models.SubmitResult{}, err
	}

	if movedTo != "" {
		state, err := tracker.Audit(movedTo, s.TeamMember(teamMember), s.opts.Clock().UTC())
		if err == nil {
			if local, werr := s.writeState(ctx, state); werr != nil {
				s.logger.Warn("failed to mark corrected location audited", zap.String("location", movedTo), zap.Error(werr))
			} else if local {
				savedLocally = true
			}
		}
	}

	s.logger.Info("audit entry corrected", zap.String("id", record.ID), zap.Bool("recomputed", edit.Recompute))
	return models.SubmitResult{Record: record, Evaluation: eval, SavedLocally: savedLocally}, nil
}

// DeleteEntry removes a saved record. Location states are left as they are.
func (s *Service) DeleteEntry(ctx context.Context, id string) (bool, error) {
	if _, ok := findRecord(s.View().Records, id); !ok {
		return false, ErrEntryNotFound
	}
	savedLocally, err := s.remove(ctx, store.CollectionAuditLogs, id)
	if err != nil {
		return false, err
	}
	s.logger.Info("audit entry deleted", zap.String("id", id), zap.Bool("saved_locally", savedLocally))
	return savedLocally, nil
}

// Records returns the merged audit records.
func (s *Service) Records() []models.AuditRecord {
	return s.View().Records
}

func (s *Service) uploadPhotos(ctx context.Context, id string, photos []string) ([]string, error) {
	var out []string
	for i, p := range photos {
		if strings.TrimSpace(p) == "" {
			continue
		}
		ref, err := s.opts.Uploader.Upload(ctx, fmt.Sprintf("%s-%d", id, i+1), p)
		if errors.Is(err, evidence.ErrInvalidPhoto) {
			return nil, invalidErr("photos", err)
		}
		if err != nil {
			return nil, fmt.Errorf("upload evidence: %w", err)
		}
		out = append(out, ref)
	}
	return out, nil
}

func findRecord(records []models.AuditRecord, id string) (models.AuditRecord, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.AuditRecord{}, false
	}
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return models.AuditRecord{}, false
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

package counting

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/locations"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
)

// StatusResult reports a location status change.
type StatusResult struct {
	State        models.LocationState `json:"state"`
	Damage       *models.DamageReport `json:"damage,omitempty"`
	SavedLocally bool                 `json:"saved_locally"`
}

// SetLocationStatus applies an explicit operator action to a location:
// marking it empty, or reporting damage. Audited is only reached through
// SubmitEntry.
func (s *Service) SetLocationStatus(ctx context.Context, location string, status models.LocationStatus, change models.StatusChange) (StatusResult, error) {
	if strings.TrimSpace(location) == "" {
		return StatusResult{}, invalidErr("location", locations.ErrLocationRequired)
	}

	view := s.View()
	tracker := locations.NewTracker(view.States, view.Locations)
	now := s.opts.Clock().UTC()
	change.ReportedBy = s.TeamMember(change.ReportedBy)

	var (
		state  models.LocationState
		report *models.DamageReport
		err    error
	)
	switch status {
	case models.StatusEmpty:
		state, err = tracker.MarkEmpty(location, change.ReportedBy, now)
	case models.StatusDamaged:
		id := s.opts.NewID()
		if strings.TrimSpace(change.Photo) != "" {
			ref, uploadErr := s.uploadPhotos(ctx, "damage-"+id, []string{change.Photo})
			if uploadErr != nil {
				return StatusResult{}, uploadErr
			}
			change.Photo = ref[0]
		}
		state, err = tracker.ReportDamage(location, change, now)
		if err == nil {
			report = &models.DamageReport{
				ID:          id,
				Location:    state.Location,
				Description: state.DamageDescription,
				Photo:       state.Photo,
				ReportedBy:  change.ReportedBy,
				ReportedAt:  now,
			}
		}
	default:
		return StatusResult{}, invalid("status", fmt.Sprintf("status %q cannot be set directly", status))
	}
	if err != nil {
		return StatusResult{}, invalidErr("description", err)
	}

	savedLocally, err := s.writeState(ctx, state)
	if err != nil {
		return StatusResult{}, err
	}

	if report != nil {
		doc, err := store.Encode(*report)
		if err != nil {
			return StatusResult{}, err
		}
		local, err := s.persist(ctx, store.CollectionDamageReports, report.ID, doc)
		if err != nil {
			s.logger.Error("damage state saved but report log was not", zap.String("location", state.Location), zap.Error(err))
		}
		savedLocally = savedLocally || local
	}

	s.opts.Metrics.StatusChanges.WithLabelValues(string(status)).Inc()
	s.logger.Info("location status changed",
		zap.String("location", state.Location),
		zap.String("status", string(state.Status)),
		zap.Bool("saved_locally", savedLocally))

	if report != nil {
		if err := s.opts.Notifier.NotifyDamage(ctx, *report); err != nil {
			s.logger.Warn("damage notification failed", zap.String("location", state.Location), zap.Error(err))
		}
	}

	return StatusResult{State: state, Damage: report, SavedLocally: savedLocally}, nil
}

// Checklist splits every known location into needs-attention and completed.
func (s *Service) Checklist() models.Checklist {
	view := s.View()
	return locations.NewTracker(view.States, view.Locations).Checklist()
}

// Dashboard rolls the current snapshot up per SKU.
func (s *Service) Dashboard() models.Dashboard {
	view := s.View()
	dash := reporting.Rollup(reporting.Input{
		Items:     view.Items,
		Records:   view.Records,
		States:    view.States,
		Locations: view.Locations,
	})
	dash.Restricted = view.Restricted
	return dash
}

// DamageReports returns the damage log, oldest first.
func (s *Service) DamageReports() []models.DamageReport {
	return s.View().Damage
}

func (s *Service) writeState(ctx context.Context, state models.LocationState) (bool, error) {
	doc, err := store.Encode(state)
	if err != nil {
		return false, err
	}
	return s.persist(ctx, store.CollectionLocationStates, locations.Key(state.Location), doc)
}

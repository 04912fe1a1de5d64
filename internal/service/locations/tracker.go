// Package locations tracks the lifecycle status of physical locations.
package locations

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

var (
	// ErrLocationRequired is returned for a blank location name.
	ErrLocationRequired = errors.New("location is required")
	// ErrDescriptionRequired is returned when damage is reported without a description.
	ErrDescriptionRequired = errors.New("damage description is required")
)

// Tracker holds at most one current state per location. Keys are
// case-insensitive; the declared master-location name is the canonical
// casing, otherwise the casing of the first stored state wins.
type Tracker struct {
	states    map[string]models.LocationState
	canonical map[string]string
	zones     map[string]string
	declared  []string
}

// NewTracker builds a tracker from a state snapshot and the static location
// reference data. Either may be nil.
func NewTracker(states []models.LocationState, locations []models.MasterLocation) *Tracker {
	t := &Tracker{
		states:    make(map[string]models.LocationState, len(states)),
		canonical: make(map[string]string, len(locations)),
		zones:     make(map[string]string, len(locations)),
	}

	for _, loc := range locations {
		key := Key(loc.Name)
		if key == "" {
			continue
		}
		if _, seen := t.canonical[key]; !seen {
			t.declared = append(t.declared, key)
		}
		t.canonical[key] = strings.TrimSpace(loc.Name)
		t.zones[key] = loc.Zone
	}

	for _, st := range states {
		key := Key(st.Location)
		if key == "" {
			continue
		}
		if _, ok := t.canonical[key]; !ok {
			t.canonical[key] = strings.TrimSpace(st.Location)
		}
		if prev, ok := t.states[key]; ok && prev.UpdatedAt.After(st.UpdatedAt) {
			continue
		}
		st.Location = t.canonical[key]
		// Unrecognized stored values count as pending everywhere.
		st.Status, _ = models.ParseLocationStatus(string(st.Status))
		t.states[key] = st
	}

	return t
}

// Key normalizes a location name for matching.
func Key(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Canonical returns the stored casing for name, or name trimmed when the
// location has never been seen.
func (t *Tracker) Canonical(name string) string {
	if c, ok := t.canonical[Key(name)]; ok {
		return c
	}
	return strings.TrimSpace(name)
}

// Status returns the current status; unknown locations are pending.
func (t *Tracker) Status(name string) models.LocationStatus {
	if st, ok := t.states[Key(name)]; ok {
		return st.Status
	}
	return models.StatusPending
}

// State returns the stored state document, if any.
func (t *Tracker) State(name string) (models.LocationState, bool) {
	st, ok := t.states[Key(name)]
	return st, ok
}

// Audit records a count submission at name. Any prior damage flag is
// cleared; only the latest state survives.
func (t *Tracker) Audit(name, teamMember string, at time.Time) (models.LocationState, error) {
	return t.apply(name, models.LocationState{
		Status:    models.StatusAudited,
		UpdatedAt: at,
		UpdatedBy: teamMember,
	})
}

// MarkEmpty flags the location as physically empty.
func (t *Tracker) MarkEmpty(name, by string, at time.Time) (models.LocationState, error) {
	return t.apply(name, models.LocationState{
		Status:    models.StatusEmpty,
		UpdatedAt: at,
		UpdatedBy: by,
	})
}

// ReportDamage flags the location as damaged. A description is mandatory,
// the photo is optional.
func (t *Tracker) ReportDamage(name string, change models.StatusChange, at time.Time) (models.LocationState, error) {
	description := strings.TrimSpace(change.Description)
	if description == "" {
		return models.LocationState{}, ErrDescriptionRequired
	}

	return t.apply(name, models.LocationState{
		Status:            models.StatusDamaged,
		UpdatedAt:         at,
		UpdatedBy:         change.ReportedBy,
		Photo:             change.Photo,
		DamageDescription: description,
		ReportedBy:        change.ReportedBy,
	})
}

func (t *Tracker) apply(name string, next models.LocationState) (models.LocationState, error) {
	key := Key(name)
	if key == "" {
		return models.LocationState{}, ErrLocationRequired
	}
	if _, ok := t.canonical[key]; !ok {
		t.canonical[key] = strings.TrimSpace(name)
	}

	next.Location = t.canonical[key]
	t.states[key] = next
	return next, nil
}

// Checklist lists declared locations first, in declaration order, followed
// by undeclared locations that have a stored state, sorted by name.
func (t *Tracker) Checklist() models.Checklist {
	list := models.Checklist{
		NeedsAttention: []models.ChecklistEntry{},
		Completed:      []models.ChecklistEntry{},
	}

	for _, key := range t.keys() {
		entry := models.ChecklistEntry{
			Location: t.canonical[key],
			Zone:     t.zones[key],
			Status:   models.StatusPending,
		}
		if st, ok := t.states[key]; ok {
			entry.Status = st.Status
			updated := st.UpdatedAt
			entry.UpdatedAt = &updated
			entry.Damage = st.DamageDescription
		}

		if entry.Status.NeedsAttention() {
			list.NeedsAttention = append(list.NeedsAttention, entry)
		} else {
			list.Completed = append(list.Completed, entry)
		}
	}

	return list
}

// Counts tallies every known location by status.
func (t *Tracker) Counts() models.StatusCounts {
	var counts models.StatusCounts
	for _, key := range t.keys() {
		switch t.Status(key) {
		case models.StatusAudited:
			counts.Audited++
		case models.StatusEmpty:
			counts.Empty++
		case models.StatusDamaged:
			counts.Damaged++
		default:
			counts.Pending++
		}
	}
	return counts
}

func (t *Tracker) keys() []string {
	keys := make([]string, 0, len(t.declared)+len(t.states))
	keys = append(keys, t.declared...)

	declared := make(map[string]struct{}, len(t.declared))
	for _, k := range t.declared {
		declared[k] = struct{}{}
	}

	var extra []string
	for k := range t.states {
		if _, ok := declared[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	return append(keys, extra...)
}

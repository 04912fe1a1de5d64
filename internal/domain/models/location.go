package models

import (
	"fmt"
	"strings"
	"time"
)

// LocationStatus is the lifecycle state of a physical location.
type LocationStatus string

const (
	StatusPending LocationStatus = "pending"
	StatusAudited LocationStatus = "audited"
	StatusEmpty   LocationStatus = "empty"
	StatusDamaged LocationStatus = "damaged"
)

// ParseLocationStatus maps a stored or requested status string onto the
// variant. Blank input is Pending, which is how absence is represented.
func ParseLocationStatus(raw string) (LocationStatus, error) {
	switch LocationStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusPending:
		return StatusPending, nil
	case StatusAudited:
		return StatusAudited, nil
	case StatusEmpty:
		return StatusEmpty, nil
	case StatusDamaged:
		return StatusDamaged, nil
	default:
		return StatusPending, fmt.Errorf("unknown location status %q", raw)
	}
}

// NeedsAttention reports whether the location still needs an operator visit.
func (s LocationStatus) NeedsAttention() bool {
	return s == StatusPending || s == StatusDamaged
}

// Completed is the complement of NeedsAttention.
func (s LocationStatus) Completed() bool {
	return s == StatusAudited || s == StatusEmpty
}

// LocationState is the current state document of one location. Damage
// fields are only populated while the status is damaged.
type LocationState struct {
	Location          string         `bson:"location" json:"location"`
	Status            LocationStatus `bson:"status" json:"status"`
	UpdatedAt         time.Time      `bson:"updated_at" json:"updated_at"`
	UpdatedBy         string         `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	Photo             string         `bson:"photo,omitempty" json:"photo,omitempty"`
	DamageDescription string         `bson:"damage_description,omitempty" json:"damage_description,omitempty"`
	ReportedBy        string         `bson:"reported_by,omitempty" json:"reported_by,omitempty"`
}

// DamageReport is an append-only log entry written for every damage report,
// so history survives later audits that clear the current damaged state.
type DamageReport struct {
	ID          string    `bson:"id" json:"id"`
	Location    string    `bson:"location" json:"location"`
	Description string    `bson:"description" json:"description"`
	Photo       string    `bson:"photo,omitempty" json:"photo,omitempty"`
	ReportedBy  string    `bson:"reported_by" json:"reported_by"`
	ReportedAt  time.Time `bson:"reported_at" json:"reported_at"`
}

// StatusChange carries the operator metadata for an explicit status action.
type StatusChange struct {
	Description string `json:"description"`
	Photo       string `json:"photo"`
	ReportedBy  string `json:"reported_by"`
}

// ChecklistEntry is one location row in the checklist view.
type ChecklistEntry struct {
	Location  string         `json:"location"`
	Zone      string         `json:"zone"`
	Status    LocationStatus `json:"status"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	Damage    string         `json:"damage,omitempty"`
}

// Checklist splits locations into the two checklist buckets.
type Checklist struct {
	NeedsAttention []ChecklistEntry `json:"needs_attention"`
	Completed      []ChecklistEntry `json:"completed"`
}

package models

import "time"

// AuditRecord is one physical-count submission. Variance and SystemQty are
// snapshots taken at submission time and are not recomputed on edit unless
// the operator asks for it.
type AuditRecord struct {
	ID          string    `bson:"id" json:"id"`
	SKU         string    `bson:"sku" json:"sku"`
	ItemName    string    `bson:"item_name" json:"item_name"`
	Location    string    `bson:"location" json:"location"`
	BatchNumber string    `bson:"batch_number" json:"batch_number"`
	ExpiryDate  string    `bson:"expiry_date" json:"expiry_date"`
	SystemQty   int       `bson:"system_qty" json:"system_qty"`
	PhysicalQty int       `bson:"physical_qty" json:"physical_qty"`
	Variance    int       `bson:"variance" json:"variance"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	TeamMember  string    `bson:"team_member" json:"team_member"`
	Notes       string    `bson:"notes" json:"notes"`
	Photos      []string  `bson:"photos,omitempty" json:"photos,omitempty"`
}

// EntryRequest is the payload of an audit form submission.
type EntryRequest struct {
	SKU         string   `json:"sku" binding:"required"`
	ItemName    string   `json:"item_name"`
	Location    string   `json:"location" binding:"required"`
	BatchNumber string   `json:"batch_number"`
	ExpiryDate  string   `json:"expiry_date"`
	PhysicalQty int      `json:"physical_qty" binding:"min=0"`
	Notes       string   `json:"notes"`
	Photos      []string `json:"photos"`
}

// EntryEdit lists the fields an operator may correct on a saved record.
// Nil fields are left untouched.
type EntryEdit struct {
	PhysicalQty *int    `json:"physical_qty,omitempty"`
	Location    *string `json:"location,omitempty"`
	BatchNumber *string `json:"batch_number,omitempty"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	// Recompute refreshes SystemQty and Variance from the current catalog.
	Recompute bool `json:"recompute"`
}

// EvaluateRequest is the live-feedback query sent while an entry is typed.
type EvaluateRequest struct {
	SKU         string `json:"sku" binding:"required"`
	Location    string `json:"location"`
	PhysicalQty int    `json:"physical_qty" binding:"min=0"`
}

// EntryEvaluation is the live feedback shown on the count form.
type EntryEvaluation struct {
	SKU            string `json:"sku"`
	Location       string `json:"location"`
	SystemStock    int    `json:"system_stock"`
	ExistingTotal  int    `json:"existing_total"`
	GlobalTotal    int    `json:"global_total"`
	Variance       int    `json:"variance"`
	PercentDiff    int    `json:"percent_diff"`
	Significant    bool   `json:"significant"`
	EvidenceNeeded bool   `json:"evidence_needed"`
}

// SubmitResult reports how a submission was persisted.
type SubmitResult struct {
	Record       AuditRecord     `json:"record"`
	Evaluation   EntryEvaluation `json:"evaluation"`
	SavedLocally bool            `json:"saved_locally"`
	// Warning describes a follow-up write that failed after the record was saved.
	Warning      string          `json:"warning,omitempty"`
}

// Package inspection defines the record shapes written by the inspection and
// notification flows. These are the payloads stored in queued actions, so their
// JSON form must stay stable across releases.
package inspection

import (
	"strings"
	"time"

	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// Result is the overall outcome of an inspection.
type Result string

const (
	ResultPass Result = "pass"
	ResultFail Result = "fail"
)

// PPEStatus is the service state of an equipment item.
type PPEStatus string

const (
	PPEStatusActive       PPEStatus = "active"
	PPEStatusFlagged      PPEStatus = "flagged"
	PPEStatusExpired      PPEStatus = "expired"
	PPEStatusMaintenance  PPEStatus = "maintenance"
	PPEStatusOutOfService PPEStatus = "out_of_service"
)

// ChecklistItem is one answered checkpoint of an inspection.
type ChecklistItem struct {
	CheckpointID string `json:"checkpoint_id"`
	Passed       *bool  `json:"passed"`
	Notes        string `json:"notes,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// Record is an inspection submission.
type Record struct {
	ID            string          `json:"id,omitempty"`
	PPEID         string          `json:"ppe_id"`
	InspectorID   string          `json:"inspector_id"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	OverallResult Result          `json:"overall_result"`
	Notes         string          `json:"notes,omitempty"`
	SignatureURL  string          `json:"signature_url,omitempty"`
	Results       []ChecklistItem `json:"results"`
}

// Validate checks the fields every submission needs.
func (r *Record) Validate() error {
	switch {
	case strings.TrimSpace(r.PPEID) == "":
		return domainErrors.NewError(domainErrors.CodeValidation, "ppe_id is required", domainErrors.ErrInvalidAction)
	case strings.TrimSpace(r.InspectorID) == "":
		return domainErrors.NewError(domainErrors.CodeValidation, "inspector_id is required", domainErrors.ErrInvalidAction)
	case r.OverallResult != ResultPass && r.OverallResult != ResultFail:
		return domainErrors.NewError(domainErrors.CodeValidation, "overall_result must be pass or fail", domainErrors.ErrInvalidAction)
	}
	return nil
}

// DerivedPPEStatus returns the equipment status implied by this inspection.
func (r *Record) DerivedPPEStatus() PPEStatus {
	if r.OverallResult == ResultFail {
		return PPEStatusFlagged
	}
	return PPEStatusActive
}

// PPEUpdate patches an equipment record. ID selects the row; the rest is the patch.
type PPEUpdate struct {
	ID             string     `json:"id"`
	Status         PPEStatus  `json:"status,omitempty"`
	LastInspection *time.Time `json:"last_inspection,omitempty"`
	NextInspection *time.Time `json:"next_inspection,omitempty"`
}

// Validate checks that the update targets a record.
func (u *PPEUpdate) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, "ppe id is required", domainErrors.ErrInvalidAction)
	}
	return nil
}

// Notification is a user-facing notice stored remotely.
type Notification struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationPatch updates fields of one notification.
type NotificationPatch struct {
	ID   string `json:"id"`
	Read *bool  `json:"read,omitempty"`
}

// NotificationRef identifies a single notification.
type NotificationRef struct {
	ID string `json:"id"`
}

// UserRef identifies the owner of a set of notifications.
type UserRef struct {
	UserID string `json:"user_id"`
}

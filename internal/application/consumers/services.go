package consumers

import (
	"context"
	"strings"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/inspection"
)

// InspectionService submits inspections.
type InspectionService struct {
	writer *Writer
	now    func() time.Time
}

// NewInspectionService creates an InspectionService.
func NewInspectionService(w *Writer) *InspectionService {
	return &InspectionService{writer: w, now: time.Now}
}

// Submit records the inspection and then updates the inspected item's status
// and last inspection date. The result is Queued if either write was deferred.
func (s *InspectionService) Submit(ctx context.Context, rec inspection.Record) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return Outcome{}, err
	}
	if rec.Date.IsZero() {
		rec.Date = s.now().UTC()
	}

	created, err := s.writer.Write(ctx, action.TypeCreateInspection, rec)
	if err != nil {
		return Outcome{}, err
	}

	inspected := rec.Date
	updated, err := s.writer.Write(ctx, action.TypeUpdatePPE, inspection.PPEUpdate{
		ID:             rec.PPEID,
		Status:         rec.DerivedPPEStatus(),
		LastInspection: &inspected,
	})
	if err != nil {
		return created, err
	}
	return Outcome{Queued: created.Queued || updated.Queued}, nil
}

// PPEService updates equipment records.
type PPEService struct {
	writer *Writer
}

// NewPPEService creates a PPEService.
func NewPPEService(w *Writer) *PPEService {
	return &PPEService{writer: w}
}

// UpdateStatus patches one equipment record.
func (s *PPEService) UpdateStatus(ctx context.Context, upd inspection.PPEUpdate) (Outcome, error) {
	if err := upd.Validate(); err != nil {
		return Outcome{}, err
	}
	return s.writer.Write(ctx, action.TypeUpdatePPE, upd)
}

// NotificationService mutates a user's notifications.
type NotificationService struct {
	writer *Writer
	now    func() time.Time
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(w *Writer) *NotificationService {
	return &NotificationService{writer: w, now: time.Now}
}

// Add creates a notification.
func (s *NotificationService) Add(ctx context.Context, n inspection.Notification) (Outcome, error) {
	if err := requireField("user_id", n.UserID); err != nil {
		return Outcome{}, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	return s.writer.Write(ctx, action.TypeAddNotification, n)
}

// Update patches one notification.
func (s *NotificationService) Update(ctx context.Context, patch inspection.NotificationPatch) (Outcome, error) {
	if err := requireField("id", patch.ID); err != nil {
		return Outcome{}, err
	}
	if patch.Read == nil {
		return Outcome{}, domainErrors.NewError(domainErrors.CodeValidation, "notification patch is empty", domainErrors.ErrInvalidAction)
	}
	return s.writer.Write(ctx, action.TypeUpdateNotification, patch)
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (Outcome, error) {
	if err := requireField("user_id", userID); err != nil {
		return Outcome{}, err
	}
	return s.writer.Write(ctx, action.TypeMarkAllRead, inspection.UserRef{UserID: userID})
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, id string) (Outcome, error) {
	if err := requireField("id", id); err != nil {
		return Outcome{}, err
	}
	return s.writer.Write(ctx, action.TypeDeleteNotification, inspection.NotificationRef{ID: id})
}

// DeleteAll removes every notification of the user.
func (s *NotificationService) DeleteAll(ctx context.Context, userID string) (Outcome, error) {
	if err := requireField("user_id", userID); err != nil {
		return Outcome{}, err
	}
	return s.writer.Write(ctx, action.TypeDeleteAllNotifications, inspection.UserRef{UserID: userID})
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, name+" is required", domainErrors.ErrInvalidAction)
	}
	return nil
}

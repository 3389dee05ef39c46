package notification

import (
	"context"
	"time"

	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
)

// Notification is the domain view of an in-app notification.
type Notification struct {
	ID            int64      `json:"id"`
	OrgID         int64      `json:"org_id"`
	UserID        int64      `json:"user_id"`
	RequisitionID int64      `json:"requisition_id"`
	ToStatus      string     `json:"to_status"`
	Message       string     `json:"message"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RepositoryAPI is the data access for notifications and their delivery jobs.
type RepositoryAPI interface {
	Create(n *notificationDatamodel.Notification) error
	GetByID(id int64) (*notificationDatamodel.Notification, error)
	ListByUser(userID int64, limit, offset int) ([]*notificationDatamodel.Notification, error)
	UnreadCount(userID int64) (int64, error)
	MarkRead(id int64, readAt time.Time) error
	Delete(id int64) error

	CreateDeliveryJob(job *notificationDatamodel.DeliveryJob) error
	DueJobs(limit, maxAttempts int) ([]*notificationDatamodel.DeliveryJob, error)
	MarkJobSent(id int64) error
	MarkJobFailed(id int64, attempts int, lastError string) error
}

// RecipientDirectoryAPI resolves organization members by role for fan-out.
type RecipientDirectoryAPI interface {
	UserIDsWithRole(orgID int64, roles ...string) ([]int64, error)
}

// UserDirectoryAPI looks up display names and email addresses. Names are used
// only for message text, never for authorization.
type UserDirectoryAPI interface {
	DisplayName(userID int64) (string, error)
	EmailFor(userID int64) (string, error)
}

// EmailSenderAPI is the outbound email channel, best-effort and queued.
type EmailSenderAPI interface {
	Send(ctx context.Context, to, subject, body string) error
}

func FromDataModel(n *notificationDatamodel.Notification) *Notification {
	return &Notification{
		ID:            n.ID,
		OrgID:         n.OrgID,
		UserID:        n.UserID,
		RequisitionID: n.RequisitionID,
		ToStatus:      n.ToStatus,
		Message:       n.Message,
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt,
		CreatedAt:     n.CreatedAt,
	}
}

func FromDataModelSlice(rows []*notificationDatamodel.Notification) []*Notification {
	result := make([]*Notification, len(rows))
	for i, n := range rows {
		result[i] = FromDataModel(n)
	}
	return result
}

package postgres

import (
	"errors"
	"time"

	"github.com/procurex/requisition-engine/internal"
	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
	orgDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	"github.com/procurex/requisition-engine/internal/notification"
	"gorm.io/gorm"
)

// NotificationRepository implements notification.RepositoryAPI using GORM.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.RepositoryAPI {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(n *notificationDatamodel.Notification) error {
	return r.db.Create(n).Error
}

func (r *NotificationRepository) GetByID(id int64) (*notificationDatamodel.Notification, error) {
	var n notificationDatamodel.Notification
	err := r.db.Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrResourceNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) ListByUser(userID int64, limit, offset int) ([]*notificationDatamodel.Notification, error) {
	var rows []*notificationDatamodel.Notification
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (r *NotificationRepository) UnreadCount(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&notificationDatamodel.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) MarkRead(id int64, readAt time.Time) error {
	return r.db.Model(&notificationDatamodel.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		}).Error
}

func (r *NotificationRepository) Delete(id int64) error {
	return r.db.Delete(&notificationDatamodel.Notification{}, id).Error
}

func (r *NotificationRepository) CreateDeliveryJob(job *notificationDatamodel.DeliveryJob) error {
	return r.db.Create(job).Error
}

// DueJobs returns pending and retryable failed jobs, oldest first.
func (r *NotificationRepository) DueJobs(limit, maxAttempts int) ([]*notificationDatamodel.DeliveryJob, error) {
	var jobs []*notificationDatamodel.DeliveryJob
	err := r.db.
		Where("status = ? OR (status = ? AND attempts < ?)",
			notificationDatamodel.DeliveryStatusPending,
			notificationDatamodel.DeliveryStatusFailed,
			maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *NotificationRepository) MarkJobSent(id int64) error {
	return r.db.Model(&notificationDatamodel.DeliveryJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     notificationDatamodel.DeliveryStatusSent,
			"updated_at": time.Now(),
		}).Error
}

func (r *NotificationRepository) MarkJobFailed(id int64, attempts int, lastError string) error {
	return r.db.Model(&notificationDatamodel.DeliveryJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     notificationDatamodel.DeliveryStatusFailed,
			"attempts":   attempts,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
}

// RecipientDirectory implements notification.RecipientDirectoryAPI over
// membership rows.
type RecipientDirectory struct {
	db *gorm.DB
}

func NewRecipientDirectory(db *gorm.DB) notification.RecipientDirectoryAPI {
	return &RecipientDirectory{db: db}
}

func (d *RecipientDirectory) UserIDsWithRole(orgID int64, roles ...string) ([]int64, error) {
	var ids []int64
	err := d.db.Model(&orgDatamodel.Membership{}).
		Where("org_id = ? AND role IN ? AND is_active = ?", orgID, roles, true).
		Pluck("user_id", &ids).Error
	return ids, err
}

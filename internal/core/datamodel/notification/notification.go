package notification

import "time"

// Notification is the per-user in-app record written by the dispatcher.
// UI code never creates these directly; only the owning user reads,
// marks or deletes them.
type Notification struct {
	ID            int64      `json:"id" gorm:"primaryKey"`
	OrgID         int64      `json:"org_id" gorm:"column:org_id;not null;index"`
	UserID        int64      `json:"user_id" gorm:"column:user_id;not null;index"`
	RequisitionID int64      `json:"requisition_id" gorm:"column:requisition_id;not null;index"`
	ToStatus      string     `json:"to_status" gorm:"column:to_status;not null"`
	Message       string     `json:"message" gorm:"not null"`
	IsRead        bool       `json:"is_read" gorm:"column:is_read;default:false"`
	ReadAt        *time.Time `json:"read_at,omitempty" gorm:"column:read_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (Notification) TableName() string {
	return "notifications"
}

// DeliveryJob tracks the out-of-band email delivery for a notification with a
// bounded retry count. The workflow transition never waits on it.
type DeliveryJob struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	NotificationID int64     `json:"notification_id" gorm:"column:notification_id;not null;index"`
	Channel        string    `json:"channel" gorm:"not null;default:email"`
	Status         string    `json:"status" gorm:"not null;default:pending;index"`
	Attempts       int       `json:"attempts" gorm:"default:0"`
	LastError      *string   `json:"last_error,omitempty" gorm:"column:last_error"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (DeliveryJob) TableName() string {
	return "notification_delivery_jobs"
}

const (
	ChannelEmail = "email"

	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
)

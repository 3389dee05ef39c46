package organization

import "time"

// Organization is the tenant isolation boundary. Every mutable row in the
// system carries its ID. Organizations are soft-suspended, never hard-deleted
// while data exists.
type Organization struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Status    string    `json:"status" gorm:"column:status;default:active"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Organization) TableName() string {
	return "organizations"
}

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Membership binds a user to an organization with exactly one role. The role
// determines which requisition transitions the user may execute.
type Membership struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	OrgID     int64     `json:"org_id" gorm:"column:org_id;not null;index"`
	UserID    int64     `json:"user_id" gorm:"column:user_id;not null;index"`
	Role      string    `json:"role" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Membership) TableName() string {
	return "memberships"
}

const (
	RoleSubmitter    = "submitter"
	RoleReviewer     = "reviewer"
	RoleApprover     = "approver"
	RoleStoreManager = "store_manager"
	RoleSuperAdmin   = "super_admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleSubmitter, RoleReviewer, RoleApprover, RoleStoreManager, RoleSuperAdmin:
		return true
	}
	return false
}

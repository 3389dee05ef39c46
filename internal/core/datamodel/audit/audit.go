package audit

import "time"

// CrossTenantAccessLog records an attempt to act on a resource owned by a
// different organization. Write-only from the application's perspective.
type CrossTenantAccessLog struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	ResourceType  string    `json:"resource_type" gorm:"column:resource_type;not null"`
	ResourceID    int64     `json:"resource_id" gorm:"column:resource_id;not null"`
	ResourceOrgID int64     `json:"resource_org_id" gorm:"column:resource_org_id;not null"`
	Action        string    `json:"action" gorm:"not null"`
	CallerOrgID   int64     `json:"caller_org_id" gorm:"column:caller_org_id;not null;index"`
	ActorID       int64     `json:"actor_id" gorm:"column:actor_id;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (CrossTenantAccessLog) TableName() string {
	return "cross_tenant_access_logs"
}

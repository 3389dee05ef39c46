package project

import "time"

// Project carries the budget a requisition draws against. A nil or zero
// Budget means unlimited. SpentAmount is the cumulative approved total and is
// mutated only by the budget ledger on approval.
type Project struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	OrgID       int64     `json:"org_id" gorm:"column:org_id;not null;index"`
	Name        string    `json:"name" gorm:"not null"`
	Budget      *int64    `json:"budget,omitempty" gorm:"column:budget"`
	SpentAmount int64     `json:"spent_amount" gorm:"column:spent_amount;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Project) TableName() string {
	return "projects"
}

// Unlimited reports whether the project has no budget cap.
func (p *Project) Unlimited() bool {
	return p.Budget == nil || *p.Budget == 0
}

// ExpenseAccount optionally partitions spend within a project.
type ExpenseAccount struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	OrgID     int64     `json:"org_id" gorm:"column:org_id;not null;index"`
	ProjectID int64     `json:"project_id" gorm:"column:project_id;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (ExpenseAccount) TableName() string {
	return "expense_accounts"
}

package requisition

import "time"

// Requisition is the central workflow row. Content becomes immutable once it
// leaves draft; only status and its companion fields change thereafter.
type Requisition struct {
	ID               int64      `json:"id" gorm:"primaryKey"`
	OrgID            int64      `json:"org_id" gorm:"column:org_id;not null;index"`
	ProjectID        int64      `json:"project_id" gorm:"column:project_id;not null;index"`
	ExpenseAccountID *int64     `json:"expense_account_id,omitempty" gorm:"column:expense_account_id"`
	Number           string     `json:"number" gorm:"uniqueIndex;not null"`
	Status           string     `json:"status" gorm:"not null;default:draft;index"`
	TotalAmount      int64      `json:"total_amount" gorm:"column:total_amount;not null;default:0"`
	SubmittedBy      int64      `json:"submitted_by" gorm:"column:submitted_by;not null"`
	ReviewedBy       *int64     `json:"reviewed_by,omitempty" gorm:"column:reviewed_by"`
	ApprovedBy       *int64     `json:"approved_by,omitempty" gorm:"column:approved_by"`
	RejectionReason  *string    `json:"rejection_reason,omitempty" gorm:"column:rejection_reason"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty" gorm:"column:submitted_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty" gorm:"column:reviewed_at"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`
	CreatedAt        time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Requisition) TableName() string {
	return "requisitions"
}

// RequisitionItem belongs to exactly one requisition. LineTotal is
// quantity times unit price; the sum of line totals must equal the
// requisition's TotalAmount at submission time.
type RequisitionItem struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	OrgID         int64     `json:"org_id" gorm:"column:org_id;not null;index"`
	RequisitionID int64     `json:"requisition_id" gorm:"column:requisition_id;not null;index"`
	Description   string    `json:"description" gorm:"not null"`
	Quantity      int64     `json:"quantity" gorm:"not null"`
	UnitPrice     int64     `json:"unit_price" gorm:"column:unit_price;not null"`
	LineTotal     int64     `json:"line_total" gorm:"column:line_total;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (RequisitionItem) TableName() string {
	return "requisition_items"
}

// Comment records workflow annotations and free-text feedback on a
// requisition. IsInternal comments are hidden from the submitter.
type Comment struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	OrgID         int64     `json:"org_id" gorm:"column:org_id;not null;index"`
	RequisitionID int64     `json:"requisition_id" gorm:"column:requisition_id;not null;index"`
	AuthorID      int64     `json:"author_id" gorm:"column:author_id;not null"`
	Body          string    `json:"body" gorm:"not null"`
	IsInternal    bool      `json:"is_internal" gorm:"column:is_internal;default:false"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (Comment) TableName() string {
	return "requisition_comments"
}

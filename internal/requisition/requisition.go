package requisition

import (
	"time"

	"github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	requisitionDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/requisition"
)

// Requisition lifecycle statuses. Approved is terminal; rejected is terminal
// except for the resubmission edge back to draft.
const (
	StatusDraft       = "draft"
	StatusPending     = "pending"
	StatusUnderReview = "under_review"
	StatusReviewed    = "reviewed"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPending, StatusUnderReview, StatusReviewed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges other than the
// explicit rejected -> draft resubmission.
func IsTerminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

type edge struct {
	from string
	to   string
}

// transitionRoles is the explicit authorization matrix: which roles may walk
// which edge. This replaces policy checks in the storage layer so the matrix
// is testable without a database.
var transitionRoles = map[edge][]string{
	{StatusDraft, StatusPending}:         {organization.RoleSubmitter},
	{StatusPending, StatusUnderReview}:   {organization.RoleReviewer, organization.RoleSuperAdmin},
	{StatusPending, StatusReviewed}:      {organization.RoleReviewer, organization.RoleSuperAdmin},
	{StatusUnderReview, StatusReviewed}:  {organization.RoleReviewer, organization.RoleSuperAdmin},
	{StatusPending, StatusApproved}:      {organization.RoleSuperAdmin},
	{StatusUnderReview, StatusApproved}:  {organization.RoleApprover, organization.RoleSuperAdmin},
	{StatusReviewed, StatusApproved}:     {organization.RoleApprover, organization.RoleSuperAdmin},
	{StatusPending, StatusRejected}:      {organization.RoleReviewer, organization.RoleApprover, organization.RoleSuperAdmin},
	{StatusUnderReview, StatusRejected}:  {organization.RoleReviewer, organization.RoleApprover, organization.RoleSuperAdmin},
	{StatusReviewed, StatusRejected}:     {organization.RoleApprover, organization.RoleSuperAdmin},
	{StatusRejected, StatusDraft}:        {organization.RoleSubmitter},
}

// ownerOnlyEdges are edges only the original submitter may walk.
var ownerOnlyEdges = map[edge]bool{
	{StatusDraft, StatusPending}:  true,
	{StatusRejected, StatusDraft}: true,
}

// Authorize decides whether an actor with the given role may move a
// requisition from one status to another. Super admins may move a requisition
// to any state from any non-terminal state, an explicit escape hatch for
// operational correction. Owner-only edges additionally require the actor to
// be the original submitter.
func Authorize(from, to, role string, isOwner bool) error {
	if from == to || !ValidStatus(to) {
		return internal.ErrInvalidTransition
	}

	if role == organization.RoleSuperAdmin && !IsTerminal(from) && !ownerOnlyEdges[edge{from, to}] {
		return nil
	}

	roles, ok := transitionRoles[edge{from, to}]
	if !ok {
		return internal.ErrInvalidTransition
	}

	allowed := false
	for _, r := range roles {
		if r == role {
			allowed = true
			break
		}
	}
	if !allowed {
		return internal.ErrUnauthorized
	}

	if ownerOnlyEdges[edge{from, to}] && !isOwner {
		return internal.ErrUnauthorized
	}

	return nil
}

// Requisition is the domain view of the workflow entity.
type Requisition struct {
	ID               int64      `json:"id"`
	OrgID            int64      `json:"org_id"`
	ProjectID        int64      `json:"project_id"`
	ExpenseAccountID *int64     `json:"expense_account_id,omitempty"`
	Number           string     `json:"number"`
	Status           string     `json:"status"`
	TotalAmount      int64      `json:"total_amount"`
	SubmittedBy      int64      `json:"submitted_by"`
	ReviewedBy       *int64     `json:"reviewed_by,omitempty"`
	ApprovedBy       *int64     `json:"approved_by,omitempty"`
	RejectionReason  *string    `json:"rejection_reason,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Items            []*Item    `json:"items,omitempty"`
}

// Editable reports whether item content may still change.
func (r *Requisition) Editable() bool {
	return r.Status == StatusDraft
}

type Item struct {
	ID            int64     `json:"id"`
	OrgID         int64     `json:"org_id"`
	RequisitionID int64     `json:"requisition_id"`
	Description   string    `json:"description"`
	Quantity      int64     `json:"quantity"`
	UnitPrice     int64     `json:"unit_price"`
	LineTotal     int64     `json:"line_total"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Comment struct {
	ID            int64     `json:"id"`
	OrgID         int64     `json:"org_id"`
	RequisitionID int64     `json:"requisition_id"`
	AuthorID      int64     `json:"author_id"`
	Body          string    `json:"body"`
	IsInternal    bool      `json:"is_internal"`
	CreatedAt     time.Time `json:"created_at"`
}

func FromDataModel(r *requisitionDatamodel.Requisition) *Requisition {
	return &Requisition{
		ID:               r.ID,
		OrgID:            r.OrgID,
		ProjectID:        r.ProjectID,
		ExpenseAccountID: r.ExpenseAccountID,
		Number:           r.Number,
		Status:           r.Status,
		TotalAmount:      r.TotalAmount,
		SubmittedBy:      r.SubmittedBy,
		ReviewedBy:       r.ReviewedBy,
		ApprovedBy:       r.ApprovedBy,
		RejectionReason:  r.RejectionReason,
		SubmittedAt:      r.SubmittedAt,
		ReviewedAt:       r.ReviewedAt,
		ApprovedAt:       r.ApprovedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func ItemFromDataModel(i *requisitionDatamodel.RequisitionItem) *Item {
	return &Item{
		ID:            i.ID,
		OrgID:         i.OrgID,
		RequisitionID: i.RequisitionID,
		Description:   i.Description,
		Quantity:      i.Quantity,
		UnitPrice:     i.UnitPrice,
		LineTotal:     i.LineTotal,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func ItemsFromDataModel(items []*requisitionDatamodel.RequisitionItem) []*Item {
	result := make([]*Item, len(items))
	for i, item := range items {
		result[i] = ItemFromDataModel(item)
	}
	return result
}

func CommentFromDataModel(c *requisitionDatamodel.Comment) *Comment {
	return &Comment{
		ID:            c.ID,
		OrgID:         c.OrgID,
		RequisitionID: c.RequisitionID,
		AuthorID:      c.AuthorID,
		Body:          c.Body,
		IsInternal:    c.IsInternal,
		CreatedAt:     c.CreatedAt,
	}
}

func CommentsFromDataModel(comments []*requisitionDatamodel.Comment) []*Comment {
	result := make([]*Comment, len(comments))
	for i, c := range comments {
		result[i] = CommentFromDataModel(c)
	}
	return result
}

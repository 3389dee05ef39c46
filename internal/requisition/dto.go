package requisition

import (
	"errors"
)

// CreateRequisitionDTO is the request payload for creating a draft
// requisition. Items are optional at creation; submission requires at least
// one.
type CreateRequisitionDTO struct {
	ProjectID        int64     `json:"project_id" validate:"required"`
	ExpenseAccountID *int64    `json:"expense_account_id,omitempty"`
	Items            []ItemDTO `json:"items,omitempty"`
}

type ItemDTO struct {
	Description string `json:"description" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"required,min=1"`
	UnitPrice   int64  `json:"unit_price" validate:"required,min=1"`
}

func (dto CreateRequisitionDTO) Validate() error {
	if dto.ProjectID <= 0 {
		return errors.New("project_id is required")
	}
	for _, item := range dto.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (dto ItemDTO) Validate() error {
	if dto.Description == "" {
		return errors.New("item description is required")
	}
	if dto.Quantity <= 0 {
		return errors.New("item quantity must be greater than 0")
	}
	if dto.UnitPrice <= 0 {
		return errors.New("item unit price must be greater than 0")
	}
	return nil
}

// LineTotal computes quantity times unit price.
func (dto ItemDTO) LineTotal() int64 {
	return dto.Quantity * dto.UnitPrice
}

// TransitionDTO is the request payload for a status transition. Note is
// required when rejecting.
type TransitionDTO struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

func (dto TransitionDTO) Validate() error {
	if dto.Status == "" {
		return errors.New("status is required")
	}
	if !ValidStatus(dto.Status) {
		return errors.New("unknown status")
	}
	if dto.Status == StatusRejected && (dto.Note == nil || *dto.Note == "") {
		return errors.New("a reason is required when rejecting a requisition")
	}
	return nil
}

// CommentDTO is the request payload for attaching a comment.
type CommentDTO struct {
	Body       string `json:"body" validate:"required"`
	IsInternal bool   `json:"is_internal"`
}

func (dto CommentDTO) Validate() error {
	if dto.Body == "" {
		return errors.New("comment body is required")
	}
	if len(dto.Body) > 2000 {
		return errors.New("comment body must be less than 2000 characters")
	}
	return nil
}

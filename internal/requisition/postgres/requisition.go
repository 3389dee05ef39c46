package postgres

import (
	"errors"
	"time"

	"github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/core/database"
	projectDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/project"
	requisitionDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/requisition"
	"github.com/procurex/requisition-engine/internal/requisition"
	"gorm.io/gorm"
)

// RequisitionRepository implements requisition.RepositoryAPI using GORM. All
// methods run inside the transaction handed in by the service.
type RequisitionRepository struct{}

func NewRequisitionRepository() requisition.RepositoryAPI {
	return &RequisitionRepository{}
}

func (r *RequisitionRepository) Create(tx *gorm.DB, req *requisitionDatamodel.Requisition, items []*requisitionDatamodel.RequisitionItem) error {
	if err := tx.Create(req).Error; err != nil {
		return err
	}
	for _, item := range items {
		item.RequisitionID = req.ID
		if err := tx.Create(item).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *RequisitionRepository) GetByID(tx *gorm.DB, id int64) (*requisitionDatamodel.Requisition, error) {
	var req requisitionDatamodel.Requisition
	err := tx.Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotFoundOrDenied
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequisitionRepository) GetForUpdate(tx *gorm.DB, id int64) (*requisitionDatamodel.Requisition, error) {
	var req requisitionDatamodel.Requisition
	err := database.LockForUpdate(tx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotFoundOrDenied
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequisitionRepository) ListByOrg(tx *gorm.DB, orgID int64, limit, offset int) ([]*requisitionDatamodel.Requisition, error) {
	var reqs []*requisitionDatamodel.Requisition
	err := tx.Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	return reqs, err
}

// UpdateTransition writes the status change guarded by the expected
// from-state. Returns false when the persisted status no longer matches,
// which means a concurrent transition already won.
func (r *RequisitionRepository) UpdateTransition(tx *gorm.DB, req *requisitionDatamodel.Requisition, expectedFrom string) (bool, error) {
	req.UpdatedAt = time.Now()
	result := tx.Model(&requisitionDatamodel.Requisition{}).
		Where("id = ? AND status = ?", req.ID, expectedFrom).
		Updates(map[string]interface{}{
			"status":           req.Status,
			"total_amount":     req.TotalAmount,
			"reviewed_by":      req.ReviewedBy,
			"approved_by":      req.ApprovedBy,
			"rejection_reason": req.RejectionReason,
			"submitted_at":     req.SubmittedAt,
			"reviewed_at":      req.ReviewedAt,
			"approved_at":      req.ApprovedAt,
			"updated_at":       req.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *RequisitionRepository) UpdateTotal(tx *gorm.DB, requisitionID, total int64) error {
	return tx.Model(&requisitionDatamodel.Requisition{}).
		Where("id = ?", requisitionID).
		Updates(map[string]interface{}{
			"total_amount": total,
			"updated_at":   time.Now(),
		}).Error
}

func (r *RequisitionRepository) GetItems(tx *gorm.DB, requisitionID int64) ([]*requisitionDatamodel.RequisitionItem, error) {
	var items []*requisitionDatamodel.RequisitionItem
	err := tx.Where("requisition_id = ?", requisitionID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *RequisitionRepository) GetItem(tx *gorm.DB, itemID int64) (*requisitionDatamodel.RequisitionItem, error) {
	var item requisitionDatamodel.RequisitionItem
	err := tx.Where("id = ?", itemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotFoundOrDenied
		}
		return nil, err
	}
	return &item, nil
}

func (r *RequisitionRepository) CountItems(tx *gorm.DB, requisitionID int64) (int64, error) {
	var count int64
	err := tx.Model(&requisitionDatamodel.RequisitionItem{}).
		Where("requisition_id = ?", requisitionID).
		Count(&count).Error
	return count, err
}

func (r *RequisitionRepository) ItemsTotal(tx *gorm.DB, requisitionID int64) (int64, error) {
	var total int64
	err := tx.Model(&requisitionDatamodel.RequisitionItem{}).
		Where("requisition_id = ?", requisitionID).
		Select("COALESCE(SUM(line_total), 0)").
		Scan(&total).Error
	return total, err
}

func (r *RequisitionRepository) AddItem(tx *gorm.DB, item *requisitionDatamodel.RequisitionItem) error {
	return tx.Create(item).Error
}

func (r *RequisitionRepository) UpdateItem(tx *gorm.DB, item *requisitionDatamodel.RequisitionItem) error {
	return tx.Save(item).Error
}

func (r *RequisitionRepository) DeleteItem(tx *gorm.DB, itemID int64) error {
	return tx.Delete(&requisitionDatamodel.RequisitionItem{}, itemID).Error
}

func (r *RequisitionRepository) CreateComment(tx *gorm.DB, comment *requisitionDatamodel.Comment) error {
	return tx.Create(comment).Error
}

func (r *RequisitionRepository) ListComments(tx *gorm.DB, requisitionID int64, includeInternal bool) ([]*requisitionDatamodel.Comment, error) {
	query := tx.Where("requisition_id = ?", requisitionID)
	if !includeInternal {
		query = query.Where("is_internal = ?", false)
	}
	var comments []*requisitionDatamodel.Comment
	err := query.Order("created_at ASC").Find(&comments).Error
	return comments, err
}

func (r *RequisitionRepository) GetProject(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error) {
	var proj projectDatamodel.Project
	err := tx.Where("id = ?", projectID).First(&proj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrResourceNotFound
		}
		return nil, err
	}
	return &proj, nil
}

func (r *RequisitionRepository) GetExpenseAccount(tx *gorm.DB, accountID int64) (*projectDatamodel.ExpenseAccount, error) {
	var account projectDatamodel.ExpenseAccount
	err := tx.Where("id = ?", accountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrResourceNotFound
		}
		return nil, err
	}
	return &account, nil
}

package postgres

import (
	"errors"
	"time"

	"github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/budget"
	"github.com/procurex/requisition-engine/internal/core/database"
	projectDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/project"
	requisitionDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/requisition"
	"gorm.io/gorm"
)

// reservation statuses: requisitions in these states hold budget.
var reservingStatuses = []string{"pending", "under_review"}

// ProjectRepository implements budget.ProjectRepositoryAPI using GORM.
type ProjectRepository struct{}

func NewProjectRepository() budget.ProjectRepositoryAPI {
	return &ProjectRepository{}
}

func (r *ProjectRepository) GetByID(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error) {
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

func (r *ProjectRepository) GetForUpdate(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error) {
	var proj projectDatamodel.Project
	err := database.LockForUpdate(tx).Where("id = ?", projectID).First(&proj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrResourceNotFound
		}
		return nil, err
	}
	return &proj, nil
}

// ReservedTotal sums the amounts of in-flight requisitions for the project,
// excluding the given requisition ID (zero excludes nothing).
func (r *ProjectRepository) ReservedTotal(tx *gorm.DB, projectID, excludingRequisitionID int64) (int64, error) {
	var total int64
	query := tx.Model(&requisitionDatamodel.Requisition{}).
		Where("project_id = ? AND status IN ?", projectID, reservingStatuses)
	if excludingRequisitionID != 0 {
		query = query.Where("id <> ?", excludingRequisitionID)
	}
	err := query.Select("COALESCE(SUM(total_amount), 0)").Scan(&total).Error
	return total, err
}

func (r *ProjectRepository) IncrementSpent(tx *gorm.DB, projectID, amount int64) error {
	result := tx.Model(&projectDatamodel.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"spent_amount": gorm.Expr("spent_amount + ?", amount),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrResourceNotFound
	}
	return nil
}

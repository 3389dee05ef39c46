package user

import (
	"errors"

	"gorm.io/gorm"

	userDomain "github.com/procurex/requisition-engine/internal/user"

	userDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(userID int64) (*userDomain.User, error) {
	var dm userDatamodel.User
	if err := r.db.First(&dm, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userDomain.ErrNotFound
		}
		return nil, err
	}
	return userDomain.FromDataModel(&dm), nil
}

func (r *Repository) GetByIDs(userIDs []int64) ([]*userDomain.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var dms []userDatamodel.User
	if err := r.db.Where("id IN ?", userIDs).Find(&dms).Error; err != nil {
		return nil, err
	}
	users := make([]*userDomain.User, 0, len(dms))
	for i := range dms {
		users = append(users, userDomain.FromDataModel(&dms[i]))
	}
	return users, nil
}

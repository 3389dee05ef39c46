package postgres

import (
	"time"

	"github.com/procurex/requisition-engine/internal/core/database"
	sequenceDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/sequence"
	"github.com/procurex/requisition-engine/internal/sequence"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository implements sequence.RepositoryAPI on a per-(kind, year)
// counter row locked FOR UPDATE.
type CounterRepository struct{}

func NewCounterRepository() sequence.RepositoryAPI {
	return &CounterRepository{}
}

// NextValue increments the counter for a (kind, year) pair under a row lock
// and returns the new value. A missing row is seeded with ON CONFLICT DO
// NOTHING first, so two transactions racing on the first allocation both
// reach the locked read and serialize there instead of aborting on the
// unique violation.
func (r *CounterRepository) NextValue(tx *gorm.DB, kind string, year int) (int64, error) {
	seed := sequenceDatamodel.DocumentCounter{
		Kind:      kind,
		Year:      year,
		LastValue: 0,
		UpdatedAt: time.Now(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "year"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return 0, err
	}

	var counter sequenceDatamodel.DocumentCounter
	err = database.LockForUpdate(tx).
		Where("kind = ? AND year = ?", kind, year).
		First(&counter).Error
	if err != nil {
		return 0, err
	}

	next := counter.LastValue + 1
	result := tx.Model(&sequenceDatamodel.DocumentCounter{}).
		Where("kind = ? AND year = ?", kind, year).
		Updates(map[string]interface{}{
			"last_value": next,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	return next, nil
}

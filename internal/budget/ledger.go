package budget

import (
	"context"
	"log/slog"

	projectDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/project"
	"gorm.io/gorm"
)

// ProjectRepositoryAPI is the data access the ledger needs. GetForUpdate must
// lock the project row so concurrent availability checks against the same
// project serialize with the eventual status write.
type ProjectRepositoryAPI interface {
	GetByID(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error)
	GetForUpdate(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error)
	ReservedTotal(tx *gorm.DB, projectID, excludingRequisitionID int64) (int64, error)
	IncrementSpent(tx *gorm.DB, projectID, amount int64) error
}

// View is the computed budget position of a project.
type View struct {
	ProjectID   int64  `json:"project_id"`
	Budget      *int64 `json:"budget,omitempty"`
	SpentAmount int64  `json:"spent_amount"`
	Reserved    int64  `json:"reserved"`
	Available   int64  `json:"available"`
	Unlimited   bool   `json:"unlimited"`
}

// Ledger computes available budget by netting committed spend against
// in-flight reservations (pending and under_review requisitions).
type Ledger struct {
	projects ProjectRepositoryAPI
	logger   *slog.Logger
}

func NewLedger(projects ProjectRepositoryAPI, logger *slog.Logger) *Ledger {
	return &Ledger{
		projects: projects,
		logger:   logger,
	}
}

// Available computes budget - spent - reservations. excludingRequisitionID
// removes the caller's own requisition from the reservation sum so that
// re-validating an already-pending requisition does not double-count itself;
// pass zero to exclude nothing. Projects with a nil or zero budget are
// unlimited and always report available.
func (l *Ledger) Available(ctx context.Context, tx *gorm.DB, projectID, excludingRequisitionID int64) (*View, error) {
	proj, err := l.projects.GetByID(tx.WithContext(ctx), projectID)
	if err != nil {
		return nil, err
	}
	return l.view(tx.WithContext(ctx), proj, excludingRequisitionID)
}

// CanReserve reports whether amount fits in the project's remaining budget.
// It locks the project row, so the answer stays valid until the enclosing
// transaction commits.
func (l *Ledger) CanReserve(ctx context.Context, tx *gorm.DB, projectID, amount, excludingRequisitionID int64) (bool, *View, error) {
	proj, err := l.projects.GetForUpdate(tx.WithContext(ctx), projectID)
	if err != nil {
		return false, nil, err
	}

	view, err := l.view(tx.WithContext(ctx), proj, excludingRequisitionID)
	if err != nil {
		return false, nil, err
	}

	if view.Unlimited {
		return true, view, nil
	}
	return amount <= view.Available, view, nil
}

// Commit increments the project's cumulative spend. Invoked only on the
// transition into approved, inside the same transaction as the status write.
func (l *Ledger) Commit(ctx context.Context, tx *gorm.DB, projectID, amount int64) error {
	if _, err := l.projects.GetForUpdate(tx.WithContext(ctx), projectID); err != nil {
		return err
	}
	if err := l.projects.IncrementSpent(tx.WithContext(ctx), projectID, amount); err != nil {
		return err
	}

	l.logger.Info("budget committed",
		"project_id", projectID,
		"amount", amount)
	return nil
}

func (l *Ledger) view(tx *gorm.DB, proj *projectDatamodel.Project, excludingRequisitionID int64) (*View, error) {
	reserved, err := l.projects.ReservedTotal(tx, proj.ID, excludingRequisitionID)
	if err != nil {
		return nil, err
	}

	view := &View{
		ProjectID:   proj.ID,
		Budget:      proj.Budget,
		SpentAmount: proj.SpentAmount,
		Reserved:    reserved,
		Unlimited:   proj.Unlimited(),
	}
	if !view.Unlimited {
		view.Available = *proj.Budget - proj.SpentAmount - reserved
	}
	return view, nil
}

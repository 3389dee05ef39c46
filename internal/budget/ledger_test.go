package budget_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/procurex/requisition-engine/internal/budget"
	projectDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/project"
)

func TestBudget(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Budget Ledger Suite")
}

type mockProjectRepository struct {
	project      *projectDatamodel.Project
	reserved     int64
	lastExcluded int64
	locked       bool
	spent        []int64
	getErr       error
}

func (m *mockProjectRepository) GetByID(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.project, nil
}

func (m *mockProjectRepository) GetForUpdate(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error) {
	m.locked = true
	return m.GetByID(tx, projectID)
}

func (m *mockProjectRepository) ReservedTotal(tx *gorm.DB, projectID, excludingRequisitionID int64) (int64, error) {
	m.lastExcluded = excludingRequisitionID
	return m.reserved, nil
}

func (m *mockProjectRepository) IncrementSpent(tx *gorm.DB, projectID, amount int64) error {
	m.spent = append(m.spent, amount)
	return nil
}

var _ = Describe("Ledger", func() {
	var (
		repo   *mockProjectRepository
		ledger *budget.Ledger
		db     *gorm.DB
		ctx    context.Context
	)

	newProject := func(cap *int64, spent int64) *projectDatamodel.Project {
		return &projectDatamodel.Project{ID: 7, OrgID: 1, Budget: cap, SpentAmount: spent}
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		repo = &mockProjectRepository{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		ledger = budget.NewLedger(repo, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Available", func() {
		It("nets spend and reservations against the budget", func() {
			cap := int64(10000)
			repo.project = newProject(&cap, 2500)
			repo.reserved = 3000

			view, err := ledger.Available(ctx, db, 7, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(view.Available).To(Equal(int64(4500)))
			Expect(view.SpentAmount).To(Equal(int64(2500)))
			Expect(view.Reserved).To(Equal(int64(3000)))
			Expect(view.Unlimited).To(BeFalse())
		})

		It("passes the exclusion through to the reservation sum", func() {
			cap := int64(10000)
			repo.project = newProject(&cap, 0)

			_, err := ledger.Available(ctx, db, 7, 42)
			Expect(err).ToNot(HaveOccurred())
			Expect(repo.lastExcluded).To(Equal(int64(42)))
		})

		It("reports a nil budget as unlimited with no available figure", func() {
			repo.project = newProject(nil, 9000)
			repo.reserved = 5000

			view, err := ledger.Available(ctx, db, 7, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(view.Unlimited).To(BeTrue())
			Expect(view.Available).To(Equal(int64(0)))
		})

		It("propagates a missing project", func() {
			repo.getErr = errors.New("record not found")

			_, err := ledger.Available(ctx, db, 7, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CanReserve", func() {
		It("accepts an amount equal to the remaining budget", func() {
			cap := int64(10000)
			repo.project = newProject(&cap, 4000)
			repo.reserved = 2000

			ok, view, err := ledger.CanReserve(ctx, db, 7, 4000, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(view.Available).To(Equal(int64(4000)))
		})

		It("refuses an amount one over the remaining budget", func() {
			cap := int64(10000)
			repo.project = newProject(&cap, 4000)
			repo.reserved = 2000

			ok, view, err := ledger.CanReserve(ctx, db, 7, 4001, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(view.Available).To(Equal(int64(4000)))
		})

		It("always accepts against an unlimited project", func() {
			repo.project = newProject(nil, 0)

			ok, _, err := ledger.CanReserve(ctx, db, 7, 1_000_000_000, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("treats a zero budget as unlimited", func() {
			zero := int64(0)
			repo.project = newProject(&zero, 0)

			ok, view, err := ledger.CanReserve(ctx, db, 7, 500, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(view.Unlimited).To(BeTrue())
		})

		It("locks the project row before deciding", func() {
			cap := int64(100)
			repo.project = newProject(&cap, 0)

			_, _, err := ledger.CanReserve(ctx, db, 7, 50, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(repo.locked).To(BeTrue())
		})
	})

	Describe("Commit", func() {
		It("increments spend under the row lock", func() {
			cap := int64(10000)
			repo.project = newProject(&cap, 0)

			Expect(ledger.Commit(ctx, db, 7, 1234)).To(Succeed())
			Expect(repo.locked).To(BeTrue())
			Expect(repo.spent).To(Equal([]int64{1234}))
		})
	})
})

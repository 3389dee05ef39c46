package requisition_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	internal "github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/budget"
	budgetPostgres "github.com/procurex/requisition-engine/internal/budget/postgres"
	"github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	"github.com/procurex/requisition-engine/internal/core/events"
	"github.com/procurex/requisition-engine/internal/requisition"
	requisitionPostgres "github.com/procurex/requisition-engine/internal/requisition/postgres"
	"github.com/procurex/requisition-engine/internal/sequence"
	sequencePostgres "github.com/procurex/requisition-engine/internal/sequence/postgres"
	"github.com/procurex/requisition-engine/internal/tenant"
)

// sqlite shadows of the postgres datamodels, without server-side defaults
type SQLiteProject struct {
	ID          int64  `gorm:"primaryKey"`
	OrgID       int64  `gorm:"column:org_id"`
	Name        string `gorm:"not null"`
	Budget      *int64
	SpentAmount int64 `gorm:"column:spent_amount"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SQLiteProject) TableName() string { return "projects" }

type SQLiteExpenseAccount struct {
	ID        int64 `gorm:"primaryKey"`
	OrgID     int64 `gorm:"column:org_id"`
	ProjectID int64 `gorm:"column:project_id"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SQLiteExpenseAccount) TableName() string { return "expense_accounts" }

type SQLiteRequisition struct {
	ID               int64  `gorm:"primaryKey"`
	OrgID            int64  `gorm:"column:org_id"`
	ProjectID        int64  `gorm:"column:project_id"`
	ExpenseAccountID *int64 `gorm:"column:expense_account_id"`
	Number           string `gorm:"uniqueIndex"`
	Status           string `gorm:"default:'draft'"`
	TotalAmount      int64  `gorm:"column:total_amount"`
	SubmittedBy      int64  `gorm:"column:submitted_by"`
	ReviewedBy       *int64 `gorm:"column:reviewed_by"`
	ApprovedBy       *int64 `gorm:"column:approved_by"`
	RejectionReason  *string
	SubmittedAt      *time.Time
	ReviewedAt       *time.Time
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (SQLiteRequisition) TableName() string { return "requisitions" }

type SQLiteRequisitionItem struct {
	ID            int64 `gorm:"primaryKey"`
	OrgID         int64 `gorm:"column:org_id"`
	RequisitionID int64 `gorm:"column:requisition_id"`
	Description   string
	Quantity      int64
	UnitPrice     int64 `gorm:"column:unit_price"`
	LineTotal     int64 `gorm:"column:line_total"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (SQLiteRequisitionItem) TableName() string { return "requisition_items" }

type SQLiteComment struct {
	ID            int64 `gorm:"primaryKey"`
	OrgID         int64 `gorm:"column:org_id"`
	RequisitionID int64 `gorm:"column:requisition_id"`
	AuthorID      int64 `gorm:"column:author_id"`
	Body          string
	IsInternal    bool `gorm:"column:is_internal"`
	CreatedAt     time.Time
}

func (SQLiteComment) TableName() string { return "requisition_comments" }

type SQLiteDocumentCounter struct {
	Kind      string `gorm:"primaryKey"`
	Year      int    `gorm:"primaryKey"`
	LastValue int64  `gorm:"column:last_value"`
	UpdatedAt time.Time
}

func (SQLiteDocumentCounter) TableName() string { return "document_counters" }

// stubGuard mirrors the production guard's contract: an org mismatch is
// indistinguishable from a missing resource.
type stubGuard struct {
	denials int
}

func (g *stubGuard) Authorize(ctx context.Context, callerOrgID, actorID int64, action string, res tenant.Resource) error {
	if res.OrgID != callerOrgID {
		g.denials++
		return internal.ErrNotFoundOrDenied
	}
	return nil
}

type stubDirectory struct {
	roles map[int64]string
}

func (d *stubDirectory) RoleFor(userID, orgID int64) (string, error) {
	role, ok := d.roles[userID]
	if !ok {
		return "", internal.ErrUnauthorized
	}
	return role, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

var _ = Describe("RequisitionService", func() {
	const (
		orgID        = int64(1)
		otherOrgID   = int64(2)
		submitterID  = int64(10)
		reviewerID   = int64(11)
		approverID   = int64(12)
		superAdminID = int64(13)
	)

	var (
		db        *gorm.DB
		svc       *requisition.Service
		guard     *stubGuard
		directory *stubDirectory
		bus       *recordingBus
		ctx       context.Context
		projectID int64
	)

	newDraft := func(actorID int64, amounts ...int64) *requisition.Requisition {
		items := make([]requisition.ItemDTO, len(amounts))
		for i, amount := range amounts {
			items[i] = requisition.ItemDTO{Description: "widget", Quantity: 1, UnitPrice: amount}
		}
		req, err := svc.CreateRequisition(ctx, orgID, actorID, requisition.CreateRequisitionDTO{
			ProjectID: projectID,
			Items:     items,
		})
		Expect(err).ToNot(HaveOccurred())
		return req
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(
			&SQLiteProject{}, &SQLiteExpenseAccount{}, &SQLiteRequisition{},
			&SQLiteRequisitionItem{}, &SQLiteComment{}, &SQLiteDocumentCounter{},
		)
		Expect(err).NotTo(HaveOccurred())

		budgetCap := int64(10000)
		proj := SQLiteProject{OrgID: orgID, Name: "Line Retooling", Budget: &budgetCap}
		Expect(db.Create(&proj).Error).NotTo(HaveOccurred())
		projectID = proj.ID

		guard = &stubGuard{}
		directory = &stubDirectory{roles: map[int64]string{
			submitterID:  organization.RoleSubmitter,
			reviewerID:   organization.RoleReviewer,
			approverID:   organization.RoleApprover,
			superAdminID: organization.RoleSuperAdmin,
		}}
		bus = &recordingBus{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		svc = requisition.NewService(
			db,
			requisitionPostgres.NewRequisitionRepository(),
			budget.NewLedger(budgetPostgres.NewProjectRepository(), logger),
			sequence.NewGenerator(sequencePostgres.NewCounterRepository(), logger),
			guard,
			directory,
			bus,
			logger,
			time.Second,
		)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("CreateRequisition", func() {
		It("creates a draft with an allocated number and computed total", func() {
			req := newDraft(submitterID, 1500, 2500)

			Expect(req.Status).To(Equal(requisition.StatusDraft))
			Expect(req.Number).To(HavePrefix("REQ-"))
			Expect(req.TotalAmount).To(Equal(int64(4000)))
			Expect(req.SubmittedBy).To(Equal(submitterID))
			Expect(req.Items).To(HaveLen(2))
		})

		It("allocates consecutive numbers", func() {
			first := newDraft(submitterID, 100)
			second := newDraft(submitterID, 100)
			Expect(first.Number).NotTo(Equal(second.Number))

			year := time.Now().Year()
			Expect(first.Number).To(Equal(sequence.Format(sequence.KindRequisition, year, 1)))
			Expect(second.Number).To(Equal(sequence.Format(sequence.KindRequisition, year, 2)))
		})

		It("rejects a project from another organization as not found", func() {
			otherBudget := int64(500)
			foreign := SQLiteProject{OrgID: otherOrgID, Name: "Foreign", Budget: &otherBudget}
			Expect(db.Create(&foreign).Error).NotTo(HaveOccurred())

			_, err := svc.CreateRequisition(ctx, orgID, submitterID, requisition.CreateRequisitionDTO{
				ProjectID: foreign.ID,
			})
			Expect(errors.Is(err, internal.ErrNotFoundOrDenied)).To(BeTrue())
			Expect(guard.denials).To(Equal(1))
		})

		It("rejects an expense account belonging to a different project", func() {
			otherBudget := int64(500)
			other := SQLiteProject{OrgID: orgID, Name: "Other", Budget: &otherBudget}
			Expect(db.Create(&other).Error).NotTo(HaveOccurred())
			account := SQLiteExpenseAccount{OrgID: orgID, ProjectID: other.ID, Name: "Misc"}
			Expect(db.Create(&account).Error).NotTo(HaveOccurred())

			_, err := svc.CreateRequisition(ctx, orgID, submitterID, requisition.CreateRequisitionDTO{
				ProjectID:        projectID,
				ExpenseAccountID: &account.ID,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("Submit", func() {
		It("moves a draft to pending and stamps submitted_at", func() {
			req := newDraft(submitterID, 3000)

			submitted, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			Expect(submitted.Status).To(Equal(requisition.StatusPending))
			Expect(submitted.SubmittedAt).ToNot(BeNil())
		})

		It("refuses to submit an empty requisition", func() {
			req := newDraft(submitterID)

			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(errors.Is(err, internal.ErrEmptyRequisition)).To(BeTrue())
		})

		It("publishes a transition event after commit", func() {
			req := newDraft(submitterID, 3000)

			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())

			published := bus.published()
			Expect(published).To(HaveLen(1))
			transition, ok := published[0].(*events.RequisitionTransitionedEvent)
			Expect(ok).To(BeTrue())
			Expect(transition.FromStatus).To(Equal(requisition.StatusDraft))
			Expect(transition.ToStatus).To(Equal(requisition.StatusPending))
			Expect(transition.ActorID).To(Equal(submitterID))
		})

		It("publishes nothing when the transition fails", func() {
			req := newDraft(submitterID)

			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).To(HaveOccurred())
			Expect(bus.published()).To(BeEmpty())
		})
	})

	Describe("budget enforcement", func() {
		It("holds reservations for in-flight requisitions and frees them on approval", func() {
			// A reserves 6000 of the 10000 budget
			reqA := newDraft(submitterID, 6000)
			_, err := svc.Submit(ctx, orgID, reqA.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())

			// B at 5000 exceeds the remaining 4000
			reqB := newDraft(submitterID, 5000)
			_, err = svc.Submit(ctx, orgID, reqB.ID, submitterID)
			Expect(errors.Is(err, internal.ErrInsufficientBudget)).To(BeTrue())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			view, ok := appErr.Details.(*budget.View)
			Expect(ok).To(BeTrue())
			Expect(view.Available).To(Equal(int64(4000)))
			Expect(view.Reserved).To(Equal(int64(6000)))

			// approve A: reservation converts to committed spend
			_, err = svc.Transition(ctx, orgID, reqA.ID, reviewerID, requisition.StatusReviewed, nil)
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.Transition(ctx, orgID, reqA.ID, approverID, requisition.StatusApproved, nil)
			Expect(err).ToNot(HaveOccurred())

			// C at 4000 now fits: 10000 - 6000 spent - 0 reserved
			reqC := newDraft(submitterID, 4000)
			_, err = svc.Submit(ctx, orgID, reqC.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
		})

		It("lets exactly one of two concurrent submissions through", func() {
			// a single connection keeps both goroutines on the same
			// in-memory database
			sqlDB, err := db.DB()
			Expect(err).NotTo(HaveOccurred())
			sqlDB.SetMaxOpenConns(1)

			reqA := newDraft(submitterID, 6000)
			reqB := newDraft(submitterID, 6000)

			results := make(chan error, 2)
			submit := func(id int64) {
				defer GinkgoRecover()
				_, submitErr := svc.Submit(ctx, orgID, id, submitterID)
				results <- submitErr
			}
			go submit(reqA.ID)
			go submit(reqB.ID)

			var refused int
			for i := 0; i < 2; i++ {
				if submitErr := <-results; submitErr != nil {
					Expect(errors.Is(submitErr, internal.ErrInsufficientBudget)).To(BeTrue())
					refused++
				}
			}
			Expect(refused).To(Equal(1))

			var pending int64
			Expect(db.Model(&SQLiteRequisition{}).
				Where("status = ?", requisition.StatusPending).
				Count(&pending).Error).NotTo(HaveOccurred())
			Expect(pending).To(Equal(int64(1)))
		})

		It("increments project spend exactly once on approval", func() {
			req := newDraft(submitterID, 2500)
			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.Transition(ctx, orgID, req.ID, reviewerID, requisition.StatusReviewed, nil)
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.Transition(ctx, orgID, req.ID, approverID, requisition.StatusApproved, nil)
			Expect(err).ToNot(HaveOccurred())

			var proj SQLiteProject
			Expect(db.First(&proj, projectID).Error).NotTo(HaveOccurred())
			Expect(proj.SpentAmount).To(Equal(int64(2500)))

			// retrying the terminal transition changes nothing
			_, err = svc.Transition(ctx, orgID, req.ID, approverID, requisition.StatusApproved, nil)
			Expect(errors.Is(err, internal.ErrInvalidTransition)).To(BeTrue())

			Expect(db.First(&proj, projectID).Error).NotTo(HaveOccurred())
			Expect(proj.SpentAmount).To(Equal(int64(2500)))
		})

		It("treats a project without a budget as unlimited", func() {
			unlimited := SQLiteProject{OrgID: orgID, Name: "Facilities"}
			Expect(db.Create(&unlimited).Error).NotTo(HaveOccurred())

			req, err := svc.CreateRequisition(ctx, orgID, submitterID, requisition.CreateRequisitionDTO{
				ProjectID: unlimited.ID,
				Items:     []requisition.ItemDTO{{Description: "forklift", Quantity: 1, UnitPrice: 9_000_000}},
			})
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
		})

		It("reports the budget position through AvailableBudget", func() {
			req := newDraft(submitterID, 6000)
			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())

			view, err := svc.AvailableBudget(ctx, orgID, reviewerID, projectID)
			Expect(err).ToNot(HaveOccurred())
			Expect(view.Reserved).To(Equal(int64(6000)))
			Expect(view.Available).To(Equal(int64(4000)))
			Expect(view.Unlimited).To(BeFalse())
		})
	})

	Describe("review and rejection", func() {
		var reqID int64

		BeforeEach(func() {
			req := newDraft(submitterID, 3000)
			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			reqID = req.ID
		})

		It("stamps reviewed_by when a reviewer marks reviewed", func() {
			reviewed, err := svc.Transition(ctx, orgID, reqID, reviewerID, requisition.StatusReviewed, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(reviewed.ReviewedBy).ToNot(BeNil())
			Expect(*reviewed.ReviewedBy).To(Equal(reviewerID))
			Expect(reviewed.ReviewedAt).ToNot(BeNil())
		})

		It("records the rejection reason and the resubmission clears it", func() {
			reason := "wrong supplier pricing"
			rejected, err := svc.Transition(ctx, orgID, reqID, reviewerID, requisition.StatusRejected, &reason)
			Expect(err).ToNot(HaveOccurred())
			Expect(rejected.Status).To(Equal(requisition.StatusRejected))
			Expect(rejected.RejectionReason).ToNot(BeNil())
			Expect(*rejected.RejectionReason).To(Equal(reason))

			redrafted, err := svc.Transition(ctx, orgID, reqID, submitterID, requisition.StatusDraft, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(redrafted.Status).To(Equal(requisition.StatusDraft))
			Expect(redrafted.RejectionReason).To(BeNil())

			// the corrected draft can go around again
			resubmitted, err := svc.Submit(ctx, orgID, reqID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resubmitted.Status).To(Equal(requisition.StatusPending))
		})

		It("keeps the rejection note as a comment", func() {
			reason := "duplicate of REQ-25-00001"
			_, err := svc.Transition(ctx, orgID, reqID, reviewerID, requisition.StatusRejected, &reason)
			Expect(err).ToNot(HaveOccurred())

			comments, err := svc.ListComments(ctx, orgID, reqID, reviewerID)
			Expect(err).ToNot(HaveOccurred())
			Expect(comments).To(HaveLen(1))
			Expect(comments[0].Body).To(Equal(reason))
		})

		It("refuses a transition by a user without a role", func() {
			_, err := svc.Transition(ctx, orgID, reqID, int64(999), requisition.StatusReviewed, nil)
			Expect(errors.Is(err, internal.ErrUnauthorized)).To(BeTrue())
		})

		It("lets a super admin approve directly from pending", func() {
			approved, err := svc.Transition(ctx, orgID, reqID, superAdminID, requisition.StatusApproved, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(approved.Status).To(Equal(requisition.StatusApproved))
		})

		It("refuses an approver approving straight from pending", func() {
			_, err := svc.Transition(ctx, orgID, reqID, approverID, requisition.StatusApproved, nil)
			Expect(errors.Is(err, internal.ErrUnauthorized)).To(BeTrue())
		})
	})

	Describe("item editing", func() {
		It("recomputes the total as items change", func() {
			req := newDraft(submitterID, 1000)

			item, err := svc.AddItem(ctx, orgID, req.ID, submitterID, requisition.ItemDTO{
				Description: "cable", Quantity: 3, UnitPrice: 200,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(item.LineTotal).To(Equal(int64(600)))

			fetched, err := svc.GetRequisition(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			Expect(fetched.TotalAmount).To(Equal(int64(1600)))

			Expect(svc.RemoveItem(ctx, orgID, req.ID, item.ID, submitterID)).To(Succeed())
			fetched, err = svc.GetRequisition(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			Expect(fetched.TotalAmount).To(Equal(int64(1000)))
		})

		It("freezes content once the requisition leaves draft", func() {
			req := newDraft(submitterID, 1000)
			_, err := svc.Submit(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.AddItem(ctx, orgID, req.ID, submitterID, requisition.ItemDTO{
				Description: "late addition", Quantity: 1, UnitPrice: 50,
			})
			Expect(errors.Is(err, internal.ErrImmutable)).To(BeTrue())
		})

		It("refuses edits by anyone but the owner or a super admin", func() {
			req := newDraft(submitterID, 1000)

			_, err := svc.AddItem(ctx, orgID, req.ID, reviewerID, requisition.ItemDTO{
				Description: "meddling", Quantity: 1, UnitPrice: 50,
			})
			Expect(errors.Is(err, internal.ErrUnauthorized)).To(BeTrue())

			_, err = svc.AddItem(ctx, orgID, req.ID, superAdminID, requisition.ItemDTO{
				Description: "correction", Quantity: 1, UnitPrice: 50,
			})
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("comments", func() {
		It("hides internal comments from the submitter", func() {
			req := newDraft(submitterID, 1000)

			_, err := svc.AddComment(ctx, orgID, req.ID, reviewerID, requisition.CommentDTO{
				Body: "pricing looks off", IsInternal: true,
			})
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.AddComment(ctx, orgID, req.ID, reviewerID, requisition.CommentDTO{
				Body: "please add a quote", IsInternal: false,
			})
			Expect(err).ToNot(HaveOccurred())

			visible, err := svc.ListComments(ctx, orgID, req.ID, submitterID)
			Expect(err).ToNot(HaveOccurred())
			Expect(visible).To(HaveLen(1))
			Expect(visible[0].Body).To(Equal("please add a quote"))

			all, err := svc.ListComments(ctx, orgID, req.ID, reviewerID)
			Expect(err).ToNot(HaveOccurred())
			Expect(all).To(HaveLen(2))
		})
	})
})

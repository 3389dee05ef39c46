package requisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/budget"
	"github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	projectDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/project"
	requisitionDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/requisition"
	"github.com/procurex/requisition-engine/internal/core/events"
	"github.com/procurex/requisition-engine/internal/sequence"
	"github.com/procurex/requisition-engine/internal/tenant"
	"gorm.io/gorm"
)

// RepositoryAPI defines the data access the engine needs for requisitions and
// the rows they reference. All methods operate inside the caller's
// transaction.
type RepositoryAPI interface {
	Create(tx *gorm.DB, req *requisitionDatamodel.Requisition, items []*requisitionDatamodel.RequisitionItem) error
	GetByID(tx *gorm.DB, id int64) (*requisitionDatamodel.Requisition, error)
	GetForUpdate(tx *gorm.DB, id int64) (*requisitionDatamodel.Requisition, error)
	ListByOrg(tx *gorm.DB, orgID int64, limit, offset int) ([]*requisitionDatamodel.Requisition, error)
	UpdateTransition(tx *gorm.DB, req *requisitionDatamodel.Requisition, expectedFrom string) (bool, error)
	UpdateTotal(tx *gorm.DB, requisitionID, total int64) error

	GetItems(tx *gorm.DB, requisitionID int64) ([]*requisitionDatamodel.RequisitionItem, error)
	GetItem(tx *gorm.DB, itemID int64) (*requisitionDatamodel.RequisitionItem, error)
	CountItems(tx *gorm.DB, requisitionID int64) (int64, error)
	ItemsTotal(tx *gorm.DB, requisitionID int64) (int64, error)
	AddItem(tx *gorm.DB, item *requisitionDatamodel.RequisitionItem) error
	UpdateItem(tx *gorm.DB, item *requisitionDatamodel.RequisitionItem) error
	DeleteItem(tx *gorm.DB, itemID int64) error

	CreateComment(tx *gorm.DB, comment *requisitionDatamodel.Comment) error
	ListComments(tx *gorm.DB, requisitionID int64, includeInternal bool) ([]*requisitionDatamodel.Comment, error)

	GetProject(tx *gorm.DB, projectID int64) (*projectDatamodel.Project, error)
	GetExpenseAccount(tx *gorm.DB, accountID int64) (*projectDatamodel.ExpenseAccount, error)
}

// LedgerAPI is the budget ledger surface the state machine consults on
// submission and approval.
type LedgerAPI interface {
	Available(ctx context.Context, tx *gorm.DB, projectID, excludingRequisitionID int64) (*budget.View, error)
	CanReserve(ctx context.Context, tx *gorm.DB, projectID, amount, excludingRequisitionID int64) (bool, *budget.View, error)
	Commit(ctx context.Context, tx *gorm.DB, projectID, amount int64) error
}

// NumberAPI allocates document numbers inside the transaction.
type NumberAPI interface {
	NextNumber(ctx context.Context, tx *gorm.DB, kind string) (string, error)
}

// GuardAPI verifies tenant ownership on every resource reference.
type GuardAPI interface {
	Authorize(ctx context.Context, callerOrgID, actorID int64, action string, res tenant.Resource) error
}

// DirectoryAPI resolves the actor's role within an organization.
type DirectoryAPI interface {
	RoleFor(userID, orgID int64) (string, error)
}

// EventPublisher publishes transition events after commit. Delivery is
// fire-and-forget relative to the transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Service is the requisition workflow engine: it owns every status write and
// orchestrates sequencing, budget checks, tenant guarding and notification
// fan-out around a single transaction per mutation.
type Service struct {
	db          *gorm.DB
	repo        RepositoryAPI
	ledger      LedgerAPI
	numbers     NumberAPI
	guard       GuardAPI
	directory   DirectoryAPI
	bus         EventPublisher
	logger      *slog.Logger
	lockTimeout time.Duration
}

func NewService(db *gorm.DB, repo RepositoryAPI, ledger LedgerAPI, numbers NumberAPI, guard GuardAPI, directory DirectoryAPI, bus EventPublisher, logger *slog.Logger, lockTimeout time.Duration) *Service {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Service{
		db:          db,
		repo:        repo,
		ledger:      ledger,
		numbers:     numbers,
		guard:       guard,
		directory:   directory,
		bus:         bus,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// CreateRequisition creates a draft requisition with an allocated document
// number. The referenced project (and optional expense account) must belong
// to the caller's organization.
func (s *Service) CreateRequisition(ctx context.Context, orgID, actorID int64, dto CreateRequisitionDTO) (*Requisition, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if _, err := s.directory.RoleFor(actorID, orgID); err != nil {
		return nil, internal.ErrUnauthorized
	}

	ctx, cancel := internal.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var created *requisitionDatamodel.Requisition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proj, err := s.repo.GetProject(tx, dto.ProjectID)
		if err != nil {
			return internal.ErrNotFoundOrDenied
		}
		if err := s.guard.Authorize(ctx, orgID, actorID, "project:use", tenant.Resource{
			Type: "project", ID: proj.ID, OrgID: proj.OrgID,
		}); err != nil {
			return err
		}

		if dto.ExpenseAccountID != nil {
			account, err := s.repo.GetExpenseAccount(tx, *dto.ExpenseAccountID)
			if err != nil {
				return internal.ErrNotFoundOrDenied
			}
			if err := s.guard.Authorize(ctx, orgID, actorID, "expense_account:use", tenant.Resource{
				Type: "expense_account", ID: account.ID, OrgID: account.OrgID,
			}); err != nil {
				return err
			}
			if account.ProjectID != proj.ID {
				return internal.NewValidationError("expense account does not belong to the project", internal.ErrCodeValidationFailed)
			}
		}

		number, err := s.numbers.NextNumber(ctx, tx, sequence.KindRequisition)
		if err != nil {
			return err
		}

		now := time.Now()
		row := &requisitionDatamodel.Requisition{
			OrgID:            orgID,
			ProjectID:        proj.ID,
			ExpenseAccountID: dto.ExpenseAccountID,
			Number:           number,
			Status:           StatusDraft,
			SubmittedBy:      actorID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		items := make([]*requisitionDatamodel.RequisitionItem, 0, len(dto.Items))
		var total int64
		for _, itemDTO := range dto.Items {
			lineTotal := itemDTO.LineTotal()
			total += lineTotal
			items = append(items, &requisitionDatamodel.RequisitionItem{
				OrgID:       orgID,
				Description: itemDTO.Description,
				Quantity:    itemDTO.Quantity,
				UnitPrice:   itemDTO.UnitPrice,
				LineTotal:   lineTotal,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		row.TotalAmount = total

		if err := s.repo.Create(tx, row, items); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, "create requisition")
	}

	s.logger.Info("requisition created",
		"requisition_id", created.ID,
		"number", created.Number,
		"org_id", orgID,
		"project_id", created.ProjectID,
		"total_amount", created.TotalAmount)

	result := FromDataModel(created)
	items, err := s.repo.GetItems(s.db.WithContext(ctx), created.ID)
	if err == nil {
		result.Items = ItemsFromDataModel(items)
	}
	return result, nil
}

// Submit moves a draft requisition to pending: the submitter-only edge with
// the item and budget guards.
func (s *Service) Submit(ctx context.Context, orgID, requisitionID, actorID int64) (*Requisition, error) {
	return s.Transition(ctx, orgID, requisitionID, actorID, StatusPending, nil)
}

// Transition applies one state machine edge inside a single transaction: the
// requisition row is locked, the persisted status is compared against the
// expected from-state, edge guards run, and only then the status write (and
// budget commit, on approval) happens. The transition event publishes after
// commit so a failed transaction can never notify.
func (s *Service) Transition(ctx context.Context, orgID, requisitionID, actorID int64, target string, note *string) (*Requisition, error) {
	if !ValidStatus(target) {
		return nil, internal.ErrInvalidTransition
	}

	ctx, cancel := internal.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var (
		result *requisitionDatamodel.Requisition
		event  *events.RequisitionTransitionedEvent
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.GetForUpdate(tx, requisitionID)
		if err != nil {
			return internal.ErrNotFoundOrDenied
		}

		if err := s.guard.Authorize(ctx, orgID, actorID, "requisition:transition:"+target, tenant.Resource{
			Type: "requisition", ID: row.ID, OrgID: row.OrgID,
		}); err != nil {
			return err
		}

		role, err := s.directory.RoleFor(actorID, orgID)
		if err != nil {
			return internal.ErrUnauthorized
		}

		fromStatus := row.Status
		if err := Authorize(fromStatus, target, role, row.SubmittedBy == actorID); err != nil {
			return err
		}

		now := time.Now()
		switch target {
		case StatusPending:
			count, err := s.repo.CountItems(tx, row.ID)
			if err != nil {
				return err
			}
			if count == 0 {
				return internal.ErrEmptyRequisition
			}

			// line totals are authoritative at submission time
			total, err := s.repo.ItemsTotal(tx, row.ID)
			if err != nil {
				return err
			}
			row.TotalAmount = total

			ok, view, err := s.ledger.CanReserve(ctx, tx, row.ProjectID, total, row.ID)
			if err != nil {
				return err
			}
			if !ok {
				return internal.ErrInsufficientBudget.WithDetails(view)
			}
			row.SubmittedAt = &now

		case StatusUnderReview:
			// no budget re-check on taking a requisition into review

		case StatusReviewed:
			row.ReviewedBy = &actorID
			row.ReviewedAt = &now

		case StatusApproved:
			row.ApprovedBy = &actorID
			row.ApprovedAt = &now
			if err := s.ledger.Commit(ctx, tx, row.ProjectID, row.TotalAmount); err != nil {
				return err
			}

		case StatusRejected:
			row.RejectionReason = note
			if role == organization.RoleReviewer {
				row.ReviewedBy = &actorID
				row.ReviewedAt = &now
			} else {
				row.ApprovedBy = &actorID
			}

		case StatusDraft:
			// resubmission path: rejection context clears, items become editable
			row.RejectionReason = nil
		}

		applied, err := s.repo.UpdateTransition(tx, row, fromStatus)
		if err != nil {
			return err
		}
		if !applied {
			// a concurrent transition won the race; exactly one application succeeds
			return internal.ErrInvalidTransition
		}

		if err := s.annotate(tx, row, target, actorID, note, now); err != nil {
			return err
		}

		event = events.NewRequisitionTransitionedEvent(
			row.ID, row.OrgID, row.ProjectID, row.Number,
			fromStatus, target, actorID, row.SubmittedBy, row.ReviewedBy, row.TotalAmount)
		result = row
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, "transition requisition")
	}

	s.logger.Info("requisition transitioned",
		"requisition_id", result.ID,
		"number", result.Number,
		"from_status", event.FromStatus,
		"to_status", target,
		"actor_id", actorID)

	// fire-and-forget: dispatch failures never roll back the transition
	s.bus.Publish(context.WithoutCancel(ctx), event)

	return FromDataModel(result), nil
}

// annotate records the workflow comment for a transition: the caller's note
// when given, a standard annotation for review starts.
func (s *Service) annotate(tx *gorm.DB, row *requisitionDatamodel.Requisition, target string, actorID int64, note *string, now time.Time) error {
	body := ""
	internalOnly := false
	switch {
	case note != nil && *note != "":
		body = *note
	case target == StatusUnderReview:
		body = "Started review"
		internalOnly = true
	}
	if body == "" {
		return nil
	}
	return s.repo.CreateComment(tx, &requisitionDatamodel.Comment{
		OrgID:         row.OrgID,
		RequisitionID: row.ID,
		AuthorID:      actorID,
		Body:          body,
		IsInternal:    internalOnly,
		CreatedAt:     now,
	})
}

// GetRequisition loads a requisition with its items, enforcing the tenant
// guard.
func (s *Service) GetRequisition(ctx context.Context, orgID, requisitionID, actorID int64) (*Requisition, error) {
	tx := s.db.WithContext(ctx)
	row, err := s.repo.GetByID(tx, requisitionID)
	if err != nil {
		return nil, internal.ErrNotFoundOrDenied
	}
	if err := s.guard.Authorize(ctx, orgID, actorID, "requisition:read", tenant.Resource{
		Type: "requisition", ID: row.ID, OrgID: row.OrgID,
	}); err != nil {
		return nil, err
	}

	result := FromDataModel(row)
	items, err := s.repo.GetItems(tx, row.ID)
	if err != nil {
		return nil, err
	}
	result.Items = ItemsFromDataModel(items)
	return result, nil
}

// ListRequisitions returns the organization's requisitions, newest first.
func (s *Service) ListRequisitions(ctx context.Context, orgID int64, limit, offset int) ([]*Requisition, error) {
	rows, err := s.repo.ListByOrg(s.db.WithContext(ctx), orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	result := make([]*Requisition, len(rows))
	for i, row := range rows {
		result[i] = FromDataModel(row)
	}
	return result, nil
}

// AvailableBudget reports the project's budget position for the caller's
// organization.
func (s *Service) AvailableBudget(ctx context.Context, orgID, actorID, projectID int64) (*budget.View, error) {
	tx := s.db.WithContext(ctx)
	proj, err := s.repo.GetProject(tx, projectID)
	if err != nil {
		return nil, internal.ErrNotFoundOrDenied
	}
	if err := s.guard.Authorize(ctx, orgID, actorID, "project:read_budget", tenant.Resource{
		Type: "project", ID: proj.ID, OrgID: proj.OrgID,
	}); err != nil {
		return nil, err
	}
	return s.ledger.Available(ctx, tx, projectID, 0)
}

// AddItem appends a line item to a draft requisition and recomputes the
// total. Content is immutable outside draft.
func (s *Service) AddItem(ctx context.Context, orgID, requisitionID, actorID int64, dto ItemDTO) (*Item, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidItem)
	}

	var created *requisitionDatamodel.RequisitionItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.editableRequisition(ctx, tx, orgID, requisitionID, actorID, "requisition:add_item")
		if err != nil {
			return err
		}

		now := time.Now()
		item := &requisitionDatamodel.RequisitionItem{
			OrgID:         row.OrgID,
			RequisitionID: row.ID,
			Description:   dto.Description,
			Quantity:      dto.Quantity,
			UnitPrice:     dto.UnitPrice,
			LineTotal:     dto.LineTotal(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.AddItem(tx, item); err != nil {
			return err
		}
		created = item
		return s.refreshTotal(tx, row.ID)
	})
	if err != nil {
		return nil, s.mapError(err, "add item")
	}
	return ItemFromDataModel(created), nil
}

// UpdateItem edits a line item on a draft requisition.
func (s *Service) UpdateItem(ctx context.Context, orgID, requisitionID, itemID, actorID int64, dto ItemDTO) (*Item, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidItem)
	}

	var updated *requisitionDatamodel.RequisitionItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.editableRequisition(ctx, tx, orgID, requisitionID, actorID, "requisition:update_item")
		if err != nil {
			return err
		}

		item, err := s.repo.GetItem(tx, itemID)
		if err != nil || item.RequisitionID != row.ID {
			return internal.ErrNotFoundOrDenied
		}

		item.Description = dto.Description
		item.Quantity = dto.Quantity
		item.UnitPrice = dto.UnitPrice
		item.LineTotal = dto.LineTotal()
		item.UpdatedAt = time.Now()
		if err := s.repo.UpdateItem(tx, item); err != nil {
			return err
		}
		updated = item
		return s.refreshTotal(tx, row.ID)
	})
	if err != nil {
		return nil, s.mapError(err, "update item")
	}
	return ItemFromDataModel(updated), nil
}

// RemoveItem deletes a line item from a draft requisition.
func (s *Service) RemoveItem(ctx context.Context, orgID, requisitionID, itemID, actorID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.editableRequisition(ctx, tx, orgID, requisitionID, actorID, "requisition:remove_item")
		if err != nil {
			return err
		}

		item, err := s.repo.GetItem(tx, itemID)
		if err != nil || item.RequisitionID != row.ID {
			return internal.ErrNotFoundOrDenied
		}

		if err := s.repo.DeleteItem(tx, itemID); err != nil {
			return err
		}
		return s.refreshTotal(tx, row.ID)
	})
	return s.mapError(err, "remove item")
}

// AddComment attaches a comment to a requisition. Any member of the
// organization may comment at any state.
func (s *Service) AddComment(ctx context.Context, orgID, requisitionID, actorID int64, dto CommentDTO) (*Comment, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if _, err := s.directory.RoleFor(actorID, orgID); err != nil {
		return nil, internal.ErrUnauthorized
	}

	var created *requisitionDatamodel.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.GetByID(tx, requisitionID)
		if err != nil {
			return internal.ErrNotFoundOrDenied
		}
		if err := s.guard.Authorize(ctx, orgID, actorID, "requisition:comment", tenant.Resource{
			Type: "requisition", ID: row.ID, OrgID: row.OrgID,
		}); err != nil {
			return err
		}

		created = &requisitionDatamodel.Comment{
			OrgID:         row.OrgID,
			RequisitionID: row.ID,
			AuthorID:      actorID,
			Body:          dto.Body,
			IsInternal:    dto.IsInternal,
			CreatedAt:     time.Now(),
		}
		return s.repo.CreateComment(tx, created)
	})
	if err != nil {
		return nil, s.mapError(err, "add comment")
	}
	return CommentFromDataModel(created), nil
}

// ListComments returns a requisition's comments. Internal comments are hidden
// from the submitter unless they hold a reviewing role.
func (s *Service) ListComments(ctx context.Context, orgID, requisitionID, actorID int64) ([]*Comment, error) {
	tx := s.db.WithContext(ctx)
	row, err := s.repo.GetByID(tx, requisitionID)
	if err != nil {
		return nil, internal.ErrNotFoundOrDenied
	}
	if err := s.guard.Authorize(ctx, orgID, actorID, "requisition:read_comments", tenant.Resource{
		Type: "requisition", ID: row.ID, OrgID: row.OrgID,
	}); err != nil {
		return nil, err
	}

	role, err := s.directory.RoleFor(actorID, orgID)
	if err != nil {
		return nil, internal.ErrUnauthorized
	}
	includeInternal := role != organization.RoleSubmitter && role != organization.RoleStoreManager

	comments, err := s.repo.ListComments(tx, row.ID, includeInternal)
	if err != nil {
		return nil, err
	}
	return CommentsFromDataModel(comments), nil
}

// editableRequisition loads and guards a requisition for a content change,
// requiring draft status and submitter ownership (or super admin).
func (s *Service) editableRequisition(ctx context.Context, tx *gorm.DB, orgID, requisitionID, actorID int64, action string) (*requisitionDatamodel.Requisition, error) {
	row, err := s.repo.GetForUpdate(tx, requisitionID)
	if err != nil {
		return nil, internal.ErrNotFoundOrDenied
	}
	if err := s.guard.Authorize(ctx, orgID, actorID, action, tenant.Resource{
		Type: "requisition", ID: row.ID, OrgID: row.OrgID,
	}); err != nil {
		return nil, err
	}
	if row.Status != StatusDraft {
		return nil, internal.ErrImmutable
	}

	role, err := s.directory.RoleFor(actorID, orgID)
	if err != nil {
		return nil, internal.ErrUnauthorized
	}
	if row.SubmittedBy != actorID && role != organization.RoleSuperAdmin {
		return nil, internal.ErrUnauthorized
	}
	return row, nil
}

func (s *Service) refreshTotal(tx *gorm.DB, requisitionID int64) error {
	total, err := s.repo.ItemsTotal(tx, requisitionID)
	if err != nil {
		return err
	}
	return s.repo.UpdateTotal(tx, requisitionID, total)
}

// mapError normalizes transaction errors: AppErrors pass through, lock
// timeouts become retryable, anything else is internal.
func (s *Service) mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("operation timed out waiting for locks", "op", op, "error", err)
		return internal.ErrSequenceTimeout
	}
	s.logger.Error("requisition operation failed", "op", op, "error", err)
	return internal.NewInternalError(op+" failed", err)
}

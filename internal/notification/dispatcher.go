package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
	"github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	"github.com/procurex/requisition-engine/internal/core/events"
)

// Dispatcher fans out notifications on requisition transitions. It subscribes
// to the state machine's transition events, which fire exactly once per
// committed status change, so dispatch is idempotent per (requisition,
// to_status). The actor is never notified about their own action, and a
// dispatch failure never reaches the transition caller.
type Dispatcher struct {
	repo         RepositoryAPI
	recipients   RecipientDirectoryAPI
	users        UserDirectoryAPI
	logger       *slog.Logger
	emailEnabled bool
}

func NewDispatcher(repo RepositoryAPI, recipients RecipientDirectoryAPI, users UserDirectoryAPI, logger *slog.Logger, emailEnabled bool) *Dispatcher {
	return &Dispatcher{
		repo:         repo,
		recipients:   recipients,
		users:        users,
		logger:       logger,
		emailEnabled: emailEnabled,
	}
}

// Register subscribes the dispatcher to the event bus.
func (d *Dispatcher) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeRequisitionTransitioned, d.HandleTransition)
}

// HandleTransition resolves the recipient set for the transition and persists
// one notification per recipient, plus an email delivery job when email is
// enabled.
func (d *Dispatcher) HandleTransition(ctx context.Context, event events.Event) error {
	transition, ok := event.(*events.RequisitionTransitionedEvent)
	if !ok {
		d.logger.Warn("unexpected event payload", "event_type", event.EventType())
		return nil
	}

	recipientIDs, err := d.resolveRecipients(transition)
	if err != nil {
		d.logger.Error("failed to resolve notification recipients",
			"requisition_id", transition.RequisitionID,
			"to_status", transition.ToStatus,
			"error", err)
		return err
	}
	if len(recipientIDs) == 0 {
		return nil
	}

	message := d.buildMessage(transition)

	for _, userID := range recipientIDs {
		row := &notificationDatamodel.Notification{
			OrgID:         transition.OrgID,
			UserID:        userID,
			RequisitionID: transition.RequisitionID,
			ToStatus:      transition.ToStatus,
			Message:       message,
			CreatedAt:     time.Now(),
		}
		if err := d.repo.Create(row); err != nil {
			d.logger.Error("failed to persist notification",
				"requisition_id", transition.RequisitionID,
				"user_id", userID,
				"error", err)
			continue
		}

		if d.emailEnabled {
			job := &notificationDatamodel.DeliveryJob{
				NotificationID: row.ID,
				Channel:        notificationDatamodel.ChannelEmail,
				Status:         notificationDatamodel.DeliveryStatusPending,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			if err := d.repo.CreateDeliveryJob(job); err != nil {
				d.logger.Error("failed to enqueue email delivery job",
					"notification_id", row.ID,
					"error", err)
			}
		}
	}

	d.logger.Info("notifications dispatched",
		"requisition_id", transition.RequisitionID,
		"number", transition.Number,
		"to_status", transition.ToStatus,
		"recipients", len(recipientIDs))
	return nil
}

// resolveRecipients applies the fan-out table per target status, deduplicates
// and drops the actor.
func (d *Dispatcher) resolveRecipients(t *events.RequisitionTransitionedEvent) ([]int64, error) {
	var candidates []int64

	switch t.ToStatus {
	case "pending":
		ids, err := d.recipients.UserIDsWithRole(t.OrgID, organization.RoleReviewer, organization.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		candidates = ids

	case "reviewed":
		ids, err := d.recipients.UserIDsWithRole(t.OrgID, organization.RoleApprover, organization.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		candidates = append(ids, t.SubmittedBy)

	case "approved", "rejected":
		candidates = []int64{t.SubmittedBy}
		if t.ReviewedBy != nil {
			candidates = append(candidates, *t.ReviewedBy)
		}

	default:
		// under_review and resubmission to draft notify nobody
		return nil, nil
	}

	seen := make(map[int64]bool, len(candidates))
	result := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if id == t.ActorID || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result, nil
}

func (d *Dispatcher) buildMessage(t *events.RequisitionTransitionedEvent) string {
	name := d.actorName(t.ActorID)

	switch t.ToStatus {
	case "pending":
		return fmt.Sprintf("%s submitted requisition %s for review", name, t.Number)
	case "reviewed":
		return fmt.Sprintf("%s reviewed requisition %s; it is awaiting approval", name, t.Number)
	case "approved":
		return fmt.Sprintf("%s approved requisition %s", name, t.Number)
	case "rejected":
		return fmt.Sprintf("%s rejected requisition %s", name, t.Number)
	default:
		return fmt.Sprintf("%s moved requisition %s to %s", name, t.Number, t.ToStatus)
	}
}

// actorName falls back to a generic phrase when the display name lookup
// fails or comes back empty.
func (d *Dispatcher) actorName(actorID int64) string {
	name, err := d.users.DisplayName(actorID)
	if err != nil || name == "" {
		return "A teammate"
	}
	return name
}

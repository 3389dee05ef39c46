package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRequisitionTransitioned = "requisition.transitioned"
)

// RequisitionTransitionedEvent is published by the state machine after a
// status change has committed. The notification dispatcher keys its fan-out
// on this event, which makes delivery idempotent per (requisition, to_status):
// only one event exists per successful transition.
type RequisitionTransitionedEvent struct {
	BaseEvent
	RequisitionID int64  `json:"requisition_id"`
	OrgID         int64  `json:"org_id"`
	ProjectID     int64  `json:"project_id"`
	Number        string `json:"number"`
	FromStatus    string `json:"from_status"`
	ToStatus      string `json:"to_status"`
	ActorID       int64  `json:"actor_id"`
	SubmittedBy   int64  `json:"submitted_by"`
	ReviewedBy    *int64 `json:"reviewed_by,omitempty"`
	TotalAmount   int64  `json:"total_amount"`
}

func NewRequisitionTransitionedEvent(requisitionID, orgID, projectID int64, number, fromStatus, toStatus string, actorID, submittedBy int64, reviewedBy *int64, totalAmount int64) *RequisitionTransitionedEvent {
	return &RequisitionTransitionedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRequisitionTransitioned,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"requisition_id": requisitionID,
				"org_id":         orgID,
				"number":         number,
				"from_status":    fromStatus,
				"to_status":      toStatus,
				"actor_id":       actorID,
			},
		},
		RequisitionID: requisitionID,
		OrgID:         orgID,
		ProjectID:     projectID,
		Number:        number,
		FromStatus:    fromStatus,
		ToStatus:      toStatus,
		ActorID:       actorID,
		SubmittedBy:   submittedBy,
		ReviewedBy:    reviewedBy,
		TotalAmount:   totalAmount,
	}
}

package requisition

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/procurex/requisition-engine/internal/auth"
	"github.com/procurex/requisition-engine/internal/budget"
	"github.com/procurex/requisition-engine/internal/transport"
	"github.com/procurex/requisition-engine/pkg/logger"
)

type ServiceAPI interface {
	CreateRequisition(ctx context.Context, orgID, actorID int64, dto CreateRequisitionDTO) (*Requisition, error)
	Submit(ctx context.Context, orgID, requisitionID, actorID int64) (*Requisition, error)
	Transition(ctx context.Context, orgID, requisitionID, actorID int64, target string, note *string) (*Requisition, error)
	GetRequisition(ctx context.Context, orgID, requisitionID, actorID int64) (*Requisition, error)
	ListRequisitions(ctx context.Context, orgID int64, limit, offset int) ([]*Requisition, error)
	AvailableBudget(ctx context.Context, orgID, actorID, projectID int64) (*budget.View, error)
	AddItem(ctx context.Context, orgID, requisitionID, actorID int64, dto ItemDTO) (*Item, error)
	UpdateItem(ctx context.Context, orgID, requisitionID, itemID, actorID int64, dto ItemDTO) (*Item, error)
	RemoveItem(ctx context.Context, orgID, requisitionID, itemID, actorID int64) error
	AddComment(ctx context.Context, orgID, requisitionID, actorID int64, dto CommentDTO) (*Comment, error)
	ListComments(ctx context.Context, orgID, requisitionID, actorID int64) ([]*Comment, error)
}

// OrgResolverAPI resolves the caller's active organization.
type OrgResolverAPI interface {
	Resolve(userID int64) (int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Resolver OrgResolverAPI
}

func NewHandler(svc ServiceAPI, resolver OrgResolverAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Resolver:    resolver,
	}
}

// callerScope pulls the authenticated user from context and resolves the
// caller's organization. All requisition routes are org scoped.
func (h *Handler) callerScope(w http.ResponseWriter, r *http.Request) (orgID, actorID int64, ok bool) {
	user, found := auth.UserFromContext(r.Context())
	if !found || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}

	orgID, err := h.Resolver.Resolve(user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return 0, 0, false
	}
	return orgID, user.ID, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}

	var dto CreateRequisitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.Service.CreateRequisition(r.Context(), orgID, actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) GetRequisition(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.Service.GetRequisition(r.Context(), orgID, id, actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.callerScope(w, r)
	if !ok {
		return
	}

	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	reqs, err := h.Service.ListRequisitions(r.Context(), orgID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requisitions": reqs,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *Handler) SubmitRequisition(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.Service.Submit(r.Context(), orgID, id, actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) TransitionRequisition(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var dto TransitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.Service.Transition(r.Context(), orgID, id, actorID, dto.Status, dto.Note)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) AvailableBudget(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	projectID, ok := h.pathID(w, r, "projectID")
	if !ok {
		return
	}

	view, err := h.Service.AvailableBudget(r.Context(), orgID, actorID, projectID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var dto ItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.AddItem(r.Context(), orgID, id, actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	var dto ItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.UpdateItem(r.Context(), orgID, id, itemID, actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.Service.RemoveItem(r.Context(), orgID, id, itemID, actorID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var dto CommentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	comment, err := h.Service.AddComment(r.Context(), orgID, id, actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	orgID, actorID, ok := h.callerScope(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.Service.ListComments(r.Context(), orgID, id, actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"comments": comments,
	})
}

package notification

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/procurex/requisition-engine/internal/auth"
	"github.com/procurex/requisition-engine/internal/transport"
	"github.com/procurex/requisition-engine/pkg/logger"
)

type ServiceAPI interface {
	ListNotifications(userID int64, limit, offset int) ([]*Notification, error)
	UnreadCount(userID int64) (int64, error)
	MarkRead(userID, notificationID int64) (*Notification, error)
	Delete(userID, notificationID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
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

	notifications, err := h.Service.ListNotifications(user.ID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	unread, err := h.Service.UnreadCount(user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unread_count":  unread,
		"limit":         limit,
		"offset":        offset,
	})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid notification ID")
		return
	}

	notification, err := h.Service.MarkRead(user.ID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, notification)
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid notification ID")
		return
	}

	if err := h.Service.Delete(user.ID, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package user

import (
	"log/slog"
	"net/http"

	"github.com/procurex/requisition-engine/internal/auth"
	"github.com/procurex/requisition-engine/internal/transport"
	"github.com/procurex/requisition-engine/pkg/logger"
)

type ServiceAPI interface {
	GetByID(userID int64) (*User, error)
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

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.UserFromContext(r.Context())
	if !ok || principal == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.Service.GetByID(principal.ID)
	if err != nil {
		h.Logger.Error("GetCurrentUser: service GetByID failed", "user_id", principal.ID, "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

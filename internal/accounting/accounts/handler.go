package accounts

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type accountResponse struct {
	ID       int64       `json:"id"`
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`
	Subtype  Subtype     `json:"subtype,omitempty"`
	ParentID *int64      `json:"parent_id,omitempty"`
	IsActive bool        `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	accounts, err := h.service.List(r.Context(), actor.OrgID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, Subtype: a.Subtype, ParentID: a.ParentID, IsActive: a.IsActive})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

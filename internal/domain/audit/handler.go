package audit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/famcare/famcare/internal/platform/auth"
	"github.com/famcare/famcare/pkg/pagination"
)

// MaxHistoryLimit is the documented ceiling for history page sizes.
const MaxHistoryLimit = 200

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits/:id/history", h.GetVisitHistory)
}

func (h *Handler) GetVisitHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}

	pg := pagination.FromContext(c, MaxHistoryLimit)
	userID := auth.UserIDFromContext(c.Request().Context())

	events, total, err := h.svc.ListForEntity(c.Request().Context(), "visit", id, userID, pg.Limit, pg.Offset())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}

	if events == nil {
		events = []*AuditEvent{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg))
}

package visit

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/famcare/famcare/internal/platform/oplock"
	"github.com/famcare/famcare/pkg/pagination"
)

const maxListLimit = 100

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/visits", h.Create)
	g.GET("/visits/:id", h.Get)
	g.PUT("/visits/:id", h.Update)
	g.DELETE("/visits/:id", h.Delete)
	g.GET("/children/:id/visits", h.ListByChild)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.service.CreateVisit(c.Request().Context(), &in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	v, err := h.service.GetVisit(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// Update accepts a sparse payload: only the keys present in the body are
// touched, and an echoed updated_at stamp arms the optimistic-lock check.
func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.service.UpdateVisit(c.Request().Context(), id, raw)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	if err := h.service.DeleteVisit(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByChild(c echo.Context) error {
	childID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid child id")
	}
	p := pagination.FromContext(c, maxListLimit)
	visits, total, err := h.service.ListVisitsByChild(c.Request().Context(), childID, p.Limit, p.Offset())
	if err != nil {
		return mapError(err)
	}
	if visits == nil {
		visits = []*Visit{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, p))
}

// conflictBody gives a stale writer both stamps so the client can refetch
// and re-apply.
type conflictBody struct {
	Error          string `json:"error"`
	CurrentVersion string `json:"current_version"`
	YourVersion    string `json:"your_version"`
}

func mapError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
			"field": verr.Field,
			"error": verr.Reason,
		})
	}
	var cerr *oplock.ConflictError
	if errors.As(err, &cerr) {
		return echo.NewHTTPError(http.StatusConflict, conflictBody{
			Error:          "the record was modified by someone else; refresh and retry",
			CurrentVersion: cerr.CurrentVersion.Format(time.RFC3339),
			YourVersion:    cerr.SubmittedVersion.Format(time.RFC3339),
		})
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "you do not have write access to this record")
	default:
		return err
	}
}

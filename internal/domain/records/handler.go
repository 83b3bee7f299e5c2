package records

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careloop/careloop/pkg/pagination"
)

// Handler exposes read-only record browsing so operators can inspect the
// data a rule evaluates against.
type Handler struct {
	store Store
}

// NewHandler creates a Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/records")
	g.GET("/practices/:id", h.GetPractice)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/appointments/:id", h.GetAppointment)
	g.GET("/intakes/:id", h.GetIntake)
	g.GET("/events", h.ListEvents)
}

func (h *Handler) GetPractice(c echo.Context) error {
	p, err := h.store.GetPractice(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "practice not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.store.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.store.GetAppointment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if a == nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetIntake(c echo.Context) error {
	i, err := h.store.GetIntake(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if i == nil {
		return echo.NewHTTPError(http.StatusNotFound, "intake not found")
	}
	return c.JSON(http.StatusOK, i)
}

// ListEvents returns the event stream page by page, in source order.
func (h *Handler) ListEvents(c echo.Context) error {
	events, err := h.store.Events(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	p := pagination.FromContext(c)
	start, end := p.Slice(len(events))
	return c.JSON(http.StatusOK, pagination.NewResponse(events[start:end], len(events), p.Limit, p.Offset))
}

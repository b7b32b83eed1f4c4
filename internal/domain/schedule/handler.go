package schedule

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Slot availability is readable by the portal as well as staff.
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:name/slots", h.SlotsForDate)

	staff := api.Group("", auth.RequireRole("staff", "admin"))
	staff.GET("/doctors/:name/hours", h.WeeklyHours)
	staff.PUT("/doctors/:name/hours", h.SetDayHours)
	staff.DELETE("/doctors/:name/hours/:weekday", h.RemoveDay)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	docs, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) WeeklyHours(c echo.Context) error {
	days, err := h.svc.WeeklyHours(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, days)
}

func (h *Handler) SetDayHours(c echo.Context) error {
	var in SetDayInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.DoctorName = c.Param("name")
	d, err := h.svc.SetDayHours(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) RemoveDay(c echo.Context) error {
	weekday, err := strconv.Atoi(c.Param("weekday"))
	if err != nil || weekday < 0 || weekday > 6 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid weekday")
	}
	if err := h.svc.RemoveDay(c.Request().Context(), c.Param("name"), weekday); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SlotsForDate(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	slots, err := h.svc.SlotsForDate(c.Request().Context(), c.Param("name"), date)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if slots == nil {
		slots = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor": c.Param("name"),
		"date":   date,
		"slots":  slots,
	})
}

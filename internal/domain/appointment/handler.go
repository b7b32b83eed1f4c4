package appointment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments/availability", h.Availability)

	staff := api.Group("", auth.RequireRole("staff", "admin"))
	staff.POST("/appointments", h.Create)
	staff.GET("/appointments", h.ListByDoctorDate)
	staff.GET("/appointments/:id", h.Get)
	staff.GET("/patients/:id/appointments", h.ListByPatient)
	staff.POST("/appointments/:id/confirm", h.Confirm)
	staff.POST("/appointments/:id/cancel", h.Cancel)
	staff.POST("/appointments/:id/no-show", h.MarkNoShow)
	staff.POST("/appointments/:id/complete", h.Complete)
	staff.POST("/appointments/:id/reschedule", h.Reschedule)
	staff.POST("/appointments/:id/cancellation/review", h.ReviewCancellation)
	staff.POST("/appointments/:id/reschedule/review", h.ReviewReschedule)

	portal := api.Group("/portal", auth.RequireRole("patient"))
	portal.POST("/appointments", h.BookPortal)
	portal.GET("/appointments", h.ListOwn)
	portal.GET("/appointments/:id", h.GetOwn)
	portal.POST("/appointments/:id/cancellation", h.RequestCancellation)
	portal.POST("/appointments/:id/reschedule", h.RequestReschedule)
	portal.POST("/appointments/:id/reschedule/accept", h.AcceptReschedule)
	portal.POST("/appointments/:id/reschedule/reject", h.RejectReschedule)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWrongPatient):
		return http.StatusForbidden
	case errors.Is(err, ErrSlotTaken),
		errors.Is(err, ErrOutsideHours),
		errors.Is(err, ErrPatientLocked),
		errors.Is(err, ErrCutoff),
		errors.Is(err, ErrWrongState),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrBookingLimit),
		errors.Is(err, ErrValidation),
		errors.Is(err, patient.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func apptID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actor(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Staff handlers --

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateStaff(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByDoctorDate(c echo.Context) error {
	doctor := c.QueryParam("doctor")
	date := c.QueryParam("date")
	if doctor == "" || date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor and date query parameters are required")
	}
	appts, err := h.svc.ListByDoctorDate(c.Request().Context(), doctor, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, appts)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	appts, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Confirm(c.Request().Context(), id, actor(c))
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	var body cancelBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, actor(c), body.Reason)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkNoShow(c.Request().Context(), id, actor(c))
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Complete(c.Request().Context(), id, actor(c))
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleBody struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	var body rescheduleBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, actor(c), body.Date, body.Time, body.Reason)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type reviewBody struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

func (h *Handler) ReviewCancellation(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	var body reviewBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.ReviewCancellation(c.Request().Context(), id, actor(c), body.Approve, body.Notes)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

// ReviewReschedule lets staff settle a patient-initiated reschedule
// request.
func (h *Handler) ReviewReschedule(c echo.Context) error {
	id, err := apptID(c)
	if err != nil {
		return err
	}
	var body reviewBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var a *Appointment
	if body.Approve {
		a, err = h.svc.AcceptReschedule(c.Request().Context(), id, actor(c))
	} else {
		a, err = h.svc.RejectReschedule(c.Request().Context(), id, actor(c), body.Notes)
	}
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Availability(c echo.Context) error {
	doctor := c.QueryParam("doctor")
	date := c.QueryParam("date")
	if doctor == "" || date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor and date query parameters are required")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctor, date)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	if slots == nil {
		slots = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor": doctor,
		"date":   date,
		"slots":  slots,
	})
}

// -- Portal handlers --

// ownPatientID resolves the authenticated portal patient.
func ownPatientID(c echo.Context) (uuid.UUID, error) {
	raw := auth.PatientIDFromContext(c.Request().Context())
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token carries no patient identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token carries an invalid patient identity")
	}
	return id, nil
}

// requireOwn loads the appointment and verifies it belongs to the caller.
func (h *Handler) requireOwn(c echo.Context) (*Appointment, error) {
	id, err := apptID(c)
	if err != nil {
		return nil, err
	}
	pid, err := ownPatientID(c)
	if err != nil {
		return nil, err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(httpStatus(err), err.Error())
	}
	if a.PatientID == nil || *a.PatientID != pid {
		return nil, echo.NewHTTPError(http.StatusForbidden, ErrWrongPatient.Error())
	}
	return a, nil
}

func (h *Handler) BookPortal(c echo.Context) error {
	var in PortalInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.BookPortal(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListOwn(c echo.Context) error {
	pid, err := ownPatientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	appts, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appts, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetOwn(c echo.Context) error {
	a, err := h.requireOwn(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RequestCancellation(c echo.Context) error {
	a, err := h.requireOwn(c)
	if err != nil {
		return err
	}
	var body cancelBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.RequestCancellation(c.Request().Context(), a.ID, actor(c), body.Reason)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) RequestReschedule(c echo.Context) error {
	a, err := h.requireOwn(c)
	if err != nil {
		return err
	}
	var body rescheduleBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.RequestReschedule(c.Request().Context(), a.ID, actor(c), body.Date, body.Time, body.Reason)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) AcceptReschedule(c echo.Context) error {
	a, err := h.requireOwn(c)
	if err != nil {
		return err
	}
	updated, err := h.svc.AcceptReschedule(c.Request().Context(), a.ID, actor(c))
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) RejectReschedule(c echo.Context) error {
	a, err := h.requireOwn(c)
	if err != nil {
		return err
	}
	updated, err := h.svc.RejectReschedule(c.Request().Context(), a.ID, actor(c), "")
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

package handler

import (
	"database/sql" // for sentinel errors returned from repository
	"errors"       // for errors.Is comparisons
	"net/http"     // HTTP status codes
	"strconv"      // parsing path parameters
	"time"         // lead-time and horizon checks

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/districtsmiles/appointment-booking/internal/config"
	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/model"
	"github.com/districtsmiles/appointment-booking/internal/repository"
)

// AppointmentHandler serves the patient-facing booking flow: claiming
// a slot, opening checkout, listing, cancelling and rescheduling.  All
// methods assume JWT authentication and role validation has already
// been performed by middleware.  The slot claim runs inside a
// transaction so the occupancy check and insert are atomic.
type AppointmentHandler struct {
	Cfg          config.Config
	Appointments *repository.AppointmentRepo
	Schedules    *repository.ScheduleRepo
	Services     *repository.ServiceRepo
	Payments     *repository.PaymentRepo
	Gateway      *gateway.PayMongoService
}

func NewAppointmentHandler(cfg config.Config, appts *repository.AppointmentRepo, schedules *repository.ScheduleRepo, services *repository.ServiceRepo, payments *repository.PaymentRepo, gw *gateway.PayMongoService) *AppointmentHandler {
	if appts == nil || schedules == nil || services == nil || payments == nil || gw == nil {
		panic("nil dependency passed to NewAppointmentHandler")
	}
	return &AppointmentHandler{
		Cfg:          cfg,
		Appointments: appts,
		Schedules:    schedules,
		Services:     services,
		Payments:     payments,
		Gateway:      gw,
	}
}

type createAppointmentReq struct {
	ServiceID       uint64 `json:"service_id"`
	ScheduleID      uint64 `json:"schedule_id"`
	AppointmentDate string `json:"appointment_date"` // YYYY-MM-DD
}

// checkBookingWindow enforces the lead-time policy on a requested
// date: no same-day bookings (the earliest allowed day is
// BookingLeadDays from today) and nothing beyond the horizon.
func (h *AppointmentHandler) checkBookingWindow(date time.Time) string {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	earliest := today.AddDate(0, 0, h.Cfg.BookingLeadDays)
	latest := today.AddDate(0, 0, h.Cfg.BookingHorizonDays)
	if date.Before(earliest) {
		return "appointments must be booked at least a day in advance"
	}
	if date.After(latest) {
		return "appointments cannot be booked that far ahead"
	}
	return ""
}

// Create handles POST /v1/appointments.  It claims the requested
// (slot, date) pair as a PENDING appointment and opens a checkout
// session for the service price; the response carries the gateway's
// hosted payment URL.  The claim and the checkout run in that order:
// if opening checkout fails, the claim is released immediately so the
// slot does not sit locked for the full payment window.
func (h *AppointmentHandler) Create(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createAppointmentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.ServiceID == 0 || req.ScheduleID == 0 || req.AppointmentDate == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_id, schedule_id and appointment_date are required"})
	}
	date, err := parseDate(req.AppointmentDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "appointment_date must be YYYY-MM-DD"})
	}
	if msg := h.checkBookingWindow(date); msg != "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": msg})
	}

	ctx := c.Request().Context()
	svc, err := h.Services.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	tx, err := h.Appointments.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rec := &model.Appointment{
		PatientID:       patientID,
		ServiceID:       req.ServiceID,
		ScheduleID:      req.ScheduleID,
		AppointmentDate: date,
	}
	if err := h.Appointments.CreatePendingTx(ctx, tx, rec); err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot is already taken for that date"})
		}
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create appointment"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
	}
	committed = true

	session, err := h.Gateway.CreateCheckoutSession(ctx, gateway.CheckoutParams{
		AppointmentID: rec.ID,
		Description:   svc.Name,
		AmountCents:   svc.PriceCents,
		SuccessURL:    h.Cfg.PaymentSuccessURL + "?appointment_id=" + strconv.FormatUint(rec.ID, 10),
		CancelURL:     h.Cfg.PaymentCancelURL + "?appointment_id=" + strconv.FormatUint(rec.ID, 10),
	})
	if err != nil {
		// Release the claim rather than leaving the slot locked behind
		// a checkout page that never opened.
		_, _ = h.Appointments.ReleaseIfPending(ctx, rec.ID)
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payment gateway unavailable, please try again"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to open checkout"})
	}
	if err := h.Appointments.SetGatewaySession(ctx, rec.ID, session.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record checkout session"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"appointment_id": rec.ID,
		"status":         string(rec.Status),
		"checkout_url":   session.CheckoutURL,
		"expires_at":     rec.CreatedAt.Add(h.Cfg.PaymentWindow).Format(time.RFC3339),
	})
}

// List handles GET /v1/my-appointments.  It returns all appointments
// for the current patient with service, slot and payment details.
func (h *AppointmentHandler) List(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	details, err := h.Appointments.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load appointments"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": details,
	})
}

// Get handles GET /v1/appointments/:id.  Responds 404 when the
// appointment does not exist and 403 when it belongs to a different
// patient.
func (h *AppointmentHandler) Get(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	rec, err := h.Appointments.GetByIDForPatient(c.Request().Context(), apptID, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "appointment not found"})
		}
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch appointment"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"item": echo.Map{
			"id":               rec.ID,
			"service_id":       rec.ServiceID,
			"schedule_id":      rec.ScheduleID,
			"appointment_date": rec.AppointmentDate.UTC().Format("2006-01-02"),
			"status":           string(rec.Status),
			"created_at":       rec.CreatedAt.Format(time.RFC3339),
		},
	})
}

// Cancel handles DELETE /v1/appointments/:id.  A patient may cancel a
// PENDING or CONFIRMED appointment with enough notice before the slot
// starts.  The appointment row is kept and marked CANCELLED; cancelled
// rows stop occupying their slot immediately.  Returns 409 when the
// notice is too short or the appointment is already terminal.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	ctx := c.Request().Context()
	rec, err := h.Appointments.GetByIDForPatient(ctx, apptID, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "appointment not found"})
		}
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch appointment"})
	}
	if rec.Status.IsTerminal() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "appointment is no longer active"})
	}
	// Confirmed visits need notice; an unpaid pending claim can be
	// abandoned at any time.
	if rec.Status == model.StatusConfirmed {
		sched, err := h.Schedules.GetByID(ctx, rec.ScheduleID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load schedule"})
		}
		startAt, err := sched.StartOn(rec.AppointmentDate)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load schedule"})
		}
		if time.Until(startAt) < h.Cfg.CancelLeadTime {
			return c.JSON(http.StatusConflict, echo.Map{"error": "cancellations need more notice before the visit"})
		}
	}
	cancelled, err := h.Appointments.CancelActive(ctx, apptID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel appointment"})
	}
	if !cancelled {
		// Lost a race with the sweeper or a confirmation settling it.
		return c.JSON(http.StatusConflict, echo.Map{"error": "appointment is no longer active"})
	}
	return c.NoContent(http.StatusNoContent)
}

type rescheduleReq struct {
	ScheduleID      uint64 `json:"schedule_id"`
	AppointmentDate string `json:"appointment_date"` // YYYY-MM-DD
}

// Reschedule handles PATCH /v1/appointments/:id.  A CONFIRMED
// appointment may move to a different slot and date within the booking
// window; the payment carries over.  The new pair is claimed under the
// same slot lock and occupancy check as a fresh booking.
func (h *AppointmentHandler) Reschedule(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	var req rescheduleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.ScheduleID == 0 || req.AppointmentDate == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "schedule_id and appointment_date are required"})
	}
	date, err := parseDate(req.AppointmentDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "appointment_date must be YYYY-MM-DD"})
	}
	if msg := h.checkBookingWindow(date); msg != "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": msg})
	}

	ctx := c.Request().Context()
	rec, err := h.Appointments.GetByIDForPatient(ctx, apptID, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "appointment not found"})
		}
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch appointment"})
	}
	if rec.Status != model.StatusConfirmed {
		return c.JSON(http.StatusConflict, echo.Map{"error": "only confirmed appointments can be rescheduled"})
	}

	tx, err := h.Appointments.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Appointments.RescheduleTx(ctx, tx, apptID, req.ScheduleID, date); err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot is already taken for that date"})
		}
		if errors.Is(err, repository.ErrIllegalTransition) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "appointment is no longer confirmed"})
		}
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reschedule appointment"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{
		"appointment_id":   apptID,
		"schedule_id":      req.ScheduleID,
		"appointment_date": req.AppointmentDate,
	})
}

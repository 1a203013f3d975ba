package handler

// Staff-facing appointment views.  Staff read the day's schedule and
// mark visits completed after they happen; every other mutation goes
// through the patient flow or the reconciler, never through here.

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/districtsmiles/appointment-booking/internal/repository"
)

// StaffHandler groups the repositories staff endpoints read from.  The
// STAFF role requirement is enforced by middleware.
type StaffHandler struct {
	Appointments *repository.AppointmentRepo
	Payments     *repository.PaymentRepo
}

func NewStaffHandler(appts *repository.AppointmentRepo, payments *repository.PaymentRepo) *StaffHandler {
	if appts == nil || payments == nil {
		panic("nil repository passed to NewStaffHandler")
	}
	return &StaffHandler{Appointments: appts, Payments: payments}
}

// ListByDate handles GET /v1/staff/appointments?date=YYYY-MM-DD.  It
// returns every appointment on the date, in slot order, with payment
// details.
func (h *StaffHandler) ListByDate(c echo.Context) error {
	dateStr := c.QueryParam("date")
	if dateStr == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date is required"})
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	details, err := h.Appointments.ListByDate(c.Request().Context(), date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load appointments"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":  dateStr,
		"items": details,
	})
}

// Complete handles POST /v1/staff/appointments/:id/complete.  Only a
// CONFIRMED appointment can be marked completed; the conditional
// update returns 409 for anything else.
func (h *StaffHandler) Complete(c echo.Context) error {
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	done, err := h.Appointments.CompleteIfConfirmed(c.Request().Context(), apptID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to complete appointment"})
	}
	if !done {
		return c.JSON(http.StatusConflict, echo.Map{"error": "appointment is not confirmed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"appointment_id": apptID,
		"status":         "COMPLETED",
	})
}

// Payment handles GET /v1/staff/appointments/:id/payment, the receipt
// lookup for a settled appointment.
func (h *StaffHandler) Payment(c echo.Context) error {
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	p, err := h.Payments.GetByAppointment(c.Request().Context(), apptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no payment recorded for this appointment"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payment"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"item": echo.Map{
			"id":              p.ID,
			"appointment_id":  p.AppointmentID,
			"amount_cents":    p.AmountCents,
			"method":          p.Method,
			"transaction_ref": p.TransactionRef,
			"status":          string(p.Status),
			"paid_at":         p.PaidAt.UTC().Format(time.RFC3339),
		},
	})
}

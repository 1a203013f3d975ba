package queue_publisher

import (
	"context"
	"time"

	"github.com/districtsmiles/appointment-booking/internal/queue"
	"github.com/districtsmiles/appointment-booking/internal/repository"
	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

// ConfirmationNotifier assembles and publishes the confirmation event
// for a freshly confirmed appointment.  It satisfies the reconciler's
// publisher dependency; the reconciler treats publishing as fire and
// forget, so errors here never affect the confirmation itself.
type ConfirmationNotifier struct {
	Appointments *repository.AppointmentRepo
	Services     *repository.ServiceRepo
	Schedules    *repository.ScheduleRepo
	Payments     *repository.PaymentRepo
	Users        *repository.UserRepo
	Logger       *logging.Logger
}

func NewConfirmationNotifier(appts *repository.AppointmentRepo, services *repository.ServiceRepo, schedules *repository.ScheduleRepo, payments *repository.PaymentRepo, users *repository.UserRepo, logger *logging.Logger) *ConfirmationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationNotifier{
		Appointments: appts,
		Services:     services,
		Schedules:    schedules,
		Payments:     payments,
		Users:        users,
		Logger:       logger,
	}
}

// PublishAppointmentConfirmed loads the appointment's details and
// publishes an AppointmentConfirmedEvent for it.
func (n *ConfirmationNotifier) PublishAppointmentConfirmed(ctx context.Context, appointmentID uint64) error {
	appt, err := n.Appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	svc, err := n.Services.GetByID(ctx, appt.ServiceID)
	if err != nil {
		return err
	}
	sched, err := n.Schedules.GetByID(ctx, appt.ScheduleID)
	if err != nil {
		return err
	}
	payment, err := n.Payments.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	user, err := n.Users.GetByID(ctx, appt.PatientID)
	if err != nil {
		return err
	}

	event := queue.AppointmentConfirmedEvent{
		AppointmentID:   appt.ID,
		PatientID:       appt.PatientID,
		PatientEmail:    user.Email,
		ServiceName:     svc.Name,
		AppointmentDate: appt.AppointmentDate.UTC().Format("2006-01-02"),
		StartTime:       sched.StartTime,
		EndTime:         sched.EndTime,
		AmountCents:     payment.AmountCents,
		TransactionRef:  payment.TransactionRef,
		ConfirmedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := PublishAppointmentConfirmed(ctx, event); err != nil {
		n.Logger.Error("failed to publish confirmation event",
			"appointment_id", appointmentID, "error", err)
		return err
	}
	return nil
}

// Package booking holds the confirmation reconciler and the expiry
// sweeper, the two components that decide the final fate of a PENDING
// appointment.  Both operate exclusively through conditional status
// updates, so any number of them may run concurrently against the
// same appointment without double-confirming or resurrecting it.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/model"
	"github.com/districtsmiles/appointment-booking/internal/repository"
	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

// Channel identifies which delivery path triggered a reconciliation.
// Outcomes must not depend on it; it exists for logging and for the
// caller to shape its response.
type Channel string

const (
	ChannelRedirect Channel = "redirect"
	ChannelWebhook  Channel = "webhook"
	ChannelSweep    Channel = "sweep"
)

// Outcome classifies what a reconciliation attempt did.
type Outcome string

const (
	// OutcomeConfirmed means this call won the confirmation and
	// created the payment record.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeAlreadyConfirmed means a payment record already existed;
	// the call was an idempotent no-op.
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	// OutcomeFailed means the gateway reported a verified failure and
	// the slot was released.
	OutcomeFailed Outcome = "failed"
	// OutcomeProcessing means the gateway has not settled yet; the
	// appointment stays PENDING and the sweeper remains the backstop.
	OutcomeProcessing Outcome = "processing"
	// OutcomeTerminalMismatch means the appointment left PENDING
	// without a payment record (cancelled or timed out) and the
	// payment can no longer be applied.
	OutcomeTerminalMismatch Outcome = "terminal_mismatch"
	// OutcomeNotFound means no such appointment exists.
	OutcomeNotFound Outcome = "not_found"
)

// appointmentStore is the slice of the appointment repository the
// reconciler needs.
type appointmentStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Appointment, error)
	ConfirmIfPending(ctx context.Context, id uint64) (bool, error)
	ReleaseIfPending(ctx context.Context, id uint64) (bool, error)
}

type paymentStore interface {
	ExistsByAppointment(ctx context.Context, appointmentID uint64) (bool, error)
	Create(ctx context.Context, p *model.Payment) error
}

type serviceStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Service, error)
}

// sessionGateway is the slice of the gateway adapter the reconciler
// needs: the authoritative session status lookup.
type sessionGateway interface {
	GetSessionStatus(ctx context.Context, sessionID string) (*gateway.SessionStatus, error)
}

// confirmationPublisher notifies downstream consumers about a won
// confirmation.  Publish failures never roll back the confirmation.
type confirmationPublisher interface {
	PublishAppointmentConfirmed(ctx context.Context, appointmentID uint64) error
}

// Result carries the outcome of one reconciliation attempt.
type Result struct {
	Outcome Outcome
	Payment *model.Payment
}

// Reconciler settles the payment state of appointments.  Redirect
// arrivals, webhook deliveries and retries of either all funnel into
// Reconcile, which is safe under arbitrary duplication and reordering
// of those channels.
type Reconciler struct {
	appointments appointmentStore
	payments     paymentStore
	services     serviceStore
	gateway      sessionGateway
	publisher    confirmationPublisher
	logger       *logging.Logger
}

func NewReconciler(
	appointments appointmentStore,
	payments paymentStore,
	services serviceStore,
	gw sessionGateway,
	publisher confirmationPublisher,
	logger *logging.Logger,
) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		appointments: appointments,
		payments:     payments,
		services:     services,
		gateway:      gw,
		publisher:    publisher,
		logger:       logger,
	}
}

// Reconcile decides and applies the fate of one appointment's payment.
//
// The mere arrival of a success redirect or a webhook event is never
// proof of payment: both are reachable without money having moved.
// Confirmation rests only on a paid verdict fetched directly from the
// gateway here.  A payment record, once present, is proof of a prior
// confirmation and short-circuits everything else.
func (r *Reconciler) Reconcile(ctx context.Context, appointmentID uint64, channel Channel) (*Result, error) {
	appt, err := r.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("reconcile for unknown appointment",
				"appointment_id", appointmentID, "channel", string(channel))
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, err
	}

	exists, err := r.payments.ExistsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return &Result{Outcome: OutcomeAlreadyConfirmed}, nil
	}

	if appt.Status != model.StatusPending {
		r.logger.Warn("payment arrived for non-pending appointment",
			"appointment_id", appointmentID, "status", string(appt.Status), "channel", string(channel))
		return &Result{Outcome: OutcomeTerminalMismatch}, nil
	}

	if appt.GatewaySessionID == nil {
		// PENDING but checkout was never opened; nothing to verify.
		return &Result{Outcome: OutcomeProcessing}, nil
	}

	status, err := r.gateway.GetSessionStatus(ctx, *appt.GatewaySessionID)
	if err != nil {
		// Unknown status is not a failure: leave the appointment
		// pending and let a webhook redelivery or the sweeper settle it.
		return nil, err
	}

	switch status.Verdict {
	case gateway.VerdictPaid:
		return r.applyConfirmation(ctx, appt, status, channel)
	case gateway.VerdictFailed:
		released, err := r.appointments.ReleaseIfPending(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		if released {
			r.logger.Info("slot released after verified payment failure",
				"appointment_id", appointmentID, "channel", string(channel))
			return &Result{Outcome: OutcomeFailed}, nil
		}
		// The release lost a race: something else settled the row while
		// the failure verdict was in flight.  Re-read and report what
		// actually happened instead of claiming the slot was freed.
		cur, err := r.appointments.GetByID(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		switch cur.Status {
		case model.StatusConfirmed:
			return &Result{Outcome: OutcomeAlreadyConfirmed}, nil
		case model.StatusCancelled, model.StatusFailedTimeout:
			return &Result{Outcome: OutcomeFailed}, nil
		default:
			return &Result{Outcome: OutcomeProcessing}, nil
		}
	default:
		return &Result{Outcome: OutcomeProcessing}, nil
	}
}

// applyConfirmation runs the confirmation CAS and, when this call wins
// it, writes the single payment record and emits the confirmation
// event.
func (r *Reconciler) applyConfirmation(ctx context.Context, appt *model.Appointment, status *gateway.SessionStatus, channel Channel) (*Result, error) {
	won, err := r.appointments.ConfirmIfPending(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent reconciliation got there first.  Its payment
		// record is (or is about to be) the single record for this
		// appointment.
		return &Result{Outcome: OutcomeAlreadyConfirmed}, nil
	}

	svc, err := r.services.GetByID(ctx, appt.ServiceID)
	if err != nil {
		return nil, err
	}
	payment := &model.Payment{
		AppointmentID:  appt.ID,
		AmountCents:    svc.PriceCents,
		Method:         status.Method,
		TransactionRef: status.TransactionRef,
		Status:         model.PaymentStatusCompleted,
		PaidAt:         time.Now().UTC(),
	}
	if err := r.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrAlreadyPaid) {
			// The unique key is the last line of defense; hitting it
			// after winning the CAS means a redelivery slipped through.
			return &Result{Outcome: OutcomeAlreadyConfirmed}, nil
		}
		return nil, err
	}

	r.logger.Info("appointment confirmed",
		"appointment_id", appt.ID, "channel", string(channel), "transaction_ref", status.TransactionRef)

	if r.publisher != nil {
		// Fire and forget: a broker outage must never undo a
		// confirmed payment.
		if err := r.publisher.PublishAppointmentConfirmed(ctx, appt.ID); err != nil {
			r.logger.Error("failed to publish confirmation event",
				"appointment_id", appt.ID, "error", err)
		}
	}

	return &Result{Outcome: OutcomeConfirmed, Payment: payment}, nil
}

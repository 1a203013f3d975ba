package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/districtsmiles/appointment-booking/internal/model"
)

// PaymentRepo stores verified payment records.  A payment row exists
// if and only if its appointment was confirmed through a gateway
// verdict, and the unique key on appointment_id makes the write
// at-most-once: whichever of two racing confirmations inserts second
// gets ErrAlreadyPaid instead of a duplicate.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const mysqlErrDuplicateEntry = 1062

// Create inserts a payment record for a confirmed appointment.
// Returns ErrAlreadyPaid when a record for the appointment already
// exists.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments (appointment_id, amount_cents, method, transaction_ref, status, paid_at)
	       VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q,
		p.AppointmentID, p.AmountCents, p.Method, p.TransactionRef, p.Status,
		p.PaidAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
			return ErrAlreadyPaid
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByAppointment loads the payment record for an appointment.
// sql.ErrNoRows when none exists.
func (r *PaymentRepo) GetByAppointment(ctx context.Context, appointmentID uint64) (*model.Payment, error) {
	const q = `SELECT id, appointment_id, amount_cents, method, transaction_ref, status, paid_at, created_at
	       FROM payments WHERE appointment_id = ?`
	var p model.Payment
	var paidAt time.Time
	err := r.db.QueryRowContext(ctx, q, appointmentID).Scan(
		&p.ID, &p.AppointmentID, &p.AmountCents, &p.Method, &p.TransactionRef, &p.Status,
		&paidAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PaidAt = paidAt
	return &p, nil
}

// ExistsByAppointment reports whether a payment record exists for the
// appointment.  Used by the reconciler as proof of a prior completed
// confirmation.
func (r *PaymentRepo) ExistsByAppointment(ctx context.Context, appointmentID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payments WHERE appointment_id = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, appointmentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/districtsmiles/appointment-booking/internal/model"
)

// AppointmentRepo is the authoritative record of which slots are
// claimed by which appointment and in which lifecycle state.  All
// status mutations are conditional updates scoped by the expected
// prior status; the affected-row count tells the caller whether this
// call performed the transition or lost the race to a concurrent one.
// Timestamps are stored in UTC.
type AppointmentRepo struct {
	db *sql.DB
}

// NewAppointmentRepo returns a new AppointmentRepo bound to the given database.
func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// that span repositories.
func (r *AppointmentRepo) DB() *sql.DB { return r.db }

const appointmentColumns = `id, patient_id, service_id, schedule_id, appointment_date,
			   status, gateway_session_id, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*model.Appointment, error) {
	var rec model.Appointment
	var session sql.NullString
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.ServiceID, &rec.ScheduleID, &rec.AppointmentDate,
		&rec.Status, &session, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if session.Valid {
		s := session.String
		rec.GatewaySessionID = &s
	}
	return &rec, nil
}

// CreatePendingTx claims a (schedule, date) pair for a patient by
// inserting a new PENDING appointment.  The claim runs inside the
// provided transaction: the candidate slot row is locked with
// SELECT ... FOR UPDATE, occupancy is re-checked under that lock
// against all PENDING/CONFIRMED appointments, and only then is the
// row inserted.  Two concurrent claims on the same pair therefore
// serialize on the slot lock and the loser observes the winner's row.
// Returns ErrSlotConflict when the pair is occupied and sql.ErrNoRows
// when the schedule does not exist.  The caller must commit or roll
// back the transaction.
func (r *AppointmentRepo) CreatePendingTx(ctx context.Context, tx *sql.Tx, rec *model.Appointment) error {
	// Lock the slot row.  Every claim for this schedule serializes
	// here regardless of date, which keeps the occupancy re-check
	// below race-free.
	var capacity uint32
	const lockQ = `SELECT capacity FROM schedules WHERE id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lockQ, rec.ScheduleID).Scan(&capacity); err != nil {
		return err
	}
	// Re-check occupancy under the lock.  Occupancy is derived from
	// appointment status, never stored separately.
	const occQ = `SELECT COUNT(*) FROM appointments
			   WHERE schedule_id = ? AND appointment_date = ? AND status IN (?, ?)`
	occ := model.OccupyingStatuses()
	var occupied uint32
	err := tx.QueryRowContext(ctx, occQ,
		rec.ScheduleID, rec.AppointmentDate.UTC().Format("2006-01-02"),
		occ[0], occ[1],
	).Scan(&occupied)
	if err != nil {
		return err
	}
	if occupied >= capacity {
		return ErrSlotConflict
	}
	const insQ = `INSERT INTO appointments (patient_id, service_id, schedule_id, appointment_date, status)
			   VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insQ,
		rec.PatientID, rec.ServiceID, rec.ScheduleID,
		rec.AppointmentDate.UTC().Format("2006-01-02"), model.StatusPending,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	rec.Status = model.StatusPending
	// Query back the full row to populate timestamps and defaults.
	sel := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	full, err := scanAppointment(tx.QueryRowContext(ctx, sel, rec.ID))
	if err != nil {
		return err
	}
	*rec = *full
	return nil
}

// GetByID loads a single appointment.  sql.ErrNoRows is returned when
// no appointment with the given ID exists.
func (r *AppointmentRepo) GetByID(ctx context.Context, id uint64) (*model.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	return scanAppointment(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDForPatient loads an appointment and enforces ownership.  It
// returns sql.ErrNoRows when the appointment does not exist and
// ErrForbidden when it belongs to a different patient.
func (r *AppointmentRepo) GetByIDForPatient(ctx context.Context, id, patientID uint64) (*model.Appointment, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.PatientID != patientID {
		return nil, ErrForbidden
	}
	return rec, nil
}

// SetGatewaySession stores the checkout session reference opened for
// an appointment.  The session id correlates gateway callbacks with
// the appointment without trusting client-held state.
func (r *AppointmentRepo) SetGatewaySession(ctx context.Context, id uint64, sessionID string) error {
	const q = `UPDATE appointments SET gateway_session_id = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, sessionID, id)
	return err
}

// ConfirmIfPending performs the PENDING→CONFIRMED transition as a
// conditional update.  It returns true when this call performed the
// transition and false when the appointment was no longer PENDING,
// either because a concurrent caller confirmed it first or because it
// reached a terminal state.  Exactly one of any number of concurrent
// callers observes true; that caller is responsible for creating the
// payment record.
func (r *AppointmentRepo) ConfirmIfPending(ctx context.Context, id uint64) (bool, error) {
	const q = `UPDATE appointments SET status = ?, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, q, model.StatusConfirmed, id, model.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseIfPending performs the PENDING→CANCELLED transition used when
// the gateway reports a verified payment failure or the patient abandons
// checkout.  Idempotent: returns false without error when the
// appointment already left PENDING.
func (r *AppointmentRepo) ReleaseIfPending(ctx context.Context, id uint64) (bool, error) {
	const q = `UPDATE appointments SET status = ?, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, q, model.StatusCancelled, id, model.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelActive transitions an appointment out of either occupying
// status into CANCELLED.  The WHERE clause restricts the update to
// statuses from which cancellation is legal, so racing with a
// concurrent sweep or confirmation can never cancel a terminal row.
// Returns false when the appointment was not in a cancellable status.
func (r *AppointmentRepo) CancelActive(ctx context.Context, id uint64) (bool, error) {
	const q = `UPDATE appointments SET status = ?, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND status IN (?, ?)`
	result, err := r.db.ExecContext(ctx, q, model.StatusCancelled, id, model.StatusPending, model.StatusConfirmed)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteIfConfirmed performs the CONFIRMED→COMPLETED transition used
// by staff after a visit.  Returns false when the appointment was not
// CONFIRMED.
func (r *AppointmentRepo) CompleteIfConfirmed(ctx context.Context, id uint64) (bool, error) {
	const q = `UPDATE appointments SET status = ?, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, q, model.StatusCompleted, id, model.StatusConfirmed)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireOlderThan transitions every PENDING appointment created at or
// before the cutoff to FAILED_TIMEOUT and returns how many rows
// changed.  The comparison is inclusive: a claim whose window elapsed
// exactly now is already expirable and must not survive to the next
// sweep.  The
// status guard in the WHERE clause makes the sweep safe against a
// confirmation racing it: whichever conditional update executes first
// determines the outcome, and a just-confirmed appointment can never
// be resurrected into a timeout.
func (r *AppointmentRepo) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE appointments SET status = ?, updated_at = UTC_TIMESTAMP()
			   WHERE status = ? AND created_at <= ?`
	result, err := r.db.ExecContext(ctx, q,
		model.StatusFailedTimeout, model.StatusPending,
		cutoff.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RescheduleTx moves a CONFIRMED appointment to a new (schedule, date)
// pair.  It acquires the same slot lock and occupancy re-check as
// CreatePendingTx against the new pair, excluding the appointment's
// own prior claim so that moving back to a slot it vacated earlier is
// never self-conflicting.  The final conditional update keeps the
// transition legal under concurrency: if the appointment left
// CONFIRMED between the handler's read and this call, no row matches
// and ErrIllegalTransition is returned.  The caller must commit or
// roll back the transaction.
func (r *AppointmentRepo) RescheduleTx(ctx context.Context, tx *sql.Tx, id, newScheduleID uint64, newDate time.Time) error {
	var capacity uint32
	const lockQ = `SELECT capacity FROM schedules WHERE id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lockQ, newScheduleID).Scan(&capacity); err != nil {
		return err
	}
	const occQ = `SELECT COUNT(*) FROM appointments
			   WHERE schedule_id = ? AND appointment_date = ? AND status IN (?, ?) AND id != ?`
	occ := model.OccupyingStatuses()
	var occupied uint32
	err := tx.QueryRowContext(ctx, occQ,
		newScheduleID, newDate.UTC().Format("2006-01-02"),
		occ[0], occ[1], id,
	).Scan(&occupied)
	if err != nil {
		return err
	}
	if occupied >= capacity {
		return ErrSlotConflict
	}
	const updQ = `UPDATE appointments SET schedule_id = ?, appointment_date = ?, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, updQ,
		newScheduleID, newDate.UTC().Format("2006-01-02"), id, model.StatusConfirmed,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// AppointmentDetail joins an appointment with its service and slot for
// display.  It is returned by the listing queries used by patients and
// staff.
type AppointmentDetail struct {
	ID              uint64  `json:"id"`
	PatientID       uint64  `json:"patient_id"`
	ServiceName     string  `json:"service_name"`
	AppointmentDate string  `json:"appointment_date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	AmountCents     *uint32 `json:"amount_cents,omitempty"`
}

// paymentStatusLabel derives a display label from the appointment
// status and the (possibly absent) payment row, mirroring what
// patients see: a confirmed payment, a still-open payment window, or
// nothing applicable for terminal unpaid states.
func paymentStatusLabel(status model.AppointmentStatus, hasPayment bool) string {
	switch {
	case hasPayment:
		return "Paid"
	case status == model.StatusPending:
		return "Pending Payment"
	default:
		return "N/A"
	}
}

// ListByPatient returns all appointments for the given patient along
// with service, slot and payment details, newest visit first.  When no
// appointments exist, an empty slice is returned.
func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientID uint64) ([]AppointmentDetail, error) {
	const q = `SELECT a.id, a.patient_id, sv.name, a.appointment_date, sc.start_time, sc.end_time,
					  a.status, p.amount_cents
			   FROM appointments a
			   JOIN services sv ON sv.id = a.service_id
			   JOIN schedules sc ON sc.id = a.schedule_id
			   LEFT JOIN payments p ON p.appointment_id = a.id
			   WHERE a.patient_id = ?
			   ORDER BY a.appointment_date DESC, sc.start_time DESC`
	rows, err := r.db.QueryContext(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDetails(rows)
}

// ListByDate returns every appointment on a calendar date for the
// staff schedule view, ordered by slot start time.
func (r *AppointmentRepo) ListByDate(ctx context.Context, date time.Time) ([]AppointmentDetail, error) {
	const q = `SELECT a.id, a.patient_id, sv.name, a.appointment_date, sc.start_time, sc.end_time,
					  a.status, p.amount_cents
			   FROM appointments a
			   JOIN services sv ON sv.id = a.service_id
			   JOIN schedules sc ON sc.id = a.schedule_id
			   LEFT JOIN payments p ON p.appointment_id = a.id
			   WHERE a.appointment_date = ?
			   ORDER BY sc.start_time`
	rows, err := r.db.QueryContext(ctx, q, date.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDetails(rows)
}

func collectDetails(rows *sql.Rows) ([]AppointmentDetail, error) {
	details := make([]AppointmentDetail, 0)
	for rows.Next() {
		var d AppointmentDetail
		var date time.Time
		var amount sql.NullInt64
		if err := rows.Scan(
			&d.ID, &d.PatientID, &d.ServiceName, &date, &d.StartTime, &d.EndTime,
			&d.Status, &amount,
		); err != nil {
			return nil, err
		}
		d.AppointmentDate = date.UTC().Format("2006-01-02")
		if amount.Valid {
			a := uint32(amount.Int64)
			d.AmountCents = &a
		}
		d.PaymentStatus = paymentStatusLabel(model.AppointmentStatus(d.Status), amount.Valid)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

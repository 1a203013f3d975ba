package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/districtsmiles/appointment-booking/internal/model"
)

// ScheduleRepo reads the clinic's slot registry.  Slots are a static
// catalog of daily time windows; which of them are free on a given
// date is always derived from the appointments table, never stored.
type ScheduleRepo struct {
	db *sql.DB
}

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = `id, start_time, end_time, capacity, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*model.Schedule, error) {
	var s model.Schedule
	err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.Capacity, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID loads one slot.  sql.ErrNoRows when it does not exist.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uint64) (*model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	return scanSchedule(r.db.QueryRowContext(ctx, q, id))
}

// ListAll returns the full slot catalog ordered by start time.
func (r *ScheduleRepo) ListAll(ctx context.Context) ([]model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY start_time`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]model.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

// DateOccupancy is the number of occupying appointments on one
// calendar date, summed over all slots.
type DateOccupancy struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Booked int64  `json:"booked"`
}

// CountBookedByDateRange returns the per-date occupying appointment
// counts between from and to inclusive.  Dates with no bookings are
// omitted.
func (r *ScheduleRepo) CountBookedByDateRange(ctx context.Context, from, to time.Time) ([]DateOccupancy, error) {
	q := `SELECT appointment_date, COUNT(*) FROM appointments
	       WHERE appointment_date BETWEEN ? AND ? AND status IN (?, ?)
	       GROUP BY appointment_date
	       ORDER BY appointment_date`
	occ := model.OccupyingStatuses()
	rows, err := r.db.QueryContext(ctx, q,
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"),
		occ[0], occ[1],
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]DateOccupancy, 0)
	for rows.Next() {
		var c DateOccupancy
		var day time.Time
		if err := rows.Scan(&day, &c.Booked); err != nil {
			return nil, err
		}
		c.Date = day.UTC().Format("2006-01-02")
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// ListAvailableByDate returns the slots still free on a calendar date:
// every slot whose occupying appointment count on that date is below
// its capacity.  Occupancy counts only PENDING and CONFIRMED rows, so
// cancelled and timed-out claims free their slot immediately.
func (r *ScheduleRepo) ListAvailableByDate(ctx context.Context, date time.Time) ([]model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules sc
	       WHERE sc.capacity > (
	           SELECT COUNT(*) FROM appointments a
	           WHERE a.schedule_id = sc.id AND a.appointment_date = ? AND a.status IN (?, ?)
	       )
	       ORDER BY sc.start_time`
	occ := model.OccupyingStatuses()
	rows, err := r.db.QueryContext(ctx, q,
		date.UTC().Format("2006-01-02"), occ[0], occ[1],
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]model.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

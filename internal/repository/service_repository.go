package repository

import (
	"context"
	"database/sql"

	"github.com/districtsmiles/appointment-booking/internal/model"
)

// ServiceRepo reads the treatment catalog.  Prices live here and are
// the single source for checkout amounts; client-submitted amounts are
// never trusted.
type ServiceRepo struct {
	db *sql.DB
}

func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{db: db} }

const serviceColumns = `id, name, price_cents, created_at, updated_at`

// GetByID loads one service.  sql.ErrNoRows when it does not exist.
func (r *ServiceRepo) GetByID(ctx context.Context, id uint64) (*model.Service, error) {
	q := `SELECT ` + serviceColumns + ` FROM services WHERE id = ?`
	var s model.Service
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAll returns the full catalog ordered by name.
func (r *ServiceRepo) ListAll(ctx context.Context) ([]model.Service, error) {
	q := `SELECT ` + serviceColumns + ` FROM services ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]model.Service, 0)
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}
